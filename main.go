package main

import (
	"net/http"
	"os"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/km-arc/go-scoped/framework/app"
	"github.com/km-arc/go-scoped/framework/container"
	"github.com/km-arc/go-scoped/framework/routing"
)

// ── Services ─────────────────────────────────────────────────────────────────

// Counter lives as long as the application.
type Counter struct{ hits atomic.Int64 }

// RequestID is created once per request container.
type RequestID uuid.UUID

// Visit is a request-scoped unit of work, finalized when the request ends.
type Visit struct {
	ID     RequestID
	Path   string
	Number int64
	logger zerolog.Logger
}

func (v *Visit) Close() error {
	v.logger.Debug().Str("path", v.Path).Int64("visit", v.Number).Msg("Visit closed")
	return nil
}

// ── Provider ─────────────────────────────────────────────────────────────────

type DemoProvider struct{ container.BaseProvider }

func (p *DemoProvider) Register(b *container.RegistryBuilder) {
	b.Provide(
		container.Provide(container.App, func() (*Counter, error) { return &Counter{}, nil }),
		container.Provide(container.Request, func() (RequestID, error) { return RequestID(uuid.New()), nil }),
		container.Provide4(container.Request,
			func(r *http.Request, id RequestID, c *Counter, logger zerolog.Logger) (*Visit, error) {
				return &Visit{ID: id, Path: r.URL.Path, Number: c.hits.Add(1), logger: logger}, nil
			},
			container.WithFinalizer((*Visit).Close)),
	)
}

func main() {
	application := app.New()
	if err := application.Register(&DemoProvider{}); err != nil {
		log.Fatal().Err(err).Msg("Register failed")
	}
	if err := application.Boot(); err != nil {
		log.Fatal().Err(err).Msg("Boot failed")
	}

	r := application.Router()

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		routing.Success(w, map[string]any{"message": "Welcome to go-scoped"})
	})

	r.Prefix("/api/v1", func(api *routing.Router) {
		api.Get("/visit", routing.With(func(w http.ResponseWriter, _ *http.Request, v *Visit) {
			routing.Success(w, map[string]any{
				"request_id": uuid.UUID(v.ID).String(),
				"path":       v.Path,
				"visit":      v.Number,
			})
		}))

		api.Get("/items/{id}", func(w http.ResponseWriter, req *http.Request) {
			id, err := routing.Resolve[RequestID](req)
			if err != nil {
				routing.Error(w, http.StatusInternalServerError, err.Error())
				return
			}
			routing.Success(w, map[string]any{
				"item":       routing.Param(req, "id"),
				"request_id": uuid.UUID(id).String(),
			})
		})
	})

	if err := application.Run(); err != nil {
		logger := application.Logger()
		logger.Error().Err(err).Msg("Server stopped")
		os.Exit(1)
	}
}
