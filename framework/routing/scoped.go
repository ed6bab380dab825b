package routing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/hlog"

	"github.com/km-arc/go-scoped/framework/container"
)

// ErrNoContainer means the request did not pass through a scoped middleware,
// or its container could not be built.
var ErrNoContainer = errors.New("routing: container not found in request context")

type containerKey struct{}
type asyncContainerKey struct{}

// ── Options ──────────────────────────────────────────────────────────────────

// Option configures ScopedContainer and AsyncScopedContainer.
type Option func(*options)

type options struct {
	httpScope container.Scope
	wsScope   container.Scope
	values    func(*http.Request) container.Context
}

func newOptions(opts []Option) options {
	o := options{
		httpScope: container.Request,
		wsScope:   container.Session,
		values:    func(*http.Request) container.Context { return container.Context{} },
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithHTTPScope sets the scope entered for plain HTTP requests. Default: Request.
func WithHTTPScope(s container.Scope) Option {
	return func(o *options) { o.httpScope = s }
}

// WithWebSocketScope sets the scope entered for websocket upgrades. Default: Session.
func WithWebSocketScope(s container.Scope) Option {
	return func(o *options) { o.wsScope = s }
}

// WithValues adds per-request values to the container context. The
// *http.Request itself is always added.
func WithValues(fn func(*http.Request) container.Context) Option {
	return func(o *options) { o.values = fn }
}

func (o options) scopeFor(r *http.Request) container.Scope {
	if isWebSocket(r) {
		return o.wsScope
	}
	return o.httpScope
}

func (o options) contextFor(r *http.Request) container.Context {
	return container.WithValue(o.values(r), r)
}

// ── Middleware ───────────────────────────────────────────────────────────────

// ScopedContainer enters a child of parent for every request, makes it
// available to handlers and closes it once the handler returns. When the
// child cannot be built the error is logged and the request is served
// without a container.
//
//	router.Middleware(routing.ScopedContainer(app))
//	router.Get("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
//	    repo, err := routing.Resolve[*UserRepo](r)
//	    ...
//	})
func ScopedContainer(parent *container.Container, opts ...Option) func(http.Handler) http.Handler {
	o := newOptions(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope := o.scopeFor(r)
			c, err := parent.Enter().WithScope(scope).WithContext(o.contextFor(r)).Build()
			if err != nil {
				hlog.FromRequest(r).Error().Err(err).Str("scope", scope.Name()).Msg("Scope not found for request")
				next.ServeHTTP(w, r)
				return
			}
			defer c.Close()
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), containerKey{}, c)))
		})
	}
}

// AsyncScopedContainer is ScopedContainer for the async runtime. The
// container is closed with a context detached from the request's
// cancellation.
func AsyncScopedContainer(parent *container.AsyncContainer, opts ...Option) func(http.Handler) http.Handler {
	o := newOptions(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope := o.scopeFor(r)
			c, err := parent.Enter().WithScope(scope).WithContext(o.contextFor(r)).Build()
			if err != nil {
				hlog.FromRequest(r).Error().Err(err).Str("scope", scope.Name()).Msg("Scope not found for request")
				next.ServeHTTP(w, r)
				return
			}
			defer func() {
				if err := c.Close(context.WithoutCancel(r.Context())); err != nil {
					hlog.FromRequest(r).Error().Err(err).Msg("Closing request container")
				}
			}()
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), asyncContainerKey{}, c)))
		})
	}
}

// ── Retrieval ────────────────────────────────────────────────────────────────

// FromRequest returns the container stored by ScopedContainer.
func FromRequest(r *http.Request) (*container.Container, bool) {
	c, ok := r.Context().Value(containerKey{}).(*container.Container)
	return c, ok
}

// AsyncFromRequest returns the container stored by AsyncScopedContainer.
func AsyncFromRequest(r *http.Request) (*container.AsyncContainer, bool) {
	c, ok := r.Context().Value(asyncContainerKey{}).(*container.AsyncContainer)
	return c, ok
}

// Resolve resolves T from the request's container, preferring the async one.
func Resolve[T any](r *http.Request) (T, error) {
	if c, ok := AsyncFromRequest(r); ok {
		return container.GetAsync[T](r.Context(), c)
	}
	if c, ok := FromRequest(r); ok {
		return container.Get[T](c)
	}
	var zero T
	return zero, ErrNoContainer
}

// ResolveTransient resolves a fresh T from the request's container.
func ResolveTransient[T any](r *http.Request) (T, error) {
	if c, ok := AsyncFromRequest(r); ok {
		return container.GetTransientAsync[T](r.Context(), c)
	}
	if c, ok := FromRequest(r); ok {
		return container.GetTransient[T](c)
	}
	var zero T
	return zero, ErrNoContainer
}

// With adapts a handler that needs a T. Resolution failures answer 500
// with the error message.
//
//	router.Get("/me", routing.With(func(w http.ResponseWriter, r *http.Request, u *User) {
//	    routing.JSON(w, http.StatusOK, u)
//	}))
func With[T any](fn func(w http.ResponseWriter, r *http.Request, v T)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := Resolve[T](r)
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("Dependency resolution failed")
			Error(w, http.StatusInternalServerError, err.Error())
			return
		}
		fn(w, r, v)
	}
}

// ── Responses ────────────────────────────────────────────────────────────────

type envelope map[string]any

// JSON sends a JSON response.
//
//	routing.JSON(w, http.StatusOK, map[string]any{"message": "ok"})
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Success sends 200 JSON: {"data": v}
func Success(w http.ResponseWriter, v any) {
	JSON(w, http.StatusOK, envelope{"data": v})
}

// Error sends a JSON error response: {"message": message}
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, envelope{"message": message})
}

// ── helpers ──────────────────────────────────────────────────────────────────

// isWebSocket reports an HTTP/1.1 websocket upgrade request.
func isWebSocket(r *http.Request) bool {
	if r.Method != http.MethodGet || r.ProtoMajor > 1 {
		return false
	}
	return headerContains(r.Header, "Connection", "upgrade") &&
		headerContains(r.Header, "Upgrade", "websocket")
}

func headerContains(h http.Header, key, token string) bool {
	for _, v := range h.Values(key) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}
