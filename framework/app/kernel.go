package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/km-arc/go-scoped/framework/config"
	"github.com/km-arc/go-scoped/framework/container"
	"github.com/km-arc/go-scoped/framework/providers"
	"github.com/km-arc/go-scoped/framework/routing"
)

// ShutdownTimeout bounds graceful shutdown in Run.
var ShutdownTimeout = 10 * time.Second

// Application owns the registry builder and, once booted, the App-scope
// container every request container descends from.
//
//	application := app.New()
//	application.Register(&UserProvider{})
//	application.Router().Get("/users/{id}", showUser)
//	application.Run()
type Application struct {
	builder *container.RegistryBuilder
	root    *container.Container

	config  *providers.ConfigServiceProvider
	logging *providers.LoggingServiceProvider
}

// New creates the application with the framework providers registered.
func New(envFiles ...string) *Application {
	a := &Application{
		builder: container.NewRegistryBuilder(),
		config:  &providers.ConfigServiceProvider{EnvFiles: envFiles},
		logging: &providers.LoggingServiceProvider{},
	}
	a.builder.Register(a.config, a.logging, &providers.RoutingServiceProvider{})
	return a
}

// WithLogOutput sends the application and container logs to w instead of
// stdout. Call it before boot.
func (a *Application) WithLogOutput(w io.Writer) *Application {
	a.logging.Output = w
	return a
}

// Register adds a ServiceProvider. Providers must be registered before the
// application boots; later ones are rejected.
func (a *Application) Register(provider container.ServiceProvider) error {
	if a.root != nil {
		return errors.New("app: cannot register providers after boot")
	}
	return a.builder.Providers().Register(provider)
}

// Provide adds entries directly, without a provider.
func (a *Application) Provide(entries ...container.Entry) *Application {
	a.builder.Provide(entries...)
	return a
}

// Boot builds the registry, creates the App container and boots every
// provider. Containers log through the application logger. Once Boot has
// succeeded later calls do nothing; a failed Boot can be retried.
func (a *Application) Boot() error {
	if a.root != nil {
		return nil
	}
	cfg := a.config.Config()
	a.builder.WithLogger(a.logging.Logger(cfg))

	root := container.New(a.builder.Build())
	if err := a.builder.Providers().Boot(root); err != nil {
		root.Close()
		return err
	}
	a.root = root
	return nil
}

// Booted reports whether Boot succeeded.
func (a *Application) Booted() bool { return a.root != nil }

// Container returns the App-scope container, booting first if needed.
func (a *Application) Container() *container.Container {
	if err := a.Boot(); err != nil {
		panic(err)
	}
	return a.root
}

// Config resolves *config.Config.
func (a *Application) Config() *config.Config {
	return container.MustGet[*config.Config](a.Container())
}

// Logger resolves the application logger.
func (a *Application) Logger() zerolog.Logger {
	return container.MustGet[zerolog.Logger](a.Container())
}

// Router resolves *routing.Router.
func (a *Application) Router() *routing.Router {
	return container.MustGet[*routing.Router](a.Container())
}

// Run boots the application (if needed) and serves HTTP until SIGINT or
// SIGTERM, then shuts down gracefully and closes the container tree.
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.Serve(ctx)
}

// Serve is Run with a caller-controlled lifetime.
func (a *Application) Serve(ctx context.Context) error {
	if err := a.Boot(); err != nil {
		return err
	}
	defer a.Shutdown()

	cfg := a.Config()
	logger := a.Logger()
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("env", cfg.App.Env).Msg("Server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Shutdown closes the App container and, through it, the Runtime container,
// running their finalizers. Values resolved afterwards are created anew.
func (a *Application) Shutdown() {
	if a.root == nil {
		return
	}
	a.root.Close()
}

// ── Environment ──────────────────────────────────────────────────────────────

// Environment returns APP_ENV value.
func (a *Application) Environment() string { return a.Config().App.Env }
func (a *Application) IsLocal() bool       { return a.Environment() == "local" }
func (a *Application) IsProduction() bool  { return a.Environment() == "production" }
func (a *Application) IsTesting() bool     { return a.Environment() == "testing" }
func (a *Application) IsDebug() bool       { return a.Config().App.Debug }
