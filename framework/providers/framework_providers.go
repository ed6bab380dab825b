package providers

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/km-arc/go-scoped/framework/config"
	"github.com/km-arc/go-scoped/framework/container"
	"github.com/km-arc/go-scoped/framework/logging"
	"github.com/km-arc/go-scoped/framework/routing"
)

// ── ConfigServiceProvider ─────────────────────────────────────────────────────

// ConfigServiceProvider loads the application configuration from .env files
// and the environment.
//
// Bound types:
//   - *config.Config  (Runtime)
type ConfigServiceProvider struct {
	container.BaseProvider
	EnvFiles []string

	once sync.Once
	cfg  *config.Config
}

// Config loads the configuration on first use and returns the same value
// afterwards, so code running before the container exists sees what the
// container will provide.
func (p *ConfigServiceProvider) Config() *config.Config {
	p.once.Do(func() { p.cfg = config.Load(p.EnvFiles...) })
	return p.cfg
}

func (p *ConfigServiceProvider) Register(b *container.RegistryBuilder) {
	b.Provide(container.Provide(container.Runtime, func() (*config.Config, error) {
		return p.Config(), nil
	}))
}

// ── LoggingServiceProvider ────────────────────────────────────────────────────

// LoggingServiceProvider builds the application logger from the LOG_*
// settings and installs it as the global zerolog logger on boot.
//
// Bound types:
//   - zerolog.Logger  (App)
type LoggingServiceProvider struct {
	Output io.Writer // default: os.Stdout
}

func (p *LoggingServiceProvider) output() io.Writer {
	if p.Output == nil {
		return os.Stdout
	}
	return p.Output
}

// Logger builds the application logger for cfg.
func (p *LoggingServiceProvider) Logger(cfg *config.Config) zerolog.Logger {
	return logging.NewWriter(p.output(), cfg.Log).With().Str("app", cfg.App.Name).Logger()
}

func (p *LoggingServiceProvider) Register(b *container.RegistryBuilder) {
	b.Provide(container.Provide1(container.App, func(cfg *config.Config) (zerolog.Logger, error) {
		return p.Logger(cfg), nil
	}))
}

func (p *LoggingServiceProvider) Boot(app *container.Container) error {
	cfg, err := container.Get[*config.Config](app)
	if err != nil {
		return err
	}
	if _, ok := logging.ParseLevel(cfg.Log.Level); !ok {
		logger, err := container.Get[zerolog.Logger](app)
		if err != nil {
			return err
		}
		logger.Warn().Str("level", cfg.Log.Level).Msg("Unknown LOG_LEVEL, using info")
	}
	logging.ConfigureWriter(p.output(), cfg.Log)
	return nil
}

// ── RoutingServiceProvider ────────────────────────────────────────────────────

// RoutingServiceProvider registers the HTTP router. On boot it installs the
// middleware that gives every request its own Request (or, for websocket
// upgrades, Session) container below app.
//
// Bound types:
//   - *routing.Router  (App)
type RoutingServiceProvider struct {
	Options []routing.Option
}

func (p *RoutingServiceProvider) Register(b *container.RegistryBuilder) {
	b.Provide(container.Provide1(container.App, func(logger zerolog.Logger) (*routing.Router, error) {
		return routing.New(logger), nil
	}))
}

func (p *RoutingServiceProvider) Boot(app *container.Container) error {
	router, err := container.Get[*routing.Router](app)
	if err != nil {
		return err
	}
	router.Middleware(routing.ScopedContainer(app, p.Options...))
	return nil
}
