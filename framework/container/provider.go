package container

import "fmt"

// ── ServiceProvider interface ─────────────────────────────────────────────────

// ServiceProvider groups the registrations of one feature.
//
// Register runs while the registry is being built and may only add entries.
// Boot runs once a container exists, after every provider has registered,
// so it may resolve anything.
//
//	type DatabaseProvider struct{ container.BaseProvider }
//
//	func (p *DatabaseProvider) Register(b *container.RegistryBuilder) {
//	    b.Provide(container.Provide1(container.App, OpenDB,
//	        container.WithFinalizer(func(db *sql.DB) error { return db.Close() })))
//	}
//
//	func (p *DatabaseProvider) Boot(app *container.Container) error {
//	    db, err := container.Get[*sql.DB](app)
//	    if err != nil {
//	        return err
//	    }
//	    return db.Ping()
//	}
type ServiceProvider interface {
	// Register adds entries to the builder.
	// Do NOT resolve anything here; there is no container yet.
	Register(b *RegistryBuilder)

	// Boot is called after all providers are registered.
	Boot(app *Container) error
}

// ── BaseProvider ──────────────────────────────────────────────────────────────

// BaseProvider is an embeddable struct with a no-op Boot.
//
//	type MyProvider struct{ container.BaseProvider }
//	func (p *MyProvider) Register(b *container.RegistryBuilder) { ... }
type BaseProvider struct{}

func (p *BaseProvider) Boot(_ *Container) error { return nil }

// ── ProviderRegistry ──────────────────────────────────────────────────────────

// ProviderRegistry keeps providers in registration order, registers each
// one once and boots them once.
type ProviderRegistry struct {
	builder    *RegistryBuilder
	providers  []ServiceProvider
	registered map[ServiceProvider]bool
	app        *Container
}

// NewProviderRegistry creates a registry feeding b.
func NewProviderRegistry(b *RegistryBuilder) *ProviderRegistry {
	return &ProviderRegistry{
		builder:    b,
		registered: make(map[ServiceProvider]bool),
	}
}

// Register calls provider.Register unless the provider was seen before.
// A provider added after Boot is booted immediately; its entries only reach
// registries built afterwards.
func (r *ProviderRegistry) Register(provider ServiceProvider) error {
	if r.registered[provider] {
		return nil
	}
	r.registered[provider] = true

	provider.Register(r.builder)
	r.providers = append(r.providers, provider)

	if r.app != nil {
		return boot(r.app, provider)
	}
	return nil
}

// Boot calls Boot on every provider in registration order and stops at the
// first error. Once every provider has booted, later calls do nothing. After
// a failure Boot may be retried, with the same or a new container; every
// provider is booted again in that case.
//
//	reg := builder.Build()
//	app := container.New(reg)
//	if err := builder.Providers().Boot(app); err != nil { ... }
func (r *ProviderRegistry) Boot(app *Container) error {
	if r.app != nil {
		return nil
	}
	for _, provider := range r.providers {
		if err := boot(app, provider); err != nil {
			return err
		}
	}
	r.app = app
	return nil
}

func boot(app *Container, provider ServiceProvider) error {
	if err := provider.Boot(app); err != nil {
		return fmt.Errorf("container: boot %T: %w", provider, err)
	}
	return nil
}

// Booted reports whether Boot completed successfully.
func (r *ProviderRegistry) Booted() bool { return r.app != nil }

// Providers returns all registered providers.
func (r *ProviderRegistry) Providers() []ServiceProvider { return r.providers }
