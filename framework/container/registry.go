package container

import (
	"context"
	"fmt"
	"reflect"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ── Binding types ─────────────────────────────────────────────────────────────

// Config controls how a binding's result is kept.
//
// CacheProvides: if true the produced value is cached in the resolving
// container and reused. It does not affect the binding's dependencies.
// Uncached bindings are never finalized.
type Config struct {
	CacheProvides bool
}

// DefaultConfig caches provided values.
func DefaultConfig() Config { return Config{CacheProvides: true} }

// finalizerFunc is the type-erased teardown hook of a binding.
type finalizerFunc func(ctx context.Context, v any) error

// binding is one registered instantiator of the blocking runtime.
type binding struct {
	typ      reflect.Type
	scope    ScopeData
	deps     []Dependency
	create   func(c *Container) (any, error)
	finalize finalizerFunc
	config   Config
}

// scopedRegistry holds the bindings owned by exactly one scope. It is
// immutable after build and shared by every node at that scope.
type scopedRegistry[B any] struct {
	scope    ScopeData
	bindings map[reflect.Type]B
}

func (r *scopedRegistry[B]) get(t reflect.Type) (B, bool) {
	b, ok := r.bindings[t]
	return b, ok
}

// partition places every binding into the sub-registry of its scope,
// ordered root-to-leaf. Later registrations replace earlier ones.
func partition[B any](scopes []ScopeData, items []B, key func(B) (reflect.Type, Scope), logger zerolog.Logger) []*scopedRegistry[B] {
	levels := make([]*scopedRegistry[B], len(scopes))
	index := make(map[uint8]int, len(scopes))
	for i, s := range scopes {
		levels[i] = &scopedRegistry[B]{scope: s, bindings: make(map[reflect.Type]B)}
		index[s.Priority] = i
	}
	for _, item := range items {
		t, s := key(item)
		i, ok := index[s.Priority()]
		if !ok {
			panic(fmt.Sprintf("container: %s is bound to scope %q which is not part of the registry", t, s.Name()))
		}
		if _, dup := levels[i].bindings[t]; dup {
			logger.Warn().Str("type", t.String()).Str("scope", s.Name()).Msg("Instantiator replaced by later registration")
		}
		levels[i].bindings[t] = item
	}
	return levels
}

// ── Entry ─────────────────────────────────────────────────────────────────────

// Entry is a ready-made registration for the blocking runtime. Build one
// with Provide, Provide1..Provide4, ProvideWith, ProvideFunc or Instance.
type Entry struct {
	b *binding
	s Scope
}

// Type returns the type identity the entry provides.
func (e Entry) Type() reflect.Type { return e.b.typ }

// Scope returns the scope the entry is bound to.
func (e Entry) Scope() Scope { return e.s }

// Dependencies returns the declared dependencies, in call order.
func (e Entry) Dependencies() []Dependency { return e.b.deps }

// Option customizes an Entry or AsyncEntry.
type Option func(*entryOptions)

type entryOptions struct {
	typ      reflect.Type
	config   Config
	finalize finalizerFunc
}

func applyOptions(t reflect.Type, opts []Option) entryOptions {
	o := entryOptions{typ: t, config: DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithConfig overrides the binding config.
func WithConfig(cfg Config) Option {
	return func(o *entryOptions) { o.config = cfg }
}

// Uncached makes every Get re-run the factory. The results are not finalized.
func Uncached() Option {
	return WithConfig(Config{CacheProvides: false})
}

// WithFinalizer registers a teardown hook run when the owning container closes.
//
//	container.Provide(container.App, openDB,
//	    container.WithFinalizer(func(db *sql.DB) error { return db.Close() }))
func WithFinalizer[T any](fn func(T) error) Option {
	return WithAsyncFinalizer(func(_ context.Context, v T) error { return fn(v) })
}

// WithAsyncFinalizer registers a teardown hook that receives the close context.
func WithAsyncFinalizer[T any](fn func(ctx context.Context, v T) error) Option {
	want := reflect.TypeFor[T]()
	return func(o *entryOptions) {
		if o.typ != want {
			panic(fmt.Sprintf("container: finalizer for %s registered on %s", want, o.typ))
		}
		o.finalize = func(ctx context.Context, v any) error {
			typed, ok := v.(T)
			if !ok && v != nil {
				return incorrectType(want, reflect.TypeOf(v))
			}
			return fn(ctx, typed)
		}
	}
}

// ── Registry ──────────────────────────────────────────────────────────────────

// Registry is the immutable, per-scope binding table of the blocking runtime.
type Registry struct {
	levels []*scopedRegistry[*binding]
	logger zerolog.Logger
}

// BuildRegistry partitions entries by scope. It panics on zero scopes,
// duplicate priorities or an entry bound to an unknown scope.
//
//	reg := container.BuildRegistry(container.DefaultScopes(),
//	    container.Provide(container.App, NewConfig),
//	    container.Provide1(container.Request, NewRepo),
//	)
func BuildRegistry(scopes []Scope, entries ...Entry) *Registry {
	return buildRegistry(scopes, entries, defaultLogger())
}

// defaultLogger is the global zerolog logger, as configured by the caller.
func defaultLogger() zerolog.Logger { return log.Logger }

func buildRegistry(scopes []Scope, entries []Entry, logger zerolog.Logger) *Registry {
	data := sortScopes(scopes)
	items := make([]*binding, 0, len(entries))
	keys := make(map[*binding]Scope, len(entries))
	for _, e := range entries {
		items = append(items, e.b)
		keys[e.b] = e.s
	}
	levels := partition(data, items, func(b *binding) (reflect.Type, Scope) { return b.typ, keys[b] }, logger)

	deepest := levels[len(levels)-1]
	deepest.bindings[containerType] = &binding{
		typ:    containerType,
		scope:  deepest.scope,
		create: func(c *Container) (any, error) { return c, nil },
		// The container is never cached in its own node: a cached self
		// reference would keep the handle reachable forever.
		config: Config{CacheProvides: false},
	}
	return &Registry{levels: levels, logger: logger}
}

// Scopes returns the registry's scopes ordered root-to-leaf.
func (r *Registry) Scopes() []ScopeData {
	out := make([]ScopeData, len(r.levels))
	for i, l := range r.levels {
		out[i] = l.scope
	}
	return out
}

var containerType = reflect.TypeFor[*Container]()

// ── RegistryBuilder ───────────────────────────────────────────────────────────

// RegistryBuilder collects entries and service providers at startup and
// builds either runtime's registry.
//
//	reg := container.NewRegistryBuilder().
//	    Provide(container.Provide(container.App, NewConfig)).
//	    Register(&DatabaseProvider{}).
//	    Build()
type RegistryBuilder struct {
	scopes    []Scope
	entries   []Entry
	async     []AsyncEntry
	providers *ProviderRegistry
	logger    *zerolog.Logger
}

// NewRegistryBuilder starts a builder. Without scopes it uses DefaultScopes.
func NewRegistryBuilder(scopes ...Scope) *RegistryBuilder {
	if len(scopes) == 0 {
		scopes = DefaultScopes()
	}
	b := &RegistryBuilder{scopes: scopes}
	b.providers = NewProviderRegistry(b)
	return b
}

// Provide appends blocking entries.
func (b *RegistryBuilder) Provide(entries ...Entry) *RegistryBuilder {
	b.entries = append(b.entries, entries...)
	return b
}

// ProvideAsync appends async entries. They are ignored by Build.
func (b *RegistryBuilder) ProvideAsync(entries ...AsyncEntry) *RegistryBuilder {
	b.async = append(b.async, entries...)
	return b
}

// Register adds service providers and runs their Register step.
func (b *RegistryBuilder) Register(providers ...ServiceProvider) *RegistryBuilder {
	for _, p := range providers {
		b.providers.Register(p)
	}
	return b
}

// Providers returns the provider registry, used to boot providers once a
// container exists.
func (b *RegistryBuilder) Providers() *ProviderRegistry { return b.providers }

// WithLogger overrides the zerolog logger used by containers built from
// this registry. The default is zerolog/log.Logger.
func (b *RegistryBuilder) WithLogger(l zerolog.Logger) *RegistryBuilder {
	b.logger = &l
	return b
}

func (b *RegistryBuilder) log() zerolog.Logger {
	if b.logger != nil {
		return *b.logger
	}
	return defaultLogger()
}

// Build builds the blocking registry.
func (b *RegistryBuilder) Build() *Registry {
	return buildRegistry(b.scopes, b.entries, b.log())
}

// BuildAsync builds the async registry, pairing it with the blocking
// entries as the synchronous fallback.
func (b *RegistryBuilder) BuildAsync() *AsyncRegistry {
	return buildAsyncRegistry(b.scopes, b.async, b.entries, b.log())
}
