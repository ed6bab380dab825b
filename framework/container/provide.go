package container

import (
	"context"
	"reflect"
)

// ── Blocking entries ──────────────────────────────────────────────────────────

func newEntry[T any](scope Scope, deps []Dependency, fn func(c *Container, args Args) (T, error), opts []Option) Entry {
	t := reflect.TypeFor[T]()
	return newTypedEntry(scope, t, deps, func(c *Container, args Args) (any, error) {
		v, err := fn(c, args)
		if err != nil {
			return nil, err
		}
		return v, nil
	}, opts)
}

func newTypedEntry(scope Scope, t reflect.Type, deps []Dependency, fn func(c *Container, args Args) (any, error), opts []Option) Entry {
	o := applyOptions(t, opts)
	b := &binding{
		typ:      t,
		scope:    DataOf(scope),
		deps:     deps,
		finalize: o.finalize,
		config:   o.config,
	}
	b.create = func(c *Container) (any, error) {
		args, err := resolveDeps(c, deps)
		if err != nil {
			return nil, &InstantiatorError{Stage: StageDeps, Type: t, Err: err}
		}
		v, err := fn(c, args)
		if err != nil {
			return nil, &InstantiatorError{Stage: StageFactory, Type: t, Err: err}
		}
		return v, nil
	}
	return Entry{b: b, s: scope}
}

// Provide binds a factory without dependencies.
//
//	container.Provide(container.App, func() (*Config, error) { return LoadConfig() })
func Provide[T any](scope Scope, fn func() (T, error), opts ...Option) Entry {
	return newEntry(scope, nil, func(*Container, Args) (T, error) { return fn() }, opts)
}

// Provide1 binds a factory with one cached dependency.
//
//	container.Provide1(container.Request, func(db *sql.DB) (*Repo, error) { return &Repo{db}, nil })
func Provide1[T, A any](scope Scope, fn func(A) (T, error), opts ...Option) Entry {
	return newEntry(scope, []Dependency{Inject[A]()}, func(_ *Container, args Args) (T, error) {
		return fn(Arg[A](args, 0))
	}, opts)
}

// Provide2 binds a factory with two cached dependencies.
func Provide2[T, A, B any](scope Scope, fn func(A, B) (T, error), opts ...Option) Entry {
	return newEntry(scope, []Dependency{Inject[A](), Inject[B]()}, func(_ *Container, args Args) (T, error) {
		return fn(Arg[A](args, 0), Arg[B](args, 1))
	}, opts)
}

// Provide3 binds a factory with three cached dependencies.
func Provide3[T, A, B, C any](scope Scope, fn func(A, B, C) (T, error), opts ...Option) Entry {
	return newEntry(scope, []Dependency{Inject[A](), Inject[B](), Inject[C]()}, func(_ *Container, args Args) (T, error) {
		return fn(Arg[A](args, 0), Arg[B](args, 1), Arg[C](args, 2))
	}, opts)
}

// Provide4 binds a factory with four cached dependencies.
func Provide4[T, A, B, C, D any](scope Scope, fn func(A, B, C, D) (T, error), opts ...Option) Entry {
	return newEntry(scope, []Dependency{Inject[A](), Inject[B](), Inject[C](), Inject[D]()}, func(_ *Container, args Args) (T, error) {
		return fn(Arg[A](args, 0), Arg[B](args, 1), Arg[C](args, 2), Arg[D](args, 3))
	}, opts)
}

// ProvideWith binds a factory with an explicit dependency list, including
// transient ones.
func ProvideWith[T any](scope Scope, deps []Dependency, fn func(Args) (T, error), opts ...Option) Entry {
	return newEntry(scope, deps, func(_ *Container, args Args) (T, error) { return fn(args) }, opts)
}

// ProvideFunc binds a factory that looks up what it needs itself. The
// container passed in is the one the binding is resolved from.
//
//	container.ProvideFunc(container.Request, func(c *container.Container) (*Handler, error) {
//	    if feature, err := container.Get[*Feature](c); err == nil {
//	        return NewHandler(feature), nil
//	    }
//	    return NewHandler(nil), nil
//	})
func ProvideFunc[T any](scope Scope, fn func(*Container) (T, error), opts ...Option) Entry {
	return newEntry(scope, nil, func(c *Container, _ Args) (T, error) { return fn(c) }, opts)
}

// ProvideType binds an untyped factory under an explicit type identity.
// The produced value must be assignable to t, otherwise resolution fails
// with ErrIncorrectType.
func ProvideType(scope Scope, t reflect.Type, deps []Dependency, fn func(Args) (any, error), opts ...Option) Entry {
	return newTypedEntry(scope, t, deps, func(_ *Container, args Args) (any, error) { return fn(args) }, opts)
}

// Instance binds a pre-built value.
//
//	container.Instance(container.Runtime, cfg)
func Instance[T any](scope Scope, v T, opts ...Option) Entry {
	return Provide(scope, func() (T, error) { return v, nil }, opts...)
}

// ── Async entries ─────────────────────────────────────────────────────────────

// asyncBinding is one registered instantiator of the async runtime.
type asyncBinding struct {
	typ      reflect.Type
	scope    ScopeData
	deps     []Dependency
	create   func(ctx context.Context, c *AsyncContainer) (any, error)
	finalize finalizerFunc
	config   Config
}

// AsyncEntry is a registration for the async runtime.
type AsyncEntry struct {
	b *asyncBinding
	s Scope
}

// Type returns the type identity the entry provides.
func (e AsyncEntry) Type() reflect.Type { return e.b.typ }

// Scope returns the scope the entry is bound to.
func (e AsyncEntry) Scope() Scope { return e.s }

func newAsyncEntry[T any](scope Scope, deps []Dependency, fn func(ctx context.Context, c *AsyncContainer, args Args) (T, error), opts []Option) AsyncEntry {
	t := reflect.TypeFor[T]()
	o := applyOptions(t, opts)
	b := &asyncBinding{
		typ:      t,
		scope:    DataOf(scope),
		deps:     deps,
		finalize: o.finalize,
		config:   o.config,
	}
	b.create = func(ctx context.Context, c *AsyncContainer) (any, error) {
		args, err := resolveDepsAsync(ctx, c, deps)
		if err != nil {
			return nil, &InstantiatorError{Stage: StageDeps, Type: t, Err: err}
		}
		v, err := fn(ctx, c, args)
		if err != nil {
			return nil, &InstantiatorError{Stage: StageFactory, Type: t, Err: err}
		}
		return v, nil
	}
	return AsyncEntry{b: b, s: scope}
}

// ProvideAsync binds a context-aware factory without dependencies.
//
//	container.ProvideAsync(container.App, func(ctx context.Context) (*Client, error) {
//	    return Dial(ctx, addr)
//	}, container.WithAsyncFinalizer(func(ctx context.Context, cl *Client) error { return cl.Shutdown(ctx) }))
func ProvideAsync[T any](scope Scope, fn func(ctx context.Context) (T, error), opts ...Option) AsyncEntry {
	return newAsyncEntry(scope, nil, func(ctx context.Context, _ *AsyncContainer, _ Args) (T, error) {
		return fn(ctx)
	}, opts)
}

// ProvideAsyncWith binds a context-aware factory with an explicit dependency list.
func ProvideAsyncWith[T any](scope Scope, deps []Dependency, fn func(ctx context.Context, args Args) (T, error), opts ...Option) AsyncEntry {
	return newAsyncEntry(scope, deps, func(ctx context.Context, _ *AsyncContainer, args Args) (T, error) {
		return fn(ctx, args)
	}, opts)
}

// ProvideAsyncFunc binds a context-aware factory that looks up what it needs itself.
func ProvideAsyncFunc[T any](scope Scope, fn func(ctx context.Context, c *AsyncContainer) (T, error), opts ...Option) AsyncEntry {
	return newAsyncEntry(scope, nil, func(ctx context.Context, c *AsyncContainer, _ Args) (T, error) {
		return fn(ctx, c)
	}, opts)
}
