package container

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ── AsyncRegistry ─────────────────────────────────────────────────────────────

// AsyncRegistry is the registry of the async runtime. It carries the
// blocking registry used as the fallback at every scope.
type AsyncRegistry struct {
	levels []*scopedRegistry[*asyncBinding]
	sync   *Registry
	logger zerolog.Logger
}

// BuildAsyncRegistry partitions async entries by scope and builds the
// blocking fallback registry from sync entries. Both share one scope list.
//
//	reg := container.BuildAsyncRegistry(container.DefaultScopes(),
//	    []container.AsyncEntry{container.ProvideAsync(container.App, dial)},
//	    container.Provide(container.App, LoadConfig),
//	)
func BuildAsyncRegistry(scopes []Scope, async []AsyncEntry, sync ...Entry) *AsyncRegistry {
	return buildAsyncRegistry(scopes, async, sync, defaultLogger())
}

func buildAsyncRegistry(scopes []Scope, async []AsyncEntry, sync []Entry, logger zerolog.Logger) *AsyncRegistry {
	data := sortScopes(scopes)
	items := make([]*asyncBinding, 0, len(async))
	keys := make(map[*asyncBinding]Scope, len(async))
	for _, e := range async {
		items = append(items, e.b)
		keys[e.b] = e.s
	}
	levels := partition(data, items, func(b *asyncBinding) (reflect.Type, Scope) { return b.typ, keys[b] }, logger)

	deepest := levels[len(levels)-1]
	deepest.bindings[asyncContainerType] = &asyncBinding{
		typ:    asyncContainerType,
		scope:  deepest.scope,
		create: func(_ context.Context, c *AsyncContainer) (any, error) { return c, nil },
		config: Config{CacheProvides: false},
	}
	return &AsyncRegistry{
		levels: levels,
		sync:   buildRegistry(scopes, sync, logger),
		logger: logger,
	}
}

var asyncContainerType = reflect.TypeFor[*AsyncContainer]()

// ── AsyncContainer ────────────────────────────────────────────────────────────

// AsyncContainer is the context-aware counterpart of Container. Factories
// and finalizers receive the caller's context and node state is guarded by
// a lock whose acquisition honors cancellation. Each AsyncContainer is paired
// with a Container at the same scope; bindings missing from the async
// registry are resolved there.
type AsyncContainer struct {
	n      *node[*asyncBinding]
	parent *AsyncContainer
	sync   *Container
}

// NewAsync creates the root async container and descends past leading
// skipped scopes.
func NewAsync(r *AsyncRegistry) *AsyncContainer {
	root := newAsyncContainer(
		newRoot(r.levels, r.logger, newSemaphoreLocker),
		nil,
		newContainer(newRoot(r.sync.levels, r.logger, newMutexLocker), nil),
	)
	return skipLeading(root)
}

// NewAsyncWithStartScope creates the root async container and descends
// until scope s. It panics if s is not part of the registry.
func NewAsyncWithStartScope(r *AsyncRegistry, s Scope) *AsyncContainer {
	root := newAsyncContainer(
		newRoot(r.levels, r.logger, newSemaphoreLocker),
		nil,
		newContainer(newRoot(r.sync.levels, r.logger, newMutexLocker), nil),
	)
	return startAt(root, s)
}

func newAsyncContainer(n *node[*asyncBinding], parent *AsyncContainer, sync *Container) *AsyncContainer {
	c := &AsyncContainer{n: n, parent: parent, sync: sync}
	runtime.AddCleanup(c, releaseNode[*asyncBinding], n)
	return c
}

func (c *AsyncContainer) spawn(values Context, closeParent bool) *AsyncContainer {
	return newAsyncContainer(
		c.n.spawn(values, closeParent),
		c,
		c.sync.spawn(values, closeParent),
	)
}

// Enter starts building a child container.
func (c *AsyncContainer) Enter() *AsyncChildBuilder {
	return &AsyncChildBuilder{parent: c}
}

// EnterBuild is Enter().Build().
func (c *AsyncContainer) EnterBuild() (*AsyncContainer, error) {
	return c.Enter().Build()
}

// Scope returns the container's scope.
func (c *AsyncContainer) Scope() ScopeData { return c.n.scope() }

// ChildScopes returns the scopes below this container, nearest first.
func (c *AsyncContainer) ChildScopes() []ScopeData { return c.n.childScopes() }

// Parent returns the parent container, or nil at the root.
func (c *AsyncContainer) Parent() *AsyncContainer { return c.parent }

// Sync returns the paired blocking container.
func (c *AsyncContainer) Sync() *Container { return c.sync }

// ID identifies the node in logs.
func (c *AsyncContainer) ID() uuid.UUID { return c.n.id }

// Close runs the async finalizers newest first, then closes the paired
// blocking container, then cascades like Container.Close. The only error is
// ctx ending before the node lock was acquired.
func (c *AsyncContainer) Close(ctx context.Context) error {
	if err := c.n.closeLevel(ctx); err != nil {
		return fmt.Errorf("container: close %s: %w", c.Scope(), err)
	}
	_ = c.sync.n.closeLevel(ctx)
	if c.n.closeParent && c.parent != nil {
		return c.parent.Close(ctx)
	}
	return nil
}

// ── Resolution ────────────────────────────────────────────────────────────────

// GetAsync resolves the shared instance of T.
//
//	pool, err := container.GetAsync[*Pool](ctx, req)
func GetAsync[T any](ctx context.Context, c *AsyncContainer) (T, error) {
	v, err := c.get(ctx, reflect.TypeFor[T]())
	if err != nil {
		var zero T
		return zero, err
	}
	return cast[T](v)
}

// GetTransientAsync runs T's factory again and returns the fresh value.
func GetTransientAsync[T any](ctx context.Context, c *AsyncContainer) (T, error) {
	v, err := c.getTransient(ctx, reflect.TypeFor[T]())
	if err != nil {
		var zero T
		return zero, err
	}
	return cast[T](v)
}

func (c *AsyncContainer) ancestor(hops int) *AsyncContainer {
	cur := c
	for ; hops > 0; hops-- {
		cur = cur.parent
	}
	return cur
}

func (c *AsyncContainer) get(ctx context.Context, t reflect.Type) (any, error) {
	v, ok, err := c.n.cached(ctx, t)
	if err != nil {
		return nil, err
	}
	if ok {
		return v, nil
	}

	b, hops, ok := c.n.locate(t)
	if !ok {
		return c.fallback(c.n.missing(t), func() (any, error) { return c.sync.get(t) })
	}
	if hops > 0 {
		v, err := c.ancestor(hops).get(ctx, t)
		if err != nil || !b.config.CacheProvides {
			return v, err
		}
		return c.n.adopt(context.WithoutCancel(ctx), t, v)
	}

	v, err = c.instantiate(ctx, b)
	if err != nil {
		return nil, err
	}
	if !b.config.CacheProvides {
		return v, nil
	}
	// The value exists now; it is stored even if ctx ended meanwhile.
	return c.n.store(context.WithoutCancel(ctx), t, v, b.finalize)
}

func (c *AsyncContainer) getTransient(ctx context.Context, t reflect.Type) (any, error) {
	b, hops, ok := c.n.locate(t)
	if !ok {
		return c.fallback(c.n.missing(t), func() (any, error) { return c.sync.getTransient(t) })
	}
	if hops > 0 {
		return c.ancestor(hops).getTransient(ctx, t)
	}
	return c.instantiate(ctx, b)
}

// fallback resolves on the paired blocking container after the async
// lookup failed with miss. A blocking miss reports the async error when
// that one is more specific.
func (c *AsyncContainer) fallback(miss error, resolve func() (any, error)) (any, error) {
	v, err := resolve()
	if err == nil {
		return v, nil
	}
	if errors.Is(err, ErrNoInstantiator) && !errors.Is(err, ErrInstantiator) && errors.Is(miss, ErrNoAccessible) {
		return nil, miss
	}
	return nil, err
}

func (c *AsyncContainer) instantiate(ctx context.Context, b *asyncBinding) (any, error) {
	v, err := b.create(ctx, c)
	if err != nil {
		logFailure(c.n, b.typ, err)
		return nil, instantiatorFailed(b.typ, err)
	}
	if err := checkType(b.typ, v); err != nil {
		return nil, err
	}
	c.n.logger.Debug().Str("type", b.typ.String()).Msg("Instantiated")
	return v, nil
}
