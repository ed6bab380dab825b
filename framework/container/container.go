package container

import (
	"context"
	"errors"
	"reflect"
	"runtime"

	"github.com/google/uuid"
)

// ── Container ─────────────────────────────────────────────────────────────────

// Container is a handle on one node of the blocking container tree. Copies
// of the pointer share all state. A handle keeps its ancestors alive; when
// it becomes unreachable its node is closed without cascading, the same way
// Close would close it.
type Container struct {
	n      *node[*binding]
	parent *Container
}

// New creates the root container and descends past leading skipped scopes.
// With DefaultScopes the result is at App and its parent is Runtime.
//
//	reg := container.BuildRegistry(container.DefaultScopes(), entries...)
//	app := container.New(reg)
//	defer app.Close()
func New(r *Registry) *Container {
	root := newContainer(newRoot(r.levels, r.logger, newMutexLocker), nil)
	return skipLeading(root)
}

// NewWithStartScope creates the root container and descends until scope s,
// ignoring skip flags. It panics if s is not part of the registry.
//
//	rt := container.NewWithStartScope(reg, container.Runtime)
func NewWithStartScope(r *Registry, s Scope) *Container {
	root := newContainer(newRoot(r.levels, r.logger, newMutexLocker), nil)
	return startAt(root, s)
}

func newContainer(n *node[*binding], parent *Container) *Container {
	c := &Container{n: n, parent: parent}
	runtime.AddCleanup(c, releaseNode[*binding], n)
	return c
}

// releaseNode is the implicit close of a handle that is no longer reachable.
// Ancestors created with closeParent are unreachable too and get their own call.
func releaseNode[B any](n *node[B]) {
	_ = n.closeLevel(context.Background())
}

func (c *Container) spawn(values Context, closeParent bool) *Container {
	return newContainer(c.n.spawn(values, closeParent), c)
}

// Enter starts building a child container.
func (c *Container) Enter() *ChildBuilder {
	return &ChildBuilder{parent: c}
}

// EnterBuild is Enter().Build().
//
//	req, err := app.EnterBuild()
//	if err != nil { return err }
//	defer req.Close()
func (c *Container) EnterBuild() (*Container, error) {
	return c.Enter().Build()
}

// Scope returns the container's scope.
func (c *Container) Scope() ScopeData { return c.n.scope() }

// ChildScopes returns the scopes below this container, nearest first.
func (c *Container) ChildScopes() []ScopeData { return c.n.childScopes() }

// Parent returns the parent container, or nil at the root.
func (c *Container) Parent() *Container { return c.parent }

// ID identifies the node in logs.
func (c *Container) ID() uuid.UUID { return c.n.id }

// Close finalizes everything this container resolved, newest first, and
// resets its cache. It cascades to the parent when the container was
// created as part of a skipped chain. Calling Close again only finalizes
// what was resolved since.
func (c *Container) Close() {
	_ = c.n.closeLevel(context.Background())
	if c.n.closeParent && c.parent != nil {
		c.parent.Close()
	}
}

// ── Resolution ────────────────────────────────────────────────────────────────

// Get resolves the shared instance of T.
//
//	repo, err := container.Get[*Repo](req)
//	if errors.Is(err, container.ErrNoAccessible) { ... }
func Get[T any](c *Container) (T, error) {
	v, err := c.get(reflect.TypeFor[T]())
	if err != nil {
		var zero T
		return zero, err
	}
	return cast[T](v)
}

// MustGet is Get that panics on error. Use it in wiring code only.
func MustGet[T any](c *Container) T {
	v, err := Get[T](c)
	if err != nil {
		panic(err)
	}
	return v
}

// GetTransient runs T's factory again and returns the fresh value. The
// cache is neither read nor written, so Context values are not visible, and
// the value is never finalized.
func GetTransient[T any](c *Container) (T, error) {
	v, err := c.getTransient(reflect.TypeFor[T]())
	if err != nil {
		var zero T
		return zero, err
	}
	return cast[T](v)
}

func (c *Container) ancestor(hops int) *Container {
	cur := c
	for ; hops > 0; hops-- {
		cur = cur.parent
	}
	return cur
}

func (c *Container) get(t reflect.Type) (any, error) {
	ctx := context.Background()
	if v, ok, _ := c.n.cached(ctx, t); ok {
		return v, nil
	}

	b, hops, ok := c.n.locate(t)
	if !ok {
		return nil, c.n.missing(t)
	}
	if hops > 0 {
		v, err := c.ancestor(hops).get(t)
		if err != nil || !b.config.CacheProvides {
			return v, err
		}
		return c.n.adopt(ctx, t, v)
	}

	v, err := c.instantiate(b)
	if err != nil {
		return nil, err
	}
	if !b.config.CacheProvides {
		return v, nil
	}
	return c.n.store(ctx, t, v, b.finalize)
}

func (c *Container) getTransient(t reflect.Type) (any, error) {
	b, hops, ok := c.n.locate(t)
	if !ok {
		return nil, c.n.missing(t)
	}
	if hops > 0 {
		return c.ancestor(hops).getTransient(t)
	}
	return c.instantiate(b)
}

// instantiate runs the factory of a binding owned by c, with no lock held.
func (c *Container) instantiate(b *binding) (any, error) {
	v, err := b.create(c)
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

// logFailure logs a factory error once, at the binding that produced it.
// Dependency failures were already logged further down.
func logFailure[B any](n *node[B], t reflect.Type, err error) {
	var ie *InstantiatorError
	if errors.As(err, &ie) && ie.Stage == StageFactory {
		n.logger.Error().Str("type", t.String()).Err(ie.Err).Msg("Factory failed")
		return
	}
	n.logger.Debug().Str("type", t.String()).Err(err).Msg("Dependency resolution failed")
}
