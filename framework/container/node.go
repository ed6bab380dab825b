package container

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// ── Locks ─────────────────────────────────────────────────────────────────────

// locker guards a node's cache. It is never held while user code runs.
type locker interface {
	acquire(ctx context.Context) error
	release()
}

type mutexLocker struct{ mu sync.Mutex }

func newMutexLocker() locker { return &mutexLocker{} }

func (l *mutexLocker) acquire(context.Context) error {
	l.mu.Lock()
	return nil
}

func (l *mutexLocker) release() { l.mu.Unlock() }

// semaphoreLocker is the async lock: acquisition gives up when ctx is done.
type semaphoreLocker struct{ sem *semaphore.Weighted }

func newSemaphoreLocker() locker { return &semaphoreLocker{sem: semaphore.NewWeighted(1)} }

func (l *semaphoreLocker) acquire(ctx context.Context) error { return l.sem.Acquire(ctx, 1) }

func (l *semaphoreLocker) release() { l.sem.Release(1) }

// ── Node ──────────────────────────────────────────────────────────────────────

// node is one level of the container tree. Both runtimes share it; B is the
// binding type of the runtime. A node never references its public handle.
type node[B any] struct {
	id          uuid.UUID
	registry    *scopedRegistry[B]
	children    []*scopedRegistry[B]
	parent      *node[B]
	context     Context
	closeParent bool

	lock    locker
	cache   *cache
	base    zerolog.Logger
	logger  zerolog.Logger
	newLock func() locker
}

func newRoot[B any](levels []*scopedRegistry[B], logger zerolog.Logger, newLock func() locker) *node[B] {
	n := &node[B]{
		id:       uuid.New(),
		registry: levels[0],
		children: levels[1:],
		lock:     newLock(),
		cache:    newCache(),
		base:     logger,
		newLock:  newLock,
	}
	n.logger = nodeLogger(logger, n)
	return n
}

func nodeLogger[B any](logger zerolog.Logger, n *node[B]) zerolog.Logger {
	return logger.With().
		Str("scope", n.registry.scope.Name).
		Str("container_id", n.id.String()).
		Logger()
}

// spawn creates the node for the next child scope. The caller has checked
// that one exists.
func (n *node[B]) spawn(values Context, closeParent bool) *node[B] {
	ctx := n.context.merge(values)

	_ = n.lock.acquire(context.Background())
	c := n.cache.child(ctx)
	n.lock.release()

	child := &node[B]{
		id:          uuid.New(),
		registry:    n.children[0],
		children:    n.children[1:],
		parent:      n,
		context:     ctx,
		closeParent: closeParent,
		lock:        n.newLock(),
		cache:       c,
		base:        n.base,
		newLock:     n.newLock,
	}
	child.logger = nodeLogger(n.base, child)
	child.logger.Debug().Bool("close_parent", closeParent).Msg("Child container created")
	return child
}

func (n *node[B]) scope() ScopeData { return n.registry.scope }

func (n *node[B]) childScopes() []ScopeData {
	out := make([]ScopeData, len(n.children))
	for i, r := range n.children {
		out[i] = r.scope
	}
	return out
}

// locate finds the binding for t in this node's registry or an ancestor's
// and reports how many parent links separate the owner from n.
func (n *node[B]) locate(t reflect.Type) (b B, hops int, ok bool) {
	for cur := n; cur != nil; cur = cur.parent {
		if b, ok = cur.registry.get(t); ok {
			return b, hops, true
		}
		hops++
	}
	return b, 0, false
}

// narrower reports the scope of a child registry binding t, if any.
func (n *node[B]) narrower(t reflect.Type) (ScopeData, bool) {
	for _, r := range n.children {
		if _, ok := r.get(t); ok {
			return r.scope, true
		}
	}
	return ScopeData{}, false
}

// missing builds the error for a type with no binding reachable from n.
func (n *node[B]) missing(t reflect.Type) error {
	if s, ok := n.narrower(t); ok {
		n.logger.Debug().Str("type", t.String()).Str("expected", s.Name).Msg("Instantiator not accessible")
		return noAccessible(t, s, n.scope())
	}
	n.logger.Debug().Str("type", t.String()).Msg("Instantiator not found")
	return noInstantiator(t)
}

func (n *node[B]) cached(ctx context.Context, t reflect.Type) (any, bool, error) {
	if err := n.lock.acquire(ctx); err != nil {
		return nil, false, err
	}
	defer n.lock.release()
	v, ok := n.cache.get(t)
	return v, ok, nil
}

// store caches v and records its finalizer. The first stored value wins and
// is returned.
func (n *node[B]) store(ctx context.Context, t reflect.Type, v any, fin finalizerFunc) (any, error) {
	if err := n.lock.acquire(ctx); err != nil {
		return nil, err
	}
	defer n.lock.release()
	stored := n.cache.insert(t, v)
	if fin != nil {
		n.cache.pushResolved(resolved{typ: t, value: v, finalize: fin})
	}
	return stored, nil
}

// adopt inserts a value produced by an ancestor into this node's cache.
func (n *node[B]) adopt(ctx context.Context, t reflect.Type, v any) (any, error) {
	if err := n.lock.acquire(ctx); err != nil {
		return nil, err
	}
	defer n.lock.release()
	return n.cache.insert(t, v), nil
}

// closeLevel runs this node's finalizers in reverse production order and
// resets the cache to the node's context. It does not cascade.
func (n *node[B]) closeLevel(ctx context.Context) error {
	if err := n.lock.acquire(ctx); err != nil {
		return err
	}
	list := n.cache.takeResolved()
	n.lock.release()

	for i := len(list) - 1; i >= 0; i-- {
		n.finalize(ctx, list[i])
	}
	if len(list) > 0 {
		n.logger.Debug().Int("finalized", len(list)).Msg("Container closed")
	}
	return nil
}

func (n *node[B]) finalize(ctx context.Context, r resolved) {
	defer func() {
		if p := recover(); p != nil {
			n.logger.Error().Str("type", r.typ.String()).Err(fmt.Errorf("panic: %v", p)).Msg("Finalizer panicked")
		}
	}()
	if err := r.finalize(ctx, r.value); err != nil {
		n.logger.Error().Str("type", r.typ.String()).Err(err).Msg("Finalizer failed")
		return
	}
	n.logger.Debug().Str("type", r.typ.String()).Msg("Finalizer called")
}

// checkType verifies that v can stand for t.
func checkType(t reflect.Type, v any) error {
	if v == nil {
		if nilable(t) {
			return nil
		}
		return incorrectType(t, nil)
	}
	if got := reflect.TypeOf(v); !got.AssignableTo(t) {
		return incorrectType(t, got)
	}
	return nil
}

func nilable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return true
	}
	return false
}

// cast converts a resolved value to T.
func cast[T any](v any) (T, error) {
	var zero T
	if v == nil {
		if nilable(reflect.TypeFor[T]()) {
			return zero, nil
		}
		return zero, incorrectType(reflect.TypeFor[T](), nil)
	}
	typed, ok := v.(T)
	if !ok {
		return zero, incorrectType(reflect.TypeFor[T](), reflect.TypeOf(v))
	}
	return typed, nil
}
