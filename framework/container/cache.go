package container

import (
	"context"
	"reflect"
)

// resolved is one finalizer-bound value, kept in production order.
type resolved struct {
	typ      reflect.Type
	value    any
	finalize func(ctx context.Context, v any) error
}

// cache is the mutable state of one container node. It is always accessed
// under the node's lock.
type cache struct {
	entries  map[reflect.Type]any
	resolved []resolved

	// seed is the baseline restored on close: the parent's entries at the
	// time the node was created plus the node's Context values.
	seed map[reflect.Type]any
}

func newCache() *cache {
	return &cache{
		entries: make(map[reflect.Type]any),
		seed:    make(map[reflect.Type]any),
	}
}

// child copies the entries, not the map, so later insertions on either
// side stay invisible to the other.
func (c *cache) child(ctx Context) *cache {
	entries := make(map[reflect.Type]any, len(c.entries)+len(ctx.values))
	for k, v := range c.entries {
		entries[k] = v
	}
	for k, v := range ctx.values {
		entries[k] = v
	}
	seed := make(map[reflect.Type]any, len(entries))
	for k, v := range entries {
		seed[k] = v
	}
	return &cache{entries: entries, seed: seed}
}

func (c *cache) get(t reflect.Type) (any, bool) {
	v, ok := c.entries[t]
	return v, ok
}

// insert stores v unless another value won the race first; the stored
// value is returned either way.
func (c *cache) insert(t reflect.Type, v any) any {
	if existing, ok := c.entries[t]; ok {
		return existing
	}
	c.entries[t] = v
	return v
}

func (c *cache) pushResolved(r resolved) {
	c.resolved = append(c.resolved, r)
}

// takeResolved hands the resolved list to the caller and resets the
// entries to the seed baseline.
func (c *cache) takeResolved() []resolved {
	out := c.resolved
	c.resolved = nil
	c.entries = make(map[reflect.Type]any, len(c.seed))
	for k, v := range c.seed {
		c.entries[k] = v
	}
	return out
}
