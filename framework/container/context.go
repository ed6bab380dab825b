package container

import "reflect"

// Context holds caller-supplied values that are seeded into a new
// container's cache before any resolution, so factories can depend on them
// as if they were factory-produced. A Context is immutable: WithValue
// returns a copy.
//
//	ctx := container.WithValue(container.Context{}, req) // *http.Request
//	reqC, err := appC.Enter().WithScope(container.Request).WithContext(ctx).Build()
type Context struct {
	values map[reflect.Type]any
}

// WithValue returns a copy of ctx carrying v under the identity of T.
func WithValue[T any](ctx Context, v T) Context {
	values := make(map[reflect.Type]any, len(ctx.values)+1)
	for k, val := range ctx.values {
		values[k] = val
	}
	values[reflect.TypeFor[T]()] = v
	return Context{values: values}
}

// ValueOf returns the value stored under T.
func ValueOf[T any](ctx Context) (T, bool) {
	v, ok := ctx.values[reflect.TypeFor[T]()]
	if !ok {
		var zero T
		return zero, false
	}
	typed, ok := v.(T)
	return typed, ok
}

// Len returns the number of values in the context.
func (ctx Context) Len() int { return len(ctx.values) }

// merge overlays other on top of ctx.
func (ctx Context) merge(other Context) Context {
	if len(other.values) == 0 {
		return ctx
	}
	if len(ctx.values) == 0 {
		return other
	}
	values := make(map[reflect.Type]any, len(ctx.values)+len(other.values))
	for k, v := range ctx.values {
		values[k] = v
	}
	for k, v := range other.values {
		values[k] = v
	}
	return Context{values: values}
}
