package container

import (
	"context"
	"reflect"
)

// Dependency is one declared input of a factory. Dependencies are resolved
// in declaration order against the container that runs the factory.
type Dependency interface {
	// Type is the identity of the dependency.
	Type() reflect.Type
	// Transient reports whether the dependency bypasses the cache.
	Transient() bool

	resolve(c *Container) (any, error)
	resolveAsync(ctx context.Context, c *AsyncContainer) (any, error)
}

type inject struct {
	typ       reflect.Type
	transient bool
}

// Inject declares a cached dependency on T.
//
//	container.ProvideWith(container.Request,
//	    []container.Dependency{container.Inject[*sql.DB](), container.Inject[*Config]()},
//	    func(args container.Args) (*Repo, error) {
//	        return NewRepo(container.Arg[*sql.DB](args, 0), container.Arg[*Config](args, 1)), nil
//	    })
func Inject[T any]() Dependency {
	return inject{typ: reflect.TypeFor[T]()}
}

// InjectTransient declares a dependency on a fresh, uncached T.
func InjectTransient[T any]() Dependency {
	return inject{typ: reflect.TypeFor[T](), transient: true}
}

func (d inject) Type() reflect.Type { return d.typ }
func (d inject) Transient() bool    { return d.transient }

func (d inject) resolve(c *Container) (any, error) {
	if d.transient {
		return c.getTransient(d.typ)
	}
	return c.get(d.typ)
}

func (d inject) resolveAsync(ctx context.Context, c *AsyncContainer) (any, error) {
	if d.transient {
		return c.getTransient(ctx, d.typ)
	}
	return c.get(ctx, d.typ)
}

// Args holds resolved dependency values in declaration order.
type Args []any

// Arg returns the i-th argument as T. A nil value yields the zero T.
// It panics if the value is not a T, which only happens when the
// dependency list and the reads disagree.
func Arg[T any](args Args, i int) T {
	v := args[i]
	if v == nil {
		var zero T
		return zero
	}
	return v.(T)
}

func resolveDeps(c *Container, deps []Dependency) (Args, error) {
	if len(deps) == 0 {
		return nil, nil
	}
	args := make(Args, len(deps))
	for i, d := range deps {
		v, err := d.resolve(c)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

func resolveDepsAsync(ctx context.Context, c *AsyncContainer, deps []Dependency) (Args, error) {
	if len(deps) == 0 {
		return nil, nil
	}
	args := make(Args, len(deps))
	for i, d := range deps {
		v, err := d.resolveAsync(ctx, c)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}
