package container

import (
	"errors"
	"fmt"
	"reflect"
)

// ── Resolution errors ─────────────────────────────────────────────────────────

var (
	// ErrNoInstantiator means no binding for the type is reachable from the container.
	ErrNoInstantiator = errors.New("container: no instantiator")
	// ErrNoAccessible means the binding exists only in a narrower scope.
	ErrNoAccessible = errors.New("container: instantiator not accessible from this scope")
	// ErrIncorrectType means a stored or produced value does not match the requested type.
	ErrIncorrectType = errors.New("container: incorrect type")
	// ErrInstantiator wraps a failed dependency resolution or factory call.
	ErrInstantiator = errors.New("container: instantiator failed")
)

// ResolveError describes a failed Get / GetTransient.
//
//	_, err := container.Get[*Repo](c)
//	if errors.Is(err, container.ErrNoAccessible) { ... }
//
//	var rerr *container.ResolveError
//	if errors.As(err, &rerr) { log.Println(rerr.Expected, rerr.Actual) }
type ResolveError struct {
	Kind error
	Type reflect.Type

	// Expected and Actual are set for ErrNoAccessible: the binding's scope
	// and the scope of the container the lookup started from.
	Expected ScopeData
	Actual   ScopeData

	// Got is the dynamic type seen for ErrIncorrectType.
	Got reflect.Type

	// Err is the *InstantiatorError for ErrInstantiator.
	Err error
}

func (e *ResolveError) Error() string {
	switch e.Kind {
	case ErrNoInstantiator:
		return fmt.Sprintf("container: instantiator for %s not found in registry", typeName(e.Type))
	case ErrNoAccessible:
		return fmt.Sprintf("container: instantiator for %s not accessible, you can't access the instantiator from a child scope. actual scope: %s, expected: %s",
			typeName(e.Type), e.Actual, e.Expected)
	case ErrIncorrectType:
		return fmt.Sprintf("container: incorrect instantiator provides type. actual: %s, expected: %s",
			typeName(e.Got), typeName(e.Type))
	default:
		if e.Err != nil {
			return e.Err.Error()
		}
		return e.Kind.Error()
	}
}

func (e *ResolveError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// Stage tells which half of an instantiator failed.
type Stage uint8

const (
	// StageDeps means a declared dependency could not be resolved.
	StageDeps Stage = iota
	// StageFactory means the user factory returned an error.
	StageFactory
)

func (s Stage) String() string {
	if s == StageDeps {
		return "deps"
	}
	return "factory"
}

// InstantiatorError wraps a nested failure unchanged. There is no retry.
type InstantiatorError struct {
	Stage Stage
	Type  reflect.Type
	Err   error
}

func (e *InstantiatorError) Error() string {
	return fmt.Sprintf("container: %s of %s: %v", e.Stage, typeName(e.Type), e.Err)
}

func (e *InstantiatorError) Unwrap() error { return e.Err }

func noInstantiator(t reflect.Type) *ResolveError {
	return &ResolveError{Kind: ErrNoInstantiator, Type: t}
}

func noAccessible(t reflect.Type, expected, actual ScopeData) *ResolveError {
	return &ResolveError{Kind: ErrNoAccessible, Type: t, Expected: expected, Actual: actual}
}

func incorrectType(t, got reflect.Type) *ResolveError {
	return &ResolveError{Kind: ErrIncorrectType, Type: t, Got: got}
}

func instantiatorFailed(t reflect.Type, err error) *ResolveError {
	return &ResolveError{Kind: ErrInstantiator, Type: t, Err: err}
}

// ── Scope navigation errors ───────────────────────────────────────────────────

var (
	// ErrNoChildRegistries means the container is already at the deepest scope.
	ErrNoChildRegistries = errors.New("container: no child registries")
	// ErrNoNonSkippedRegistries means every remaining child scope is skipped by default.
	ErrNoNonSkippedRegistries = errors.New("container: no non-skipped child registries")
	// ErrNoChildRegistriesWithScope means the requested scope is not below this container.
	ErrNoChildRegistriesWithScope = errors.New("container: no child registries with scope")
)

// ScopeError is returned by the child builders. It is an ordinary,
// recoverable result: callers use it to check for an optional next scope.
type ScopeError struct {
	Kind error
	// Scope is the requested scope for ErrNoChildRegistriesWithScope.
	Scope ScopeData
}

func (e *ScopeError) Error() string {
	if e.Kind == ErrNoChildRegistriesWithScope {
		return fmt.Sprintf("%s %s", e.Kind, e.Scope)
	}
	return e.Kind.Error()
}

func (e *ScopeError) Unwrap() error { return e.Kind }

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
