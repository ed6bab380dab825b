package container

import "fmt"

// ── Scope navigation ──────────────────────────────────────────────────────────

// level is the part of a container handle the navigation code needs. Both
// *Container and *AsyncContainer implement it for themselves.
type level[H any] interface {
	Scope() ScopeData
	ChildScopes() []ScopeData
	spawn(values Context, closeParent bool) H
}

// descend creates child nodes until one matches target, or the next
// non-skipped scope when target is nil. Only the first new node keeps
// closeParent unset, so closing the result cascades through the hidden
// nodes created on the way but never into from.
func descend[H level[H]](from H, values Context, target *ScopeData) (H, error) {
	var zero H
	children := from.ChildScopes()
	if len(children) == 0 {
		return zero, &ScopeError{Kind: ErrNoChildRegistries}
	}
	if err := reachable(children, target); err != nil {
		return zero, err
	}

	child := from.spawn(values, false)
	for !matches(child.Scope(), target) {
		child = child.spawn(values, true)
	}
	return child, nil
}

func reachable(children []ScopeData, target *ScopeData) error {
	for _, s := range children {
		if matches(s, target) {
			return nil
		}
	}
	if target == nil {
		return &ScopeError{Kind: ErrNoNonSkippedRegistries}
	}
	return &ScopeError{Kind: ErrNoChildRegistriesWithScope, Scope: *target}
}

func matches(s ScopeData, target *ScopeData) bool {
	if target == nil {
		return !s.SkippedByDefault
	}
	return s.Priority == target.Priority
}

// skipLeading walks a fresh root past skipped scopes. The deepest scope is
// kept even when it is skipped.
func skipLeading[H level[H]](root H) H {
	cur := root
	for cur.Scope().SkippedByDefault && len(cur.ChildScopes()) > 0 {
		cur = cur.spawn(Context{}, true)
	}
	return cur
}

// startAt walks a fresh root down to scope s, ignoring skip flags.
func startAt[H level[H]](root H, s Scope) H {
	target := DataOf(s)
	cur := root
	if cur.Scope().Priority != target.Priority {
		if err := reachable(cur.ChildScopes(), &target); err != nil {
			panic(fmt.Sprintf("container: start scope %s is not part of the registry", target))
		}
	}
	for cur.Scope().Priority != target.Priority {
		cur = cur.spawn(Context{}, true)
	}
	return cur
}

// ── Child builders ────────────────────────────────────────────────────────────

// ChildBuilder configures the next child of a Container.
//
//	reqC, err := appC.Enter().
//	    WithScope(container.Request).
//	    WithContext(container.WithValue(container.Context{}, r)).
//	    Build()
type ChildBuilder struct {
	parent *Container
	target *ScopeData
	values Context
}

// WithScope descends to exactly s instead of the next non-skipped scope.
// Skipped scopes can be entered this way.
func (b *ChildBuilder) WithScope(s Scope) *ChildBuilder {
	d := DataOf(s)
	b.target = &d
	return b
}

// WithContext seeds values into the new container's cache.
func (b *ChildBuilder) WithContext(ctx Context) *ChildBuilder {
	b.values = ctx
	return b
}

// Build creates the child. The error is a *ScopeError.
func (b *ChildBuilder) Build() (*Container, error) {
	return descend(b.parent, b.values, b.target)
}

// AsyncChildBuilder configures the next child of an AsyncContainer.
type AsyncChildBuilder struct {
	parent *AsyncContainer
	target *ScopeData
	values Context
}

// WithScope descends to exactly s instead of the next non-skipped scope.
func (b *AsyncChildBuilder) WithScope(s Scope) *AsyncChildBuilder {
	d := DataOf(s)
	b.target = &d
	return b
}

// WithContext seeds values into the new container's cache. The paired
// blocking container receives the same values.
func (b *AsyncChildBuilder) WithContext(ctx Context) *AsyncChildBuilder {
	b.values = ctx
	return b
}

// Build creates the child. The error is a *ScopeError.
func (b *AsyncChildBuilder) Build() (*AsyncContainer, error) {
	return descend(b.parent, b.values, b.target)
}
