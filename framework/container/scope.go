package container

import (
	"fmt"
	"sort"
)

// ── Scope model ───────────────────────────────────────────────────────────────

// Scope is a named level in the container tree. Priorities must strictly
// increase from the root scope to the leaf scope.
//
//	type TenantScope uint8
//	func (s TenantScope) Name() string           { return "tenant" }
//	func (s TenantScope) Priority() uint8        { return uint8(s) }
//	func (s TenantScope) SkippedByDefault() bool { return false }
type Scope interface {
	Name() string
	Priority() uint8

	// SkippedByDefault reports whether the scope is passed over when a
	// caller asks for "the next scope". Skipped scopes are still
	// materialized as nodes so the ancestor chain stays intact.
	SkippedByDefault() bool
}

// ScopeData is the resolved, comparable form of a Scope.
type ScopeData struct {
	Priority         uint8
	Name             string
	SkippedByDefault bool
}

// DataOf converts any Scope to its ScopeData.
func DataOf(s Scope) ScopeData {
	return ScopeData{
		Priority:         s.Priority(),
		Name:             s.Name(),
		SkippedByDefault: s.SkippedByDefault(),
	}
}

func (d ScopeData) String() string {
	return fmt.Sprintf("%s (%d priority)", d.Name, d.Priority)
}

// DefaultScope is the built-in six-level scope ladder.
type DefaultScope uint8

const (
	// Runtime is the process-wide scope. Skipped by default.
	Runtime DefaultScope = iota
	// App lives as long as the application.
	App
	// Session spans a long-lived connection (websocket, bot chat). Skipped by default.
	Session
	// Request spans a single request.
	Request
	// Action spans one unit of work inside a request.
	Action
	// Step is the narrowest scope.
	Step
)

var defaultScopeNames = [...]string{"runtime", "app", "session", "request", "action", "step"}

func (s DefaultScope) Name() string {
	if int(s) < len(defaultScopeNames) {
		return defaultScopeNames[s]
	}
	return fmt.Sprintf("scope(%d)", uint8(s))
}

func (s DefaultScope) Priority() uint8 { return uint8(s) }

func (s DefaultScope) SkippedByDefault() bool { return s == Runtime || s == Session }

func (s DefaultScope) String() string { return s.Name() }

// DefaultScopes returns Runtime, App, Session, Request, Action and Step.
func DefaultScopes() []Scope {
	return []Scope{Runtime, App, Session, Request, Action, Step}
}

// sortScopes orders scopes root-to-leaf and rejects structurally impossible
// input: an empty list or two scopes sharing a priority.
func sortScopes(scopes []Scope) []ScopeData {
	if len(scopes) == 0 {
		panic("container: at least one scope is required to build a registry")
	}
	out := make([]ScopeData, 0, len(scopes))
	for _, s := range scopes {
		out = append(out, DataOf(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	for i := 1; i < len(out); i++ {
		if out[i].Priority == out[i-1].Priority {
			panic(fmt.Sprintf("container: scopes %q and %q share priority %d",
				out[i-1].Name, out[i].Name, out[i].Priority))
		}
	}
	return out
}
