package graph

import "depgraph/internal/relationship"

// Filter decides whether an edge is accepted for a given traversal
// step, and if so what filter governs edges expanded from that edge's
// target (spec.md §4.2). Filters are pure functions of their
// arguments; they must not read mutable state.
type Filter interface {
	Accept(e relationship.Relationship, p Path, pi PathInfo) (child Filter, ok bool)
}

// FilterFunc adapts a plain function to Filter.
type FilterFunc func(e relationship.Relationship, p Path, pi PathInfo) (Filter, bool)

func (f FilterFunc) Accept(e relationship.Relationship, p Path, pi PathInfo) (Filter, bool) {
	return f(e, p, pi)
}

// AcceptAll accepts every edge and narrows to itself.
type AcceptAll struct{}

func (AcceptAll) Accept(_ relationship.Relationship, _ Path, _ PathInfo) (Filter, bool) {
	return AcceptAll{}, true
}

// ByType accepts only edges whose Type is in the given set.
type ByType struct {
	types map[relationship.Type]bool
}

func NewByType(types ...relationship.Type) ByType {
	set := make(map[relationship.Type]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return ByType{types: set}
}

func (f ByType) Accept(e relationship.Relationship, _ Path, _ PathInfo) (Filter, bool) {
	if !f.types[e.Type] {
		return nil, false
	}
	return f, true
}

// ByScope accepts Dependency edges only when their Scope is in the
// given set; non-Dependency edges always pass (scope is not a concept
// those types carry).
type ByScope struct {
	scopes map[string]bool
}

func NewByScope(scopes ...string) ByScope {
	set := make(map[string]bool, len(scopes))
	for _, s := range scopes {
		set[s] = true
	}
	return ByScope{scopes: set}
}

func (f ByScope) Accept(e relationship.Relationship, _ Path, _ PathInfo) (Filter, bool) {
	if e.Type != relationship.Dependency {
		return f, true
	}
	if !f.scopes[e.Scope] {
		return nil, false
	}
	return f, true
}

// ManagedOnly accepts only managed edges.
type ManagedOnly struct{}

func (f ManagedOnly) Accept(e relationship.Relationship, _ Path, _ PathInfo) (Filter, bool) {
	if !e.Managed {
		return nil, false
	}
	return f, true
}

// ExcludeManaged accepts only unmanaged edges.
type ExcludeManaged struct{}

func (f ExcludeManaged) Accept(e relationship.Relationship, _ Path, _ PathInfo) (Filter, bool) {
	if e.Managed {
		return nil, false
	}
	return f, true
}

// ConcreteOnly accepts only concrete edges.
type ConcreteOnly struct{}

func (f ConcreteOnly) Accept(e relationship.Relationship, _ Path, _ PathInfo) (Filter, bool) {
	if !e.Concrete {
		return nil, false
	}
	return f, true
}

// MaxDepth accepts edges while remaining > 0, decrementing for each
// accepted step. The zero value rejects everything, matching an
// exhausted budget.
type MaxDepth struct {
	remaining int
}

func NewMaxDepth(n int) MaxDepth {
	return MaxDepth{remaining: n}
}

func (f MaxDepth) Accept(_ relationship.Relationship, _ Path, _ PathInfo) (Filter, bool) {
	if f.remaining <= 0 {
		return nil, false
	}
	return MaxDepth{remaining: f.remaining - 1}, true
}

// allOf is the child filter produced by AllOf: the conjunction of
// every child's own returned child filter.
type allOf struct {
	children []Filter
}

// AllOf accepts an edge only when every filter accepts it, narrowing
// to the conjunction of their returned child filters.
func AllOf(filters ...Filter) Filter {
	return allOf{children: filters}
}

func (f allOf) Accept(e relationship.Relationship, p Path, pi PathInfo) (Filter, bool) {
	next := make([]Filter, 0, len(f.children))
	for _, c := range f.children {
		child, ok := c.Accept(e, p, pi)
		if !ok {
			return nil, false
		}
		next = append(next, child)
	}
	return allOf{children: next}, true
}

// anyOf is the child filter produced by AnyOf.
type anyOf struct {
	children []Filter
}

// AnyOf accepts an edge when at least one filter accepts it. The
// child filter only narrows the filters that accepted; filters that
// rejected this edge are dropped from future consideration down this
// branch.
func AnyOf(filters ...Filter) Filter {
	return anyOf{children: filters}
}

func (f anyOf) Accept(e relationship.Relationship, p Path, pi PathInfo) (Filter, bool) {
	var next []Filter
	for _, c := range f.children {
		if child, ok := c.Accept(e, p, pi); ok {
			next = append(next, child)
		}
	}
	if len(next) == 0 {
		return nil, false
	}
	return anyOf{children: next}, true
}

// not inverts a single filter's accept/reject decision. Because Not
// cannot know what the wrapped filter would have narrowed to on
// rejection, it keeps narrowing itself -- the wrapped filter is
// re-evaluated fresh at every step.
type not struct {
	inner Filter
}

// Not accepts an edge iff f rejects it.
func Not(f Filter) Filter {
	return not{inner: f}
}

func (f not) Accept(e relationship.Relationship, p Path, pi PathInfo) (Filter, bool) {
	if _, ok := f.inner.Accept(e, p, pi); ok {
		return nil, false
	}
	return f, true
}
