package graph

import "depgraph/internal/relationship"

// PathInfo is the filter+selector state accumulated along a Path
// (spec.md §4.3). It is produced by a View from its root filter and
// selector, and threaded forward one edge at a time by the Traversal
// Engine.
type PathInfo struct {
	View     *View
	Filter   Filter
	Selector SelectorState
}

// Child returns the PathInfo that would apply to edges expanded from
// e's target, given that e was reached along p. It asks Filter.Accept
// (spec.md §4.2: "the filter in the current PathInfo is consulted");
// on REJECT it returns (PathInfo{}, false), equivalent to the
// spec's Option<PathInfo>::None.
func (pi PathInfo) Child(e relationship.Relationship, p Path) (PathInfo, bool) {
	childFilter, ok := pi.Filter.Accept(e, p, pi)
	if !ok {
		return PathInfo{}, false
	}
	nextSelector := pi.Selector
	if nextSelector != nil {
		nextSelector = nextSelector.Advance(e)
	}
	return PathInfo{View: pi.View, Filter: childFilter, Selector: nextSelector}, true
}

// initialPathInfo builds the PathInfo a View seeds its roots with,
// before any edge has been traversed.
func initialPathInfo(v *View) PathInfo {
	var state SelectorState
	if v.Selector != nil {
		state = v.Selector.InitialState()
	}
	return PathInfo{View: v, Filter: v.Filter, Selector: state}
}
