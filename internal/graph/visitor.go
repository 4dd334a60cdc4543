package graph

import "depgraph/internal/relationship"

// Collector is passed to Visitor.TraverseComplete so a visitor can
// hand back whatever it accumulated without the engine needing to know
// its concrete type.
type Collector interface {
	// Put stores a single named result; concrete visitors document
	// what keys they use.
	Put(key string, value any)
}

// Visitor is the capability-set interface the Traversal Engine drives
// (spec.md §4.5, §9: "parameterized by a Visitor capability set...
// concrete visitors are alternative implementations, not subclasses
// of a common engine"). Every method has a default-safe zero value so
// a visitor that only cares about a subset can embed NopVisitor.
type Visitor interface {
	IsEnabledFor(p Path) bool
	ShouldAvoidRedundantPaths() bool
	SplicePath(p Path) Path
	SplicePathInfo(pi PathInfo) PathInfo
	InitializePathInfo(p Path) PathInfo
	HasSeen(p Path, pi PathInfo) bool
	IncludeChildren(p Path, pi PathInfo) bool
	IncludingChild(e relationship.Relationship, newPath Path, newInfo PathInfo, fromPath Path)
	CycleDetected(cyclePath Path, injector relationship.RID)
	TraverseComplete(c Collector)
}

// NopVisitor implements every Visitor method as a no-op / permissive
// default. Concrete visitors embed it and override only what they
// need, matching spec.md §9(b): "the original 'redundant path
// detection' branch is present but unimplemented; treat as a no-op
// until a concrete policy is specified."
type NopVisitor struct{}

func (NopVisitor) IsEnabledFor(Path) bool           { return true }
func (NopVisitor) ShouldAvoidRedundantPaths() bool  { return false }
func (NopVisitor) SplicePath(p Path) Path           { return p }
func (NopVisitor) SplicePathInfo(pi PathInfo) PathInfo { return pi }
func (NopVisitor) InitializePathInfo(Path) PathInfo { return PathInfo{} }
func (NopVisitor) HasSeen(Path, PathInfo) bool      { return false }
func (NopVisitor) IncludeChildren(Path, PathInfo) bool { return true }
func (NopVisitor) IncludingChild(relationship.Relationship, Path, PathInfo, Path) {}
func (NopVisitor) CycleDetected(Path, relationship.RID)                          {}
func (NopVisitor) TraverseComplete(Collector)                                    {}

// mapCollector is the simple Collector implementation every visitor in
// this package uses.
type mapCollector struct {
	values map[string]any
}

func newMapCollector() *mapCollector {
	return &mapCollector{values: map[string]any{}}
}

func (c *mapCollector) Put(key string, value any) {
	c.values[key] = value
}

func (c *mapCollector) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}
