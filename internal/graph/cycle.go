package graph

import (
	"context"
	"fmt"

	"depgraph/internal/coordinate"
	"depgraph/internal/relationship"
	"depgraph/internal/store"
)

// Cycle is a minimal cycle discovered by the CycleDetector: the RID of
// the edge whose far endpoint closes the loop (the "injector"), plus
// the Path of the loop itself: the edges from the first occurrence of
// the re-encountered node up to and including the injector.
type Cycle struct {
	Injector relationship.RID
	Path     Path
}

// CycleCacheUpdater is the Visitor the CycleDetector drives: it records
// every cycle it observes and flags the injecting edge in the store so
// later avoid-cycles traversals can skip it in O(1) (spec.md §4.7).
type CycleCacheUpdater struct {
	NopVisitor

	ctx   context.Context
	store store.Store

	Cycles []Cycle
	err    error
}

// NewCycleCacheUpdater returns a CycleCacheUpdater for a single
// GetCycles pass.
func NewCycleCacheUpdater(ctx context.Context, st store.Store) *CycleCacheUpdater {
	return &CycleCacheUpdater{ctx: ctx, store: st}
}

// CycleDetected implements Visitor: it marks the injecting edge and
// appends the cycle to Cycles. Traverse only calls this when
// AvoidCycles is false, matching spec.md §4.7's "linear scan... when
// the view has not yet established its cycle cache".
func (u *CycleCacheUpdater) CycleDetected(cyclePath Path, injector relationship.RID) {
	if u.err != nil {
		return
	}
	if err := u.store.MarkCyclesInjected(u.ctx, injector); err != nil {
		u.err = err
		return
	}
	u.Cycles = append(u.Cycles, Cycle{Injector: injector, Path: cyclePath})
}

// Err returns the first error encountered while updating the cycle
// cache, if any.
func (u *CycleCacheUpdater) Err() error { return u.err }

// GetCycles returns v's cycle cache, computing it with a full
// avoid-cycles-disabled traversal only when v.CyclePending is set
// (spec.md §4.7: "Lazy, per-view; a view's cycle cache is empty until
// the first GetCycles call forces a full scan." and "Return all cycles
// in the cache"). A fresh scan also flags each injecting edge in the
// store, records the result on v.Cycles, and clears CyclePending.
func GetCycles(ctx context.Context, st store.Store, v *View) ([]Cycle, error) {
	if !v.CyclePending {
		return v.Cycles, nil
	}

	updater := NewCycleCacheUpdater(ctx, st)
	opts := TraversalOptions{
		Start:       v.Roots,
		Direction:   DirectionOut,
		Uniqueness:  RelationshipPath,
		AvoidCycles: false,
		Sorted:      true,
	}
	if err := Traverse(ctx, st, v, opts, updater); err != nil {
		return nil, fmt.Errorf("graph: cycle scan failed: %w", err)
	}
	if updater.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrDriverFailure, updater.Err())
	}
	v.Cycles = updater.Cycles
	v.CyclePending = false
	return v.Cycles, nil
}

// ViewUpdater is the Visitor RegisterView/AddRelationships drives to
// re-materialize a view's ViewCache after a store mutation (spec.md
// §4.6). It supplies the roots' initial PathInfo (the Engine seeds the
// roots themselves), records every accepted Path, and keeps the
// ViewCache's two secondary indices current. It resolves each accepted
// edge's end-node NID itself (via the store) since the Visitor
// interface only carries coordinates, keeping that interface free of
// store-shaped parameters for visitors that don't need them.
type ViewUpdater struct {
	NopVisitor

	ctx   context.Context
	store store.Store
	view  *View
	cache *ViewCache
	dir   Direction

	err error
}

// NewViewUpdater returns a ViewUpdater writing into cache for view v.
func NewViewUpdater(ctx context.Context, st store.Store, v *View, cache *ViewCache, dir Direction) *ViewUpdater {
	return &ViewUpdater{ctx: ctx, store: st, view: v, cache: cache, dir: dir}
}

func (u *ViewUpdater) InitializePathInfo(p Path) PathInfo {
	return initialPathInfo(u.view)
}

// HasSeen reports whether p is already cached, implementing spec.md
// §4.6's re-materialization idempotency (re-running over an
// already-cached prefix is a no-op).
func (u *ViewUpdater) HasSeen(p Path, _ PathInfo) bool {
	_, exists := u.cache.Paths[p.Key()]
	return exists
}

// IncludingChild resolves the end node and records the path in the
// ViewCache.
func (u *ViewUpdater) IncludingChild(e relationship.Relationship, newPath Path, newInfo PathInfo, fromPath Path) {
	if u.err != nil {
		return
	}
	var target coordinate.Coordinate
	if u.dir == DirectionIn {
		target = e.Declaring
	} else {
		target = e.Target
	}
	nid, ok, err := u.store.NodeByIndex(u.ctx, store.IndexByGAV, target.GAV().String())
	if err != nil {
		u.err = err
		return
	}
	if !ok {
		u.err = fmt.Errorf("graph: node for %s missing during re-materialization", target)
		return
	}
	rid, _ := newPath.LastRID()
	touched := u.touchedNodes(fromPath, nid)
	u.cache.AddPath(newPath, newInfo, rid, nid, touched)
}

// touchedNodes re-resolves every node along fromPath plus the new end
// node, for the byContainsNode index. Re-resolving from RIDs keeps
// ViewCache itself free of any store dependency.
func (u *ViewUpdater) touchedNodes(fromPath Path, endNode coordinate.NID) []coordinate.NID {
	out := make([]coordinate.NID, 0, fromPath.Len()+1)
	for _, rid := range fromPath.Iter() {
		edge, err := u.store.GetEdge(u.ctx, rid)
		if err != nil {
			u.err = err
			return nil
		}
		c := edge.Target
		if u.dir == DirectionIn {
			c = edge.Declaring
		}
		nid, ok, err := u.store.NodeByIndex(u.ctx, store.IndexByGAV, c.GAV().String())
		if err != nil {
			u.err = err
			return nil
		}
		if ok {
			out = append(out, nid)
		}
	}
	out = append(out, endNode)
	return out
}

// Err returns the first error encountered while re-materializing.
func (u *ViewUpdater) Err() error { return u.err }

// PathExistenceVisitor answers "is target reachable from this view's
// roots", stopping the walk the moment it is satisfied (spec.md §4.5
// early-exit visitors).
type PathExistenceVisitor struct {
	NopVisitor

	target coordinate.GAV
	dir    Direction

	Found     bool
	FoundPath Path
}

// NewPathExistenceVisitor returns a visitor that stops the first time
// it sees a path whose end node is target.
func NewPathExistenceVisitor(target coordinate.GAV, dir Direction) *PathExistenceVisitor {
	return &PathExistenceVisitor{target: target, dir: dir}
}

func (v *PathExistenceVisitor) IsEnabledFor(Path) bool { return !v.Found }

func (v *PathExistenceVisitor) IncludeChildren(_ Path, _ PathInfo) bool { return !v.Found }

func (v *PathExistenceVisitor) IncludingChild(e relationship.Relationship, newPath Path, _ PathInfo, _ Path) {
	if v.Found {
		return
	}
	c := e.Target
	if v.dir == DirectionIn {
		c = e.Declaring
	}
	if c.GAV() == v.target {
		v.Found = true
		v.FoundPath = newPath
	}
}

// RootedRelationshipsVisitor collects every distinct Relationship
// reachable from a view's roots, used by the "all relationships rooted
// at X" query family (spec.md §12).
type RootedRelationshipsVisitor struct {
	NopVisitor

	seen      map[relationship.RID]struct{}
	Relations []relationship.Relationship
}

// NewRootedRelationshipsVisitor returns an empty collector.
func NewRootedRelationshipsVisitor() *RootedRelationshipsVisitor {
	return &RootedRelationshipsVisitor{seen: map[relationship.RID]struct{}{}}
}

func (v *RootedRelationshipsVisitor) IncludingChild(e relationship.Relationship, _ Path, _ PathInfo, _ Path) {
	if _, ok := v.seen[e.ID]; ok {
		return
	}
	v.seen[e.ID] = struct{}{}
	v.Relations = append(v.Relations, e)
}
