package graph

import (
	"context"
	"fmt"

	"depgraph/internal/coordinate"
	"depgraph/internal/metrics"
	"depgraph/internal/relationship"
	"depgraph/internal/store"
)

// AddRelationships is the public entry point for adding edges to the
// store (spec.md §4.8). It returns the RIDs of the relationships it
// stored. Per spec.md §9(c), a relationship whose nodes or edge cannot
// be created is dropped and logged rather than reported back to the
// caller, so it is simply absent from the returned slice; err is
// reserved for store/transaction failures.
func (e *Engine) AddRelationships(ctx context.Context, edges ...relationship.Relationship) ([]relationship.RID, error) {
	return e.applyRelationships(ctx, edges)
}

// IntroducesCycle reports whether adding candidate to the store would
// close a loop, without mutating anything: it walks the store from
// candidate's target under v's filter and selector and reports whether
// candidate's declaring coordinate is reachable. The walk starts at the
// target, not at v's roots, and does not consult v's cached paths, so a
// loop that lies outside v is reported as well.
func (e *Engine) IntroducesCycle(ctx context.Context, v *View, candidate relationship.Relationship) (bool, error) {
	v.Touch()
	declGAV := candidate.Declaring.GAV()
	pe := NewPathExistenceVisitor(declGAV, DirectionOut)
	opts := TraversalOptions{
		Start:       []coordinate.Coordinate{candidate.Target},
		Direction:   DirectionOut,
		Uniqueness:  RelationshipPath,
		AvoidCycles: false,
		Sorted:      true,
	}
	if err := Traverse(ctx, e.store, v, opts, pe); err != nil {
		return false, fmt.Errorf("%w: %v", ErrDriverFailure, err)
	}
	return pe.Found, nil
}

// AllProjects returns every coordinate cached as a node of v.
func (e *Engine) AllProjects(ctx context.Context, v *View) ([]coordinate.Coordinate, error) {
	v.Touch()
	cache, ok := e.Cache(v.ShortID)
	if !ok {
		return nil, fmt.Errorf("%w: view %q not registered", ErrInvalidArgument, v.ShortID)
	}
	out := make([]coordinate.Coordinate, 0, len(cache.Nodes))
	for nid := range cache.Nodes {
		c, err := e.store.GetNode(ctx, nid)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDriverFailure, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// AllEdges returns every relationship cached as reachable in v.
func (e *Engine) AllEdges(ctx context.Context, v *View) ([]relationship.Relationship, error) {
	v.Touch()
	cache, ok := e.Cache(v.ShortID)
	if !ok {
		return nil, fmt.Errorf("%w: view %q not registered", ErrInvalidArgument, v.ShortID)
	}
	out := make([]relationship.Relationship, 0, len(cache.Edges))
	for rid := range cache.Edges {
		r, err := e.store.GetEdge(ctx, rid)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDriverFailure, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// DirectFrom returns c's outgoing edges as stored, filtered by
// managed/concrete flags and optionally by type. v is only touched:
// its filter, selector and cached nodes are not applied.
func (e *Engine) DirectFrom(ctx context.Context, v *View, c coordinate.Coordinate, includeManaged, includeConcrete bool, types ...relationship.Type) ([]relationship.Relationship, error) {
	v.Touch()
	nid, ok, err := e.store.NodeByIndex(ctx, store.IndexByGAV, c.GAV().String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDriverFailure, err)
	}
	if !ok {
		return nil, nil
	}
	edges, err := e.store.OutgoingEdges(ctx, nid, types...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDriverFailure, err)
	}
	return filterManagedConcrete(edges, includeManaged, includeConcrete), nil
}

// DirectTo returns c's incoming edges as stored, filtered like
// DirectFrom. v is only touched: its filter, selector and cached nodes
// are not applied.
func (e *Engine) DirectTo(ctx context.Context, v *View, c coordinate.Coordinate, includeManaged, includeConcrete bool, types ...relationship.Type) ([]relationship.Relationship, error) {
	v.Touch()
	nid, ok, err := e.store.NodeByIndex(ctx, store.IndexByGAV, c.GAV().String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDriverFailure, err)
	}
	if !ok {
		return nil, nil
	}
	edges, err := e.store.IncomingEdges(ctx, nid, types...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDriverFailure, err)
	}
	return filterManagedConcrete(edges, includeManaged, includeConcrete), nil
}

func filterManagedConcrete(edges []relationship.Relationship, includeManaged, includeConcrete bool) []relationship.Relationship {
	out := edges[:0:0]
	for _, r := range edges {
		if r.Managed && !includeManaged {
			continue
		}
		if r.Concrete && !includeConcrete {
			continue
		}
		out = append(out, r)
	}
	return out
}

// AllPathsTo returns every cached Path in v terminating at c.
func (e *Engine) AllPathsTo(ctx context.Context, v *View, c coordinate.Coordinate) ([]Path, error) {
	v.Touch()
	cache, ok := e.Cache(v.ShortID)
	if !ok {
		return nil, fmt.Errorf("%w: view %q not registered", ErrInvalidArgument, v.ShortID)
	}
	nid, ok, err := e.store.NodeByIndex(ctx, store.IndexByGAV, c.GAV().String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDriverFailure, err)
	}
	if !ok {
		return nil, nil
	}
	entries := cache.PathsTargeting(nid)
	observeCacheLookup(entries)
	out := make([]Path, 0, len(entries))
	for _, pe := range entries {
		out = append(out, pe.Path)
	}
	return out, nil
}

func observeCacheLookup(entries []PathEntry) {
	if len(entries) > 0 {
		metrics.ViewCacheHitsTotal.Inc()
	} else {
		metrics.ViewCacheMissesTotal.Inc()
	}
}

// PathMapTargeting batches AllPathsTo over cs, one lookup per
// coordinate, keyed by each coordinate's resolved NID.
func (e *Engine) PathMapTargeting(ctx context.Context, v *View, cs []coordinate.Coordinate) (map[coordinate.NID][]Path, error) {
	v.Touch()
	cache, ok := e.Cache(v.ShortID)
	if !ok {
		return nil, fmt.Errorf("%w: view %q not registered", ErrInvalidArgument, v.ShortID)
	}
	out := make(map[coordinate.NID][]Path, len(cs))
	for _, c := range cs {
		nid, ok, err := e.store.NodeByIndex(ctx, store.IndexByGAV, c.GAV().String())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDriverFailure, err)
		}
		if !ok {
			continue
		}
		entries := cache.PathsTargeting(nid)
		observeCacheLookup(entries)
		paths := make([]Path, 0, len(entries))
		for _, pe := range entries {
			paths = append(paths, pe.Path)
		}
		out[nid] = paths
	}
	return out, nil
}

// MissingProjects returns every coordinate in v that has been
// referenced as an edge target but never had an outgoing edge declared
// for it: the intersection of the store-wide missing-nodes index
// (spec.md §4.8) with v's cached Nodes.
func (e *Engine) MissingProjects(ctx context.Context, v *View) ([]coordinate.Coordinate, error) {
	v.Touch()
	cache, ok := e.Cache(v.ShortID)
	if !ok {
		return nil, fmt.Errorf("%w: view %q not registered", ErrInvalidArgument, v.ShortID)
	}
	gavs, err := e.store.EnumerateIndex(ctx, store.IndexMissingNodes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDriverFailure, err)
	}
	return resolveGAVsInView(ctx, e.store, cache, gavs)
}

// VariableProjects returns every coordinate in v whose version is not
// a single literal (a range or unresolved property expression): the
// intersection of the store-wide variable-nodes index with v's cached
// Nodes.
func (e *Engine) VariableProjects(ctx context.Context, v *View) ([]coordinate.Coordinate, error) {
	v.Touch()
	cache, ok := e.Cache(v.ShortID)
	if !ok {
		return nil, fmt.Errorf("%w: view %q not registered", ErrInvalidArgument, v.ShortID)
	}
	gavs, err := e.store.EnumerateIndex(ctx, store.IndexVariableNodes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDriverFailure, err)
	}
	return resolveGAVsInView(ctx, e.store, cache, gavs)
}

func resolveGAVsInView(ctx context.Context, st store.Store, cache *ViewCache, gavs []string) ([]coordinate.Coordinate, error) {
	out := make([]coordinate.Coordinate, 0, len(gavs))
	for _, gav := range gavs {
		nid, ok, err := st.NodeByIndex(ctx, store.IndexByGAV, gav)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDriverFailure, err)
		}
		if !ok {
			continue
		}
		if _, ok := cache.Nodes[nid]; !ok {
			continue
		}
		c, err := st.GetNode(ctx, nid)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDriverFailure, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// GetMetadata returns the requested node-property keys for c, omitting
// any key that is unset.
func (e *Engine) GetMetadata(ctx context.Context, c coordinate.Coordinate, keys ...string) (map[string]string, error) {
	nid, ok, err := e.store.NodeByIndex(ctx, store.IndexByGAV, c.GAV().String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDriverFailure, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: coordinate %s has no node", ErrInvalidArgument, c)
	}
	out := map[string]string{}
	for _, key := range keys {
		val, ok, err := e.store.GetNodeProperty(ctx, nid, key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDriverFailure, err)
		}
		if !ok {
			continue
		}
		s, _ := val.(string)
		out[key] = s
	}
	return out, nil
}

// AddMetadata sets key only if it is not already present; a no-op
// otherwise.
func (e *Engine) AddMetadata(ctx context.Context, c coordinate.Coordinate, key, value string) error {
	nid, ok, err := e.store.NodeByIndex(ctx, store.IndexByGAV, c.GAV().String())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDriverFailure, err)
	}
	if !ok {
		return fmt.Errorf("%w: coordinate %s has no node", ErrInvalidArgument, c)
	}
	if _, exists, err := e.store.GetNodeProperty(ctx, nid, key); err != nil {
		return fmt.Errorf("%w: %v", ErrDriverFailure, err)
	} else if exists {
		return nil
	}
	return e.store.SetNodeProperty(ctx, nid, key, value)
}

// SetMetadata unconditionally overwrites key.
func (e *Engine) SetMetadata(ctx context.Context, c coordinate.Coordinate, key, value string) error {
	nid, ok, err := e.store.NodeByIndex(ctx, store.IndexByGAV, c.GAV().String())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDriverFailure, err)
	}
	if !ok {
		return fmt.Errorf("%w: coordinate %s has no node", ErrInvalidArgument, c)
	}
	return e.store.SetNodeProperty(ctx, nid, key, value)
}

// ProjectsWithMetadata returns every coordinate in v that has key set,
// regardless of value.
func (e *Engine) ProjectsWithMetadata(ctx context.Context, v *View, key string) ([]coordinate.Coordinate, error) {
	v.Touch()
	cache, ok := e.Cache(v.ShortID)
	if !ok {
		return nil, fmt.Errorf("%w: view %q not registered", ErrInvalidArgument, v.ShortID)
	}
	var out []coordinate.Coordinate
	for nid := range cache.Nodes {
		if _, ok, err := e.store.GetNodeProperty(ctx, nid, key); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDriverFailure, err)
		} else if ok {
			c, err := e.store.GetNode(ctx, nid)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrDriverFailure, err)
			}
			out = append(out, c)
		}
	}
	return out, nil
}

// ViewProperty reads a view-scoped configuration property, set with
// SetViewProperty.
func (e *Engine) ViewProperty(ctx context.Context, v *View, key string) (string, bool, error) {
	val, ok, err := e.store.GetViewProperty(ctx, v.ShortID, key)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrDriverFailure, err)
	}
	if !ok {
		return "", false, nil
	}
	s, _ := val.(string)
	return s, true, nil
}

// SetViewProperty writes a view-scoped configuration property.
func (e *Engine) SetViewProperty(ctx context.Context, v *View, key, value string) error {
	if err := e.store.SetViewProperty(ctx, v.ShortID, key, value); err != nil {
		return fmt.Errorf("%w: %v", ErrDriverFailure, err)
	}
	return nil
}

// IsConnected reports whether c has at least one outgoing edge
// declared, i.e. it is not a member of the missing-node set.
func (e *Engine) IsConnected(ctx context.Context, c coordinate.Coordinate) (bool, error) {
	nid, ok, err := e.store.NodeByIndex(ctx, store.IndexByGAV, c.GAV().String())
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDriverFailure, err)
	}
	if !ok {
		return false, nil
	}
	declared, err := e.store.DeclaredOutgoing(ctx, nid)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDriverFailure, err)
	}
	return declared, nil
}

// IsCycleParticipant reports whether c is an endpoint of any edge on
// any cycle in v's own cycle cache (GetCycles), scoped to v rather than
// the store-wide cycle index so a coordinate that only participates in
// some other registered view's cycle is not misreported here.
func (e *Engine) IsCycleParticipant(ctx context.Context, v *View, c coordinate.Coordinate) (bool, error) {
	v.Touch()
	cycles, err := GetCycles(ctx, e.store, v)
	if err != nil {
		return false, err
	}
	target := c.GAV()
	for _, cyc := range cycles {
		for _, rid := range cyc.Path.Iter() {
			r, err := e.store.GetEdge(ctx, rid)
			if err != nil {
				return false, fmt.Errorf("%w: %v", ErrDriverFailure, err)
			}
			if r.Declaring.GAV() == target || r.Target.GAV() == target {
				return true, nil
			}
		}
	}
	return false, nil
}
