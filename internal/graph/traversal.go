package graph

import (
	"context"
	"fmt"

	"depgraph/internal/coordinate"
	"depgraph/internal/relationship"
	"depgraph/internal/store"
)

// Direction controls which side of an edge the Traversal Engine
// expands from.
type Direction int

const (
	DirectionOut Direction = iota
	DirectionIn
)

// Uniqueness selects the per-traversal dedup discipline spec.md §4.5
// names: RELATIONSHIP_PATH for per-view caching (a node may be
// revisited on a different path), RELATIONSHIP_GLOBAL for cycle scans
// (a node is visited once, globally).
type Uniqueness int

const (
	RelationshipPath Uniqueness = iota
	RelationshipGlobal
)

// Strategy picks breadth-first or depth-first expansion order.
type Strategy int

const (
	BreadthFirst Strategy = iota
	DepthFirst
)

// TraversalOptions configures a single Traverse call (spec.md §4.5).
type TraversalOptions struct {
	Start       []coordinate.Coordinate
	Direction   Direction
	Uniqueness  Uniqueness
	AvoidCycles bool
	Sorted      bool
	Strategy    Strategy
}

// frontierItem is the engine's internal queue entry: the cached Path
// abstraction (RIDs only) plus the ephemeral node trail the cycle
// check and store lookups need but which is not part of the persisted
// Path/PathInfo model.
type frontierItem struct {
	path      Path
	info      PathInfo
	node      coordinate.NID
	nodeTrail []coordinate.NID
}

// Traverse implements the breadth-first or depth-first walk of
// spec.md §4.5: at each node it asks the store for candidate edges,
// runs them through Selector then Filter, and emits accepted edges to
// visitor, recording the Path -> PathInfo mapping it discovers.
func Traverse(ctx context.Context, st store.Store, v *View, opts TraversalOptions, visitor Visitor) error {
	if v == nil {
		return fmt.Errorf("%w: view is required", ErrInvalidArgument)
	}
	globalSeen := map[coordinate.NID]bool{}

	var frontier []frontierItem
	for _, root := range opts.Start {
		nid, err := lookupOrErr(ctx, st, root)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		p := EmptyPath()
		info := visitor.InitializePathInfo(p)
		if info.Filter == nil {
			// Visitors that embed NopVisitor return a zero PathInfo;
			// they walk under the view's own filter and selector.
			info = initialPathInfo(v)
		}
		frontier = append(frontier, frontierItem{path: p, info: info, node: nid, nodeTrail: []coordinate.NID{nid}})
	}

	for len(frontier) > 0 {
		var item frontierItem
		if opts.Strategy == DepthFirst {
			item, frontier = frontier[len(frontier)-1], frontier[:len(frontier)-1]
		} else {
			item, frontier = frontier[0], frontier[1:]
		}

		if opts.Uniqueness == RelationshipGlobal {
			if globalSeen[item.node] {
				continue
			}
			globalSeen[item.node] = true
		}

		if !visitor.IsEnabledFor(item.path) {
			continue
		}
		if !visitor.IncludeChildren(item.path, item.info) {
			continue
		}

		candidates, err := fetchCandidates(ctx, st, item.node, opts.Direction)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDriverFailure, err)
		}
		if opts.Sorted {
			sortCandidates(candidates)
		}

		for _, candidate := range candidates {
			if opts.AvoidCycles && candidate.CyclesInjected {
				continue
			}

			resolved, ok, err := resolveSelection(ctx, st, v, candidate, item.path, item.info)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrDriverFailure, err)
			}
			if !ok {
				continue
			}

			endNode, err := endNodeOf(ctx, st, resolved, opts.Direction)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrDriverFailure, err)
			}

			newInfo, ok := item.info.Child(resolved, item.path)
			if !ok {
				continue
			}

			if !opts.AvoidCycles {
				if idx := indexOf(item.nodeTrail, endNode); idx >= 0 {
					// idx indexes nodeTrail (root-relative node positions);
					// the cycle itself only spans the tail of the path from
					// endNode's first occurrence onward, not the full path
					// back to the root.
					cyclePath := CreatePath(item.path.Iter()[idx:])
					visitor.CycleDetected(cyclePath.Append(resolved.ID), resolved.ID)
					continue
				}
			}

			newInfo = visitor.SplicePathInfo(newInfo)
			newPath := visitor.SplicePath(item.path.Append(resolved.ID))

			// A path the visitor has already seen is not emitted again,
			// but it is still expanded so that paths dropped below it
			// (after a selection) or edges added below it are reached.
			if !visitor.HasSeen(newPath, newInfo) {
				visitor.IncludingChild(resolved, newPath, newInfo, item.path)
			}

			trail := append(append([]coordinate.NID(nil), item.nodeTrail...), endNode)
			frontier = append(frontier, frontierItem{path: newPath, info: newInfo, node: endNode, nodeTrail: trail})
		}
	}

	visitor.TraverseComplete(newMapCollector())
	return nil
}

func lookupOrErr(ctx context.Context, st store.Store, c coordinate.Coordinate) (coordinate.NID, error) {
	nid, ok, err := st.NodeByIndex(ctx, store.IndexByGAV, c.GAV().String())
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("coordinate %s has no node", c)
	}
	return nid, nil
}

func fetchCandidates(ctx context.Context, st store.Store, n coordinate.NID, dir Direction) ([]relationship.Relationship, error) {
	if dir == DirectionIn {
		return st.IncomingEdges(ctx, n)
	}
	return st.OutgoingEdges(ctx, n)
}

func endNodeOf(ctx context.Context, st store.Store, r relationship.Relationship, dir Direction) (coordinate.NID, error) {
	var target coordinate.Coordinate
	if dir == DirectionIn {
		target = r.Declaring
	} else {
		target = r.Target
	}
	return lookupOrErr(ctx, st, target)
}

func indexOf(trail []coordinate.NID, n coordinate.NID) int {
	for i, t := range trail {
		if t == n {
			return i
		}
	}
	return -1
}

// sortCandidates orders candidates by (edge-type-priority,
// declaring-coordinate, index, target-coordinate), spec.md §4.5's
// "Tie-breaks and ordering".
func sortCandidates(edges []relationship.Relationship) {
	less := func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.Type != b.Type {
			return typePriority(a.Type) < typePriority(b.Type)
		}
		if a.Declaring.String() != b.Declaring.String() {
			return a.Declaring.String() < b.Declaring.String()
		}
		if a.Index != b.Index {
			return a.Index < b.Index
		}
		return a.Target.String() < b.Target.String()
	}
	insertionSort(edges, less)
}

func typePriority(t relationship.Type) int {
	switch t {
	case relationship.Parent:
		return 0
	case relationship.Bom:
		return 1
	case relationship.Dependency:
		return 2
	case relationship.PluginDep:
		return 3
	case relationship.Plugin:
		return 4
	case relationship.Extension:
		return 5
	default:
		return 6
	}
}

func insertionSort(edges []relationship.Relationship, less func(i, j int) bool) {
	for i := 1; i < len(edges); i++ {
		for j := i; j > 0 && less(j, j-1); j-- {
			edges[j-1], edges[j] = edges[j], edges[j-1]
		}
	}
}

// resolveSelection implements traversal engine step 2 of spec.md
// §4.5: ask the view's Selector, materializing a substitute edge in
// the store when the Selector chooses one, and enforcing the
// selection-edge rule (an edge flagged as a selection edge is never
// followed on its own merit, only when explicitly chosen).
func resolveSelection(ctx context.Context, st store.Store, v *View, candidate relationship.Relationship, p Path, pi PathInfo) (relationship.Relationship, bool, error) {
	res := v.Selector.Select(candidate, p, pi.Selector)
	switch res.Outcome {
	case Rejected:
		return relationship.Relationship{}, false, nil
	case Unchanged:
		if candidate.Selection {
			return relationship.Relationship{}, false, nil
		}
		return candidate, true, nil
	case Substituted:
		sub, err := materializeSubstitute(ctx, st, candidate, res.Substitute)
		if err != nil {
			return relationship.Relationship{}, false, err
		}
		return sub, true, nil
	default:
		return relationship.Relationship{}, false, nil
	}
}

// materializeSubstitute finds an existing selection edge for
// (candidate.Declaring, target) or creates one, per spec.md §4.4:
// "the substitute is recorded as a selection edge in the store and
// indexed so it is discoverable in future traversals of the same
// view."
func materializeSubstitute(ctx context.Context, st store.Store, candidate relationship.Relationship, target coordinate.Coordinate) (relationship.Relationship, error) {
	if target.GAV() == candidate.Target.GAV() {
		return candidate, nil
	}

	declNID, err := lookupOrErr(ctx, st, candidate.Declaring)
	if err != nil {
		return relationship.Relationship{}, err
	}
	existing, err := st.OutgoingEdges(ctx, declNID, candidate.Type)
	if err != nil {
		return relationship.Relationship{}, err
	}
	for _, e := range existing {
		if e.Selection && e.Target.GAV() == target.GAV() && e.Index == candidate.Index {
			return e, nil
		}
	}

	if _, err := st.CreateNode(ctx, target); err != nil {
		return relationship.Relationship{}, err
	}
	sub := candidate.SelectTarget(target).AsSelectionEdge()
	rid, err := st.CreateEdge(ctx, sub)
	if err != nil {
		return relationship.Relationship{}, err
	}
	sub.ID = rid
	return sub, nil
}
