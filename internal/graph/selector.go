package graph

import (
	"depgraph/internal/coordinate"
	"depgraph/internal/relationship"
)

// Outcome is the result kind of a single Selector.Select call
// (spec.md §4.4).
type Outcome int

const (
	// Unchanged means traversal continues through the original edge.
	Unchanged Outcome = iota
	// Substituted means traversal continues through a different
	// edge, targeting Substitute instead of the candidate's original
	// target. The Traversal Engine materializes the substitute edge
	// in the store (as a selection edge, spec.md §4.4) and continues
	// through it; Selector implementations never touch the store
	// directly, keeping selection policy pure and testable.
	Substituted
	// Rejected means this branch is rejected.
	Rejected
)

// SelectResult is returned by Selector.Select.
type SelectResult struct {
	Outcome Outcome
	// Substitute is only meaningful when Outcome == Substituted: the
	// coordinate the candidate edge's target should be replaced with.
	Substitute coordinate.Coordinate
}

// SelectorState is per-path state a Selector accumulates as traversal
// descends, so selection decisions can depend on prior path choices
// (spec.md §4.4, e.g. first-win version pinning). Advance returns the
// state that applies to edges expanded from e's target; it must not
// mutate the receiver.
type SelectorState interface {
	Advance(e relationship.Relationship) SelectorState
}

// Selector is the version-selection policy attached to a View
// (spec.md §4.4).
type Selector interface {
	// InitialState returns the state a View seeds its roots with.
	InitialState() SelectorState
	// Select decides the fate of candidate edge e reached along path
	// p, given the selector state accumulated so far on p.
	Select(e relationship.Relationship, p Path, st SelectorState) SelectResult
}

// passthroughState is shared by selectors with no per-path state of
// their own.
type passthroughState struct{}

func (passthroughState) Advance(relationship.Relationship) SelectorState { return passthroughState{} }

// acceptAllSelector never substitutes or rejects; used as the default
// when a view does not care about version selection.
type acceptAllSelector struct{}

// NewAcceptAllSelector returns a Selector that passes every candidate
// through unchanged.
func NewAcceptAllSelector() Selector { return acceptAllSelector{} }

func (acceptAllSelector) InitialState() SelectorState { return passthroughState{} }

func (acceptAllSelector) Select(_ relationship.Relationship, _ Path, _ SelectorState) SelectResult {
	return SelectResult{Outcome: Unchanged}
}

// nearestWinsState records, per GA, the GAV of the first edge chosen
// along this path -- classic Maven "nearest definition wins".
type nearestWinsState struct {
	chosen map[coordinate.GA]coordinate.GAV
}

func (s nearestWinsState) Advance(e relationship.Relationship) SelectorState {
	next := make(map[coordinate.GA]coordinate.GAV, len(s.chosen)+1)
	for k, v := range s.chosen {
		next[k] = v
	}
	next[e.Target.GA()] = e.Target.GAV()
	return nearestWinsState{chosen: next}
}

// NearestWinsSelector substitutes any edge whose target GA was
// already chosen earlier (nearer the root) on this path to point at
// that earlier choice instead.
type NearestWinsSelector struct{}

func NewNearestWinsSelector() *NearestWinsSelector { return &NearestWinsSelector{} }

func (s *NearestWinsSelector) InitialState() SelectorState {
	return nearestWinsState{chosen: map[coordinate.GA]coordinate.GAV{}}
}

func (s *NearestWinsSelector) Select(e relationship.Relationship, _ Path, st SelectorState) SelectResult {
	nw, _ := st.(nearestWinsState)
	ga := e.Target.GA()
	chosen, ok := nw.chosen[ga]
	if !ok || chosen == e.Target.GAV() {
		return SelectResult{Outcome: Unchanged}
	}
	return SelectResult{Outcome: Substituted, Substitute: coordinate.Coordinate{
		Group: chosen.Group, Artifact: chosen.Artifact, Version: chosen.Version,
	}}
}

// pinnedState carries no per-path data: pins are global to the
// selector, not derived from the path taken to reach an edge.
type pinnedState struct{ passthroughState }

// PinnedSelector substitutes any edge whose target GA has an
// explicit pin to the pinned version -- the mechanism behind ad-hoc
// version selection (spec.md §4.6 register_view_selection).
type PinnedSelector struct {
	pins map[coordinate.GA]string
}

func NewPinnedSelector() *PinnedSelector {
	return &PinnedSelector{pins: map[coordinate.GA]string{}}
}

// Pin installs or updates the pinned version for ga. Callers must
// serialize calls to Pin the way Engine.RegisterViewSelection does
// (spec.md §5 single-writer discipline); PinnedSelector itself takes
// no lock.
func (s *PinnedSelector) Pin(ga coordinate.GA, version string) {
	s.pins[ga] = version
}

func (s *PinnedSelector) Unpin(ga coordinate.GA) {
	delete(s.pins, ga)
}

func (s *PinnedSelector) PinnedVersion(ga coordinate.GA) (string, bool) {
	v, ok := s.pins[ga]
	return v, ok
}

func (s *PinnedSelector) InitialState() SelectorState { return pinnedState{} }

func (s *PinnedSelector) Select(e relationship.Relationship, _ Path, _ SelectorState) SelectResult {
	ga := e.Target.GA()
	pinned, ok := s.pins[ga]
	if !ok || pinned == e.Target.Version {
		return SelectResult{Outcome: Unchanged}
	}
	return SelectResult{Outcome: Substituted, Substitute: e.Target.WithVersion(pinned)}
}

// highestVersionState records, per GA, the highest literal version
// chosen so far on this path.
type highestVersionState struct {
	chosen map[coordinate.GA]string
}

func (s highestVersionState) Advance(e relationship.Relationship) SelectorState {
	next := make(map[coordinate.GA]string, len(s.chosen)+1)
	for k, v := range s.chosen {
		next[k] = v
	}
	next[e.Target.GA()] = e.Target.Version
	return highestVersionState{chosen: next}
}

// HighestVersionSelector keeps the numerically highest literal version
// seen for a GA, using coordinate.CompareVersions (backed by
// Masterminds/semver). A variable version never displaces a literal
// one.
type HighestVersionSelector struct{}

func NewHighestVersionSelector() *HighestVersionSelector { return &HighestVersionSelector{} }

func (s *HighestVersionSelector) InitialState() SelectorState {
	return highestVersionState{chosen: map[coordinate.GA]string{}}
}

func (s *HighestVersionSelector) Select(e relationship.Relationship, _ Path, st SelectorState) SelectResult {
	hv, _ := st.(highestVersionState)
	ga := e.Target.GA()
	current, ok := hv.chosen[ga]
	if !ok || coordinate.CompareVersions(e.Target.Version, current) >= 0 {
		return SelectResult{Outcome: Unchanged}
	}
	return SelectResult{Outcome: Substituted, Substitute: e.Target.WithVersion(current)}
}

// composedState pairs the two inner selectors' states.
type composedState struct {
	first, fallback SelectorState
}

func (s composedState) Advance(e relationship.Relationship) SelectorState {
	return composedState{first: s.first.Advance(e), fallback: s.fallback.Advance(e)}
}

// ComposeSelectors tries first; if it returns Unchanged, defers to
// fallback.
type ComposeSelectors struct {
	first, fallback Selector
}

func NewComposeSelectors(first, fallback Selector) *ComposeSelectors {
	return &ComposeSelectors{first: first, fallback: fallback}
}

func (c *ComposeSelectors) InitialState() SelectorState {
	return composedState{first: c.first.InitialState(), fallback: c.fallback.InitialState()}
}

func (c *ComposeSelectors) Select(e relationship.Relationship, p Path, st SelectorState) SelectResult {
	cs, _ := st.(composedState)
	res := c.first.Select(e, p, cs.first)
	if res.Outcome != Unchanged {
		return res
	}
	return c.fallback.Select(e, p, cs.fallback)
}
