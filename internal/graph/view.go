package graph

import (
	"fmt"
	"hash/fnv"
	"sort"
	"time"

	"depgraph/internal/coordinate"
)

// Mutator is a hook a View can register to react to the
// re-materialization triggers of spec.md §4.6 -- e.g. notifying an
// external watcher that a view's cache changed. The core traversal
// logic never calls a Mutator directly; Engine invokes them once a
// re-materialization pass has committed, keeping internal/graph free
// of I/O side effects (spec.md §5 "traversal is a synchronous
// in-memory walk").
type Mutator interface {
	OnViewInvalidated(shortID string, cyclePending bool)
}

// View is the unit users query against: roots, filter, selector, and
// mutators (spec.md §3, §4.6).
type View struct {
	ShortID  string
	Roots    []coordinate.Coordinate
	Filter   Filter
	Selector Selector
	Mutators []Mutator

	ActivePomLocations map[string]struct{}
	ActiveSourceURIs    map[string]struct{}
	CyclePending        bool
	Cycles              []Cycle

	Properties map[string]string

	lastAccess time.Time
}

// Touch records the current time as v's last access, called by every
// Query API method that reads through v.
func (v *View) Touch() {
	v.lastAccess = time.Now()
}

// LastAccess returns the time Touch was last called, or the zero
// time if never.
func (v *View) LastAccess() time.Time {
	return v.lastAccess
}

// ViewOption configures optional View attributes at construction.
type ViewOption func(*View)

func WithMutators(m ...Mutator) ViewOption {
	return func(v *View) { v.Mutators = append(v.Mutators, m...) }
}

func WithActivePomLocations(locs ...string) ViewOption {
	return func(v *View) {
		for _, l := range locs {
			v.ActivePomLocations[l] = struct{}{}
		}
	}
}

func WithActiveSourceURIs(uris ...string) ViewOption {
	return func(v *View) {
		for _, u := range uris {
			v.ActiveSourceURIs[u] = struct{}{}
		}
	}
}

func WithProperty(key, value string) ViewOption {
	return func(v *View) { v.Properties[key] = value }
}

// NewView constructs a View. ShortID is derived deterministically from
// roots + filter + selector identity (spec.md §3: "Short-id is
// deterministic from a stable hash of the configuration"), not
// accepted from the caller.
func NewView(roots []coordinate.Coordinate, f Filter, s Selector, opts ...ViewOption) (*View, error) {
	if f == nil {
		f = AcceptAll{}
	}
	if s == nil {
		s = NewAcceptAllSelector()
	}
	v := &View{
		Roots:               append([]coordinate.Coordinate(nil), roots...),
		Filter:              f,
		Selector:            s,
		ActivePomLocations:  map[string]struct{}{},
		ActiveSourceURIs:    map[string]struct{}{},
		CyclePending:        true,
		Properties:          map[string]string{},
	}
	for _, opt := range opts {
		opt(v)
	}
	v.ShortID = deriveShortID(v)
	return v, nil
}

// deriveShortID hashes a canonical rendering of the view's roots and
// filter/selector type identity, matching spec.md §3's "deterministic
// from a stable hash of the configuration."
func deriveShortID(v *View) string {
	sorted := append([]coordinate.Coordinate(nil), v.Roots...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })

	h := fnv.New64a()
	for _, c := range sorted {
		_, _ = h.Write([]byte(c.String()))
		_, _ = h.Write([]byte{0})
	}
	fmt.Fprintf(h, "%T|%T", v.Filter, v.Selector)
	return fmt.Sprintf("v%x", h.Sum64())
}

// NotifyInvalidated runs every registered Mutator for this view. It is
// called by Engine after a re-materialization pass commits.
func (v *View) NotifyInvalidated() {
	for _, m := range v.Mutators {
		m.OnViewInvalidated(v.ShortID, v.CyclePending)
	}
}
