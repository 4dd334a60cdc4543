// Package relationship implements the typed, directed edge model
// connecting two coordinates: direct dependencies, managed
// dependencies, parent, bill-of-materials, plugin, plugin-dependency
// and extension edges.
package relationship

import (
	"fmt"
	"sort"

	"depgraph/internal/coordinate"
)

// RID is the stable edge identifier assigned by the store when a
// relationship is created.
type RID uint64

// Type tags the variant of a Relationship.
type Type int

const (
	Dependency Type = iota
	Plugin
	PluginDep
	Parent
	Bom
	Extension
)

func (t Type) String() string {
	switch t {
	case Dependency:
		return "DEPENDENCY"
	case Plugin:
		return "PLUGIN"
	case PluginDep:
		return "PLUGIN_DEP"
	case Parent:
		return "PARENT"
	case Bom:
		return "BOM"
	case Extension:
		return "EXTENSION"
	default:
		return "UNKNOWN"
	}
}

// alwaysConcrete holds the types whose Concrete flag is fixed true
// regardless of the managed flag, per spec.md §3: "concrete: bool
// (BOM and PARENT are always concrete even though structurally BOM is
// declared in a management section)".
var alwaysConcrete = map[Type]bool{
	Parent: true,
	Bom:    true,
}

// Relationship is a typed, directed edge between a declaring and a
// target coordinate, plus the shared attribute record spec.md §3 and
// §4.1 describe. It is immutable; the mutator methods below return a
// new value.
type Relationship struct {
	ID RID

	Type      Type
	Scope     string // populated only for Dependency
	Declaring coordinate.Coordinate
	Target    coordinate.Coordinate

	Managed  bool
	Concrete bool

	Sources     map[string]struct{}
	PomLocation string
	Index       int

	// Selection is true when this edge was synthesized by a Selector
	// for a specific view rather than declared in a POM. Selection
	// edges are only followed when a Selector explicitly chooses them
	// (spec.md §4.4 "Selection-edge rule") and are discarded at
	// process shutdown.
	Selection bool
	// CyclesInjected is set by the CycleDetector once this edge has
	// been recorded as the injecting edge of some minimal cycle
	// (spec.md §4.7 invariant).
	CyclesInjected bool
}

// New constructs a Relationship. sources must be non-empty.
func New(declaring, target coordinate.Coordinate, typ Type, sources []string, index int, managed bool) (Relationship, error) {
	if len(sources) == 0 {
		return Relationship{}, fmt.Errorf("relationship: at least one source URI is required")
	}
	if typ == Parent && managed {
		return Relationship{}, fmt.Errorf("relationship: PARENT edges cannot be managed")
	}
	if typ == Bom && managed {
		return Relationship{}, fmt.Errorf("relationship: BOM edges cannot be managed")
	}
	r := Relationship{
		Type:      typ,
		Declaring: declaring,
		Target:    target,
		Managed:   managed,
		Concrete:  alwaysConcrete[typ] || !managed,
		Sources:   toSet(sources),
		Index:     index,
	}
	return r, nil
}

// WithScope sets the Dependency scope and returns the updated value.
// It is a no-op on non-Dependency relationships.
func (r Relationship) WithScope(scope string) Relationship {
	if r.Type != Dependency {
		return r
	}
	r.Scope = scope
	return r
}

// WithPomLocation sets the declaring POM's location URI.
func (r Relationship) WithPomLocation(uri string) Relationship {
	r.PomLocation = uri
	return r
}

// AddSource returns a new Relationship whose Sources is the union of
// r.Sources and {u}.
func (r Relationship) AddSource(u string) Relationship {
	return r.AddSources(u)
}

// AddSources returns a new Relationship whose Sources is the union of
// r.Sources and us.
func (r Relationship) AddSources(us ...string) Relationship {
	merged := make(map[string]struct{}, len(r.Sources)+len(us))
	for s := range r.Sources {
		merged[s] = struct{}{}
	}
	for _, s := range us {
		if s != "" {
			merged[s] = struct{}{}
		}
	}
	r.Sources = merged
	return r
}

// SelectDeclaring returns a new Relationship substituting the
// declaring endpoint, preserving every other attribute and the
// identifier-derived keying (index, sources, flags).
func (r Relationship) SelectDeclaring(c coordinate.Coordinate) Relationship {
	r.Declaring = c
	return r
}

// SelectTarget returns a new Relationship substituting the target
// endpoint, preserving every other attribute.
func (r Relationship) SelectTarget(c coordinate.Coordinate) Relationship {
	r.Target = c
	return r
}

// AsSelectionEdge marks the relationship as synthesized by a Selector
// for a specific view.
func (r Relationship) AsSelectionEdge() Relationship {
	r.Selection = true
	return r
}

// IsTerminus reports whether this is a PARENT relationship whose
// declaring and target GAV coincide -- a terminus marker, not a real
// edge (spec.md §3).
func (r Relationship) IsTerminus() bool {
	return r.Type == Parent && r.Declaring.GAV() == r.Target.GAV()
}

// TargetPomArtifact returns the target coordinate projected to its POM
// artifact. Only meaningful for Bom relationships, where the target is
// always a POM.
func (r Relationship) TargetPomArtifact() coordinate.Coordinate {
	return r.Target.WithExtension("pom")
}

// SourceList returns the relationship's source URIs as a sorted
// slice, for deterministic rendering.
func (r Relationship) SourceList() []string {
	out := make([]string, 0, len(r.Sources))
	for s := range r.Sources {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func toSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, i := range items {
		if i != "" {
			out[i] = struct{}{}
		}
	}
	return out
}
