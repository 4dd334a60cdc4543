package graph

import (
	"context"
	"testing"

	"depgraph/internal/coordinate"
	"depgraph/internal/relationship"
	"depgraph/internal/store/memstore"
)

func TestAllPathsToAndPathMapTargeting(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	e := NewEngine(st)

	rels := buildChainRelationships(t)
	if _, err := e.AddRelationships(ctx, rels...); err != nil {
		t.Fatalf("AddRelationships: %v", err)
	}
	a := coordinate.MustNew("g", "a", "1.0.0")
	b := coordinate.MustNew("g", "b", "1.0.0")
	c := coordinate.MustNew("g", "c", "1.0.0")
	v, err := NewView([]coordinate.Coordinate{a}, nil, nil)
	if err != nil {
		t.Fatalf("NewView: %v", err)
	}
	if err := e.RegisterView(ctx, v); err != nil {
		t.Fatalf("RegisterView: %v", err)
	}

	paths, err := e.AllPathsTo(ctx, v, c)
	if err != nil {
		t.Fatalf("AllPathsTo: %v", err)
	}
	if len(paths) != 1 || paths[0].Len() != 2 {
		t.Fatalf("expected a single 2-edge path to c, got %v", paths)
	}

	byNode, err := e.PathMapTargeting(ctx, v, []coordinate.Coordinate{b, c})
	if err != nil {
		t.Fatalf("PathMapTargeting: %v", err)
	}
	if len(byNode) != 2 {
		t.Fatalf("expected entries for both b and c, got %d", len(byNode))
	}
}

func TestAllPathsToUnregisteredViewFails(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	e := NewEngine(st)
	a := coordinate.MustNew("g", "a", "1.0.0")
	v, err := NewView([]coordinate.Coordinate{a}, nil, nil)
	if err != nil {
		t.Fatalf("NewView: %v", err)
	}
	if _, err := e.AllPathsTo(ctx, v, a); err == nil {
		t.Fatalf("expected AllPathsTo against an unregistered view to fail")
	}
}

func TestMissingAndVariableProjects(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	e := NewEngine(st)

	a := coordinate.MustNew("g", "a", "1.0.0")
	rangeDep := coordinate.MustNew("g", "b", "[1.0,2.0)")
	r, err := relationship.New(a, rangeDep, relationship.Dependency, []string{"pom:a"}, 0, false)
	if err != nil {
		t.Fatalf("relationship.New: %v", err)
	}
	if _, err := e.AddRelationships(ctx, r); err != nil {
		t.Fatalf("AddRelationships: %v", err)
	}

	v, err := NewView([]coordinate.Coordinate{a}, nil, nil)
	if err != nil {
		t.Fatalf("NewView: %v", err)
	}
	if err := e.RegisterView(ctx, v); err != nil {
		t.Fatalf("RegisterView: %v", err)
	}

	missing, err := e.MissingProjects(ctx, v)
	if err != nil {
		t.Fatalf("MissingProjects: %v", err)
	}
	var foundMissing bool
	for _, c := range missing {
		if c.GA() == rangeDep.GA() {
			foundMissing = true
		}
	}
	if !foundMissing {
		t.Fatalf("expected rangeDep to be reported missing (never declares its own outgoing edge), got %v", missing)
	}

	variable, err := e.VariableProjects(ctx, v)
	if err != nil {
		t.Fatalf("VariableProjects: %v", err)
	}
	var foundVariable bool
	for _, c := range variable {
		if c.GA() == rangeDep.GA() {
			foundVariable = true
		}
	}
	if !foundVariable {
		t.Fatalf("expected rangeDep's range version to be reported variable, got %v", variable)
	}
}

func TestMissingAndVariableProjectsAreScopedPerView(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	e := NewEngine(st)

	a := coordinate.MustNew("g", "a", "1.0.0")
	rangeDep := coordinate.MustNew("g", "b", "[1.0,2.0)")
	ar, err := relationship.New(a, rangeDep, relationship.Dependency, []string{"pom:a"}, 0, false)
	if err != nil {
		t.Fatalf("relationship.New: %v", err)
	}

	x := coordinate.MustNew("g", "x", "1.0.0")
	otherRangeDep := coordinate.MustNew("g", "y", "[1.0,2.0)")
	xr, err := relationship.New(x, otherRangeDep, relationship.Dependency, []string{"pom:x"}, 0, false)
	if err != nil {
		t.Fatalf("relationship.New: %v", err)
	}

	if _, err := e.AddRelationships(ctx, ar, xr); err != nil {
		t.Fatalf("AddRelationships: %v", err)
	}

	va, err := NewView([]coordinate.Coordinate{a}, nil, nil)
	if err != nil {
		t.Fatalf("NewView: %v", err)
	}
	if err := e.RegisterView(ctx, va); err != nil {
		t.Fatalf("RegisterView: %v", err)
	}

	missing, err := e.MissingProjects(ctx, va)
	if err != nil {
		t.Fatalf("MissingProjects: %v", err)
	}
	for _, c := range missing {
		if c.GA() == otherRangeDep.GA() {
			t.Fatalf("expected view rooted at a not to report y as missing, y is only reachable from the disjoint root x, got %v", missing)
		}
	}

	variable, err := e.VariableProjects(ctx, va)
	if err != nil {
		t.Fatalf("VariableProjects: %v", err)
	}
	for _, c := range variable {
		if c.GA() == otherRangeDep.GA() {
			t.Fatalf("expected view rooted at a not to report y as variable, y is only reachable from the disjoint root x, got %v", variable)
		}
	}
}

func TestMetadataAddIsNoopWhenPresentSetOverwrites(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	e := NewEngine(st)

	a := coordinate.MustNew("g", "a", "1.0.0")
	if _, err := st.CreateNode(ctx, a); err != nil {
		t.Fatalf("CreateNode: %v", err)
	}

	if err := e.AddMetadata(ctx, a, "owner", "team-a"); err != nil {
		t.Fatalf("AddMetadata: %v", err)
	}
	if err := e.AddMetadata(ctx, a, "owner", "team-b"); err != nil {
		t.Fatalf("AddMetadata (second, should be no-op): %v", err)
	}
	got, err := e.GetMetadata(ctx, a, "owner")
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if got["owner"] != "team-a" {
		t.Fatalf("expected AddMetadata to leave the first value in place, got %q", got["owner"])
	}

	if err := e.SetMetadata(ctx, a, "owner", "team-c"); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	got, err = e.GetMetadata(ctx, a, "owner")
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if got["owner"] != "team-c" {
		t.Fatalf("expected SetMetadata to overwrite unconditionally, got %q", got["owner"])
	}
}

func TestGetMetadataUnknownCoordinateFails(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	e := NewEngine(st)
	unknown := coordinate.MustNew("g", "zzz", "9.9.9")
	if _, err := e.GetMetadata(ctx, unknown, "owner"); err == nil {
		t.Fatalf("expected GetMetadata against an uninterned coordinate to fail")
	}
}

func TestProjectsWithMetadata(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	e := NewEngine(st)

	rels := buildChainRelationships(t)
	if _, err := e.AddRelationships(ctx, rels...); err != nil {
		t.Fatalf("AddRelationships: %v", err)
	}
	a := coordinate.MustNew("g", "a", "1.0.0")
	b := coordinate.MustNew("g", "b", "1.0.0")
	v, err := NewView([]coordinate.Coordinate{a}, nil, nil)
	if err != nil {
		t.Fatalf("NewView: %v", err)
	}
	if err := e.RegisterView(ctx, v); err != nil {
		t.Fatalf("RegisterView: %v", err)
	}

	if err := e.SetMetadata(ctx, b, "deprecated", "true"); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}

	tagged, err := e.ProjectsWithMetadata(ctx, v, "deprecated")
	if err != nil {
		t.Fatalf("ProjectsWithMetadata: %v", err)
	}
	if len(tagged) != 1 || tagged[0].GA() != b.GA() {
		t.Fatalf("expected only b to carry the deprecated key, got %v", tagged)
	}
}

func TestViewPropertyRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	e := NewEngine(st)

	a := coordinate.MustNew("g", "a", "1.0.0")
	v, err := NewView([]coordinate.Coordinate{a}, nil, nil)
	if err != nil {
		t.Fatalf("NewView: %v", err)
	}
	if err := e.RegisterView(ctx, v); err != nil {
		t.Fatalf("RegisterView: %v", err)
	}

	if _, ok, err := e.ViewProperty(ctx, v, "label"); err != nil || ok {
		t.Fatalf("expected no value set yet, got ok=%v err=%v", ok, err)
	}
	if err := e.SetViewProperty(ctx, v, "label", "nightly"); err != nil {
		t.Fatalf("SetViewProperty: %v", err)
	}
	val, ok, err := e.ViewProperty(ctx, v, "label")
	if err != nil {
		t.Fatalf("ViewProperty: %v", err)
	}
	if !ok || val != "nightly" {
		t.Fatalf("expected label=nightly, got ok=%v val=%q", ok, val)
	}
}

func TestIsConnectedReflectsDeclaredOutgoing(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	e := NewEngine(st)

	a := coordinate.MustNew("g", "a", "1.0.0")
	b := coordinate.MustNew("g", "b", "1.0.0")
	r, err := relationship.New(a, b, relationship.Dependency, []string{"pom:a"}, 0, false)
	if err != nil {
		t.Fatalf("relationship.New: %v", err)
	}
	if _, err := e.AddRelationships(ctx, r); err != nil {
		t.Fatalf("AddRelationships: %v", err)
	}

	connected, err := e.IsConnected(ctx, a)
	if err != nil {
		t.Fatalf("IsConnected(a): %v", err)
	}
	if !connected {
		t.Fatalf("expected a to be connected, it declares an outgoing edge")
	}

	connected, err = e.IsConnected(ctx, b)
	if err != nil {
		t.Fatalf("IsConnected(b): %v", err)
	}
	if connected {
		t.Fatalf("expected b to be disconnected, it never declares an outgoing edge of its own")
	}
}

func TestIsConnectedUninternedCoordinateIsFalse(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	e := NewEngine(st)
	unknown := coordinate.MustNew("g", "zzz", "9.9.9")
	connected, err := e.IsConnected(ctx, unknown)
	if err != nil {
		t.Fatalf("IsConnected: %v", err)
	}
	if connected {
		t.Fatalf("expected an uninterned coordinate to be reported disconnected")
	}
}

func TestIsCycleParticipantRunsGetCyclesWhenPending(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	e := NewEngine(st)

	a := coordinate.MustNew("g", "a", "1.0.0")
	b := coordinate.MustNew("g", "b", "1.0.0")
	ab, _ := relationship.New(a, b, relationship.Dependency, []string{"pom:a"}, 0, false)
	ba, _ := relationship.New(b, a, relationship.Dependency, []string{"pom:b"}, 0, false)
	if _, err := e.AddRelationships(ctx, ab, ba); err != nil {
		t.Fatalf("AddRelationships: %v", err)
	}

	v, err := NewView([]coordinate.Coordinate{a}, nil, nil)
	if err != nil {
		t.Fatalf("NewView: %v", err)
	}
	if err := e.RegisterView(ctx, v); err != nil {
		t.Fatalf("RegisterView: %v", err)
	}

	participant, err := e.IsCycleParticipant(ctx, v, b)
	if err != nil {
		t.Fatalf("IsCycleParticipant: %v", err)
	}
	if !participant {
		t.Fatalf("expected b to be flagged as a cycle participant")
	}
}

func TestDirectFromAndDirectToFilterManagedConcrete(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	e := NewEngine(st)

	a := coordinate.MustNew("g", "a", "1.0.0")
	managedTarget := coordinate.MustNew("g", "b", "1.0.0")
	managedRel, err := relationship.New(a, managedTarget, relationship.Dependency, []string{"pom:a"}, 0, true)
	if err != nil {
		t.Fatalf("relationship.New: %v", err)
	}
	plainTarget := coordinate.MustNew("g", "c", "1.0.0")
	plainRel, err := relationship.New(a, plainTarget, relationship.Dependency, []string{"pom:a"}, 0, false)
	if err != nil {
		t.Fatalf("relationship.New: %v", err)
	}
	if _, err := e.AddRelationships(ctx, managedRel, plainRel); err != nil {
		t.Fatalf("AddRelationships: %v", err)
	}

	v, err := NewView([]coordinate.Coordinate{a}, nil, nil)
	if err != nil {
		t.Fatalf("NewView: %v", err)
	}

	onlyPlain, err := e.DirectFrom(ctx, v, a, false, true)
	if err != nil {
		t.Fatalf("DirectFrom: %v", err)
	}
	if len(onlyPlain) != 1 || onlyPlain[0].Target.GA() != plainTarget.GA() {
		t.Fatalf("expected only the non-managed edge when includeManaged=false, got %v", onlyPlain)
	}

	both, err := e.DirectFrom(ctx, v, a, true, true)
	if err != nil {
		t.Fatalf("DirectFrom: %v", err)
	}
	if len(both) != 2 {
		t.Fatalf("expected both edges when includeManaged=true, got %d", len(both))
	}

	incoming, err := e.DirectTo(ctx, v, managedTarget, true, true)
	if err != nil {
		t.Fatalf("DirectTo: %v", err)
	}
	if len(incoming) != 1 || incoming[0].Declaring.GA() != a.GA() {
		t.Fatalf("expected b's single incoming edge to come from a, got %v", incoming)
	}
}

func TestDirectFromUnknownCoordinateReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	e := NewEngine(st)
	unknown := coordinate.MustNew("g", "zzz", "9.9.9")
	v, err := NewView([]coordinate.Coordinate{unknown}, nil, nil)
	if err != nil {
		t.Fatalf("NewView: %v", err)
	}
	edges, err := e.DirectFrom(ctx, v, unknown, true, true)
	if err != nil {
		t.Fatalf("DirectFrom: %v", err)
	}
	if len(edges) != 0 {
		t.Fatalf("expected no edges for an unregistered coordinate, got %v", edges)
	}
}
