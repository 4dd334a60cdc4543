package graph

import (
	"context"
	"errors"
	"testing"

	"depgraph/internal/coordinate"
	"depgraph/internal/relationship"
	"depgraph/internal/store/memstore"
)

func buildChainRelationships(t *testing.T) []relationship.Relationship {
	t.Helper()
	a := coordinate.MustNew("g", "a", "1.0.0")
	b := coordinate.MustNew("g", "b", "1.0.0")
	c := coordinate.MustNew("g", "c", "1.0.0")
	ab, err := relationship.New(a, b, relationship.Dependency, []string{"pom:a"}, 0, false)
	if err != nil {
		t.Fatalf("relationship.New: %v", err)
	}
	bc, err := relationship.New(b, c, relationship.Dependency, []string{"pom:b"}, 0, false)
	if err != nil {
		t.Fatalf("relationship.New: %v", err)
	}
	return []relationship.Relationship{ab, bc}
}

func TestRegisterViewSeedsRootsAndMaterializesCache(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	e := NewEngine(st)

	rels := buildChainRelationships(t)
	if _, err := e.AddRelationships(ctx, rels...); err != nil {
		t.Fatalf("AddRelationships: %v", err)
	}

	a := coordinate.MustNew("g", "a", "1.0.0")
	v, err := NewView([]coordinate.Coordinate{a}, nil, nil)
	if err != nil {
		t.Fatalf("NewView: %v", err)
	}
	if err := e.RegisterView(ctx, v); err != nil {
		t.Fatalf("RegisterView: %v", err)
	}

	projects, err := e.AllProjects(ctx, v)
	if err != nil {
		t.Fatalf("AllProjects: %v", err)
	}
	if len(projects) != 3 {
		t.Fatalf("expected 3 projects (a, b, c) reachable from root a, got %d: %v", len(projects), projects)
	}

	edges, err := e.AllEdges(ctx, v)
	if err != nil {
		t.Fatalf("AllEdges: %v", err)
	}
	if len(edges) != 2 {
		t.Fatalf("expected 2 cached edges, got %d", len(edges))
	}
}

func TestAddRelationshipsReturnsIDOfStoredRelationship(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	e := NewEngine(st)

	valid := coordinate.MustNew("g", "a", "1.0.0")
	target := coordinate.MustNew("g", "b", "1.0.0")
	goodRel, err := relationship.New(valid, target, relationship.Dependency, []string{"pom:a"}, 0, false)
	if err != nil {
		t.Fatalf("relationship.New: %v", err)
	}

	ids, err := e.AddRelationships(ctx, goodRel)
	if err != nil {
		t.Fatalf("AddRelationships: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected exactly one relationship id back, got %d", len(ids))
	}
}

func TestRegisterViewSelectionPinsAndInvalidatesDownstreamCache(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	e := NewEngine(st)

	root := coordinate.MustNew("g", "root", "1.0.0")
	lib := coordinate.MustNew("g", "libx", "2.0.0")
	rootToLib, err := relationship.New(root, lib, relationship.Dependency, []string{"pom:root"}, 0, false)
	if err != nil {
		t.Fatalf("relationship.New: %v", err)
	}
	if _, err := e.AddRelationships(ctx, rootToLib); err != nil {
		t.Fatalf("AddRelationships: %v", err)
	}

	pinned := NewPinnedSelector()
	v, err := NewView([]coordinate.Coordinate{root}, nil, pinned)
	if err != nil {
		t.Fatalf("NewView: %v", err)
	}
	if err := e.RegisterView(ctx, v); err != nil {
		t.Fatalf("RegisterView: %v", err)
	}

	if err := e.RegisterViewSelection(ctx, v.ShortID, lib.GA(), "1.0.0"); err != nil {
		t.Fatalf("RegisterViewSelection: %v", err)
	}

	paths, err := e.AllPathsTo(ctx, v, lib.WithVersion("1.0.0"))
	if err != nil {
		t.Fatalf("AllPathsTo: %v", err)
	}
	if len(paths) == 0 {
		t.Fatalf("expected at least one cached path to the pinned version after re-materialization")
	}
}

func TestRegisterViewSelectionInvalidatesAllCachedVersionsOfTheGA(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	e := NewEngine(st)

	root := coordinate.MustNew("g", "root", "1.0.0")
	a := coordinate.MustNew("g", "a", "1.0.0")
	b := coordinate.MustNew("g", "b", "1.0.0")
	libV1 := coordinate.MustNew("g", "libx", "1.0.0")
	libV2 := coordinate.MustNew("g", "libx", "2.0.0")

	rootToA, err := relationship.New(root, a, relationship.Dependency, []string{"pom:root"}, 0, false)
	if err != nil {
		t.Fatalf("relationship.New: %v", err)
	}
	rootToB, err := relationship.New(root, b, relationship.Dependency, []string{"pom:root"}, 1, false)
	if err != nil {
		t.Fatalf("relationship.New: %v", err)
	}
	aToLibV1, err := relationship.New(a, libV1, relationship.Dependency, []string{"pom:a"}, 0, false)
	if err != nil {
		t.Fatalf("relationship.New: %v", err)
	}
	bToLibV2, err := relationship.New(b, libV2, relationship.Dependency, []string{"pom:b"}, 0, false)
	if err != nil {
		t.Fatalf("relationship.New: %v", err)
	}
	if _, err := e.AddRelationships(ctx, rootToA, rootToB, aToLibV1, bToLibV2); err != nil {
		t.Fatalf("AddRelationships: %v", err)
	}

	pinned := NewPinnedSelector()
	v, err := NewView([]coordinate.Coordinate{root}, nil, pinned)
	if err != nil {
		t.Fatalf("NewView: %v", err)
	}
	if err := e.RegisterView(ctx, v); err != nil {
		t.Fatalf("RegisterView: %v", err)
	}

	// Before pinning, both versions of libx are cached via two distinct
	// paths: root->a->libx@1.0.0 and root->b->libx@2.0.0.
	v1Paths, err := e.AllPathsTo(ctx, v, libV1)
	if err != nil {
		t.Fatalf("AllPathsTo(libV1): %v", err)
	}
	v2Paths, err := e.AllPathsTo(ctx, v, libV2)
	if err != nil {
		t.Fatalf("AllPathsTo(libV2): %v", err)
	}
	if len(v1Paths) != 1 || len(v2Paths) != 1 {
		t.Fatalf("expected one cached path to each version before pinning, got v1=%d v2=%d", len(v1Paths), len(v2Paths))
	}

	if err := e.RegisterViewSelection(ctx, v.ShortID, libV1.GA(), "1.0.0"); err != nil {
		t.Fatalf("RegisterViewSelection: %v", err)
	}

	// Both the already-pinned-version path and the other version's path
	// must have been invalidated and re-walked: no cached path may still
	// target libx@2.0.0, and both root->a and root->b must now resolve to
	// libx@1.0.0.
	v2Paths, err = e.AllPathsTo(ctx, v, libV2)
	if err != nil {
		t.Fatalf("AllPathsTo(libV2) after selection: %v", err)
	}
	if len(v2Paths) != 0 {
		t.Fatalf("expected no cached path to the unpinned version after selection, got %d", len(v2Paths))
	}

	v1Paths, err = e.AllPathsTo(ctx, v, libV1)
	if err != nil {
		t.Fatalf("AllPathsTo(libV1) after selection: %v", err)
	}
	if len(v1Paths) != 2 {
		t.Fatalf("expected both root->a and root->b to resolve to the pinned version, got %d cached paths", len(v1Paths))
	}
}

func TestRegisterViewSelectionFailsWithoutPinnableSelector(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	e := NewEngine(st)

	root := coordinate.MustNew("g", "root", "1.0.0")
	v, err := NewView([]coordinate.Coordinate{root}, nil, nil) // default AcceptAllSelector, not pinnable
	if err != nil {
		t.Fatalf("NewView: %v", err)
	}
	if err := e.RegisterView(ctx, v); err != nil {
		t.Fatalf("RegisterView: %v", err)
	}

	err = e.RegisterViewSelection(ctx, v.ShortID, root.GA(), "2.0.0")
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for a non-pinnable selector, got %v", err)
	}
}

func TestDetectCyclesReturnsCyclesForRegisteredView(t *testing.T) {
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

	cycles, err := e.DetectCycles(ctx, v.ShortID)
	if err != nil {
		t.Fatalf("DetectCycles: %v", err)
	}
	if len(cycles) != 1 {
		t.Fatalf("expected exactly one cycle, got %d", len(cycles))
	}
}

func TestDetectCyclesUnknownViewFails(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	e := NewEngine(st)
	if _, err := e.DetectCycles(ctx, "v-does-not-exist"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for an unregistered view, got %v", err)
	}
}

func TestDeregisterViewRemovesViewAndCache(t *testing.T) {
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
	if _, ok := e.View(v.ShortID); !ok {
		t.Fatalf("expected view to be registered")
	}

	if err := e.DeregisterView(ctx, v.ShortID); err != nil {
		t.Fatalf("DeregisterView: %v", err)
	}
	if _, ok := e.View(v.ShortID); ok {
		t.Fatalf("expected view to be gone after DeregisterView")
	}
	if _, ok := e.Cache(v.ShortID); ok {
		t.Fatalf("expected cache to be gone after DeregisterView")
	}
}

func TestIntroducesCycleDetectsWouldBeCycle(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	e := NewEngine(st)

	a := coordinate.MustNew("g", "a", "1.0.0")
	b := coordinate.MustNew("g", "b", "1.0.0")
	ab, err := relationship.New(a, b, relationship.Dependency, []string{"pom:a"}, 0, false)
	if err != nil {
		t.Fatalf("relationship.New: %v", err)
	}
	if _, err := e.AddRelationships(ctx, ab); err != nil {
		t.Fatalf("AddRelationships: %v", err)
	}

	v, err := NewView([]coordinate.Coordinate{a}, nil, nil)
	if err != nil {
		t.Fatalf("NewView: %v", err)
	}
	if err := e.RegisterView(ctx, v); err != nil {
		t.Fatalf("RegisterView: %v", err)
	}

	candidate, err := relationship.New(b, a, relationship.Dependency, []string{"pom:b"}, 0, false)
	if err != nil {
		t.Fatalf("relationship.New: %v", err)
	}
	would, err := e.IntroducesCycle(ctx, v, candidate)
	if err != nil {
		t.Fatalf("IntroducesCycle: %v", err)
	}
	if !would {
		t.Fatalf("expected adding b->a on top of a->b to be detected as introducing a cycle")
	}
}

func TestArchivePomRequiresConfiguredArchiver(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	e := NewEngine(st)

	decl := coordinate.MustNew("g", "a", "1.0.0")
	target := coordinate.MustNew("g", "b", "1.0.0")
	r, err := relationship.New(decl, target, relationship.Dependency, []string{"pom:a"}, 0, false)
	if err != nil {
		t.Fatalf("relationship.New: %v", err)
	}
	r = r.WithPomLocation("https://example.invalid/a.pom")

	if _, err := e.ArchivePom(ctx, r); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument when no archiver is configured, got %v", err)
	}
}

type stubArchiver struct {
	calls int
}

func (s *stubArchiver) Fetch(_ context.Context, _, _ string) (int, error) {
	s.calls++
	return 42, nil
}

func TestArchivePomDelegatesToConfiguredArchiver(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	stub := &stubArchiver{}
	e := NewEngine(st, WithArchiver(stub))

	decl := coordinate.MustNew("g", "a", "1.0.0")
	target := coordinate.MustNew("g", "b", "1.0.0")
	r, err := relationship.New(decl, target, relationship.Dependency, []string{"pom:a"}, 0, false)
	if err != nil {
		t.Fatalf("relationship.New: %v", err)
	}
	r = r.WithPomLocation("https://example.invalid/a.pom")

	n, err := e.ArchivePom(ctx, r)
	if err != nil {
		t.Fatalf("ArchivePom: %v", err)
	}
	if n != 42 || stub.calls != 1 {
		t.Fatalf("expected ArchivePom to delegate to the configured archiver exactly once, got n=%d calls=%d", n, stub.calls)
	}
}

func TestShutdownClosesStore(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	e := NewEngine(st)

	a := coordinate.MustNew("g", "a", "1.0.0")
	b := coordinate.MustNew("g", "b", "1.0.0")
	ab, err := relationship.New(a, b, relationship.Dependency, []string{"pom:a"}, 0, false)
	if err != nil {
		t.Fatalf("relationship.New: %v", err)
	}
	if _, err := e.AddRelationships(ctx, ab); err != nil {
		t.Fatalf("AddRelationships: %v", err)
	}

	if err := e.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, err := st.CreateNode(ctx, a); err == nil {
		t.Fatalf("expected the store to be closed after Shutdown")
	}
}
