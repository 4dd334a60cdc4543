package relationship

import (
	"testing"

	"depgraph/internal/coordinate"
)

func TestNewRequiresSources(t *testing.T) {
	p := coordinate.MustNew("g", "p", "1.0.0")
	q := coordinate.MustNew("g", "q", "1.0.0")
	if _, err := New(p, q, Dependency, nil, 0, false); err == nil {
		t.Fatalf("expected error for empty sources")
	}
}

func TestBomRelationshipConcreteAndUnmanaged(t *testing.T) {
	p := coordinate.MustNew("g", "p", "1.0.0")
	q := coordinate.MustNew("g", "q", "1.0.0")
	r, err := New(p, q, Bom, []string{"pom:p"}, 0, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !r.Concrete {
		t.Fatalf("expected BOM relationship to be concrete")
	}
	if r.Managed {
		t.Fatalf("expected BOM relationship to be unmanaged")
	}
	target := r.TargetPomArtifact()
	if target.Extension != "pom" || target.GAV() != q.GAV() {
		t.Fatalf("unexpected target pom artifact: %v", target)
	}
}

func TestSelectDeclaringPreservesOtherAttributes(t *testing.T) {
	p := coordinate.MustNew("g", "p", "1.0.0")
	pPrime := coordinate.MustNew("g", "p", "1.1.0")
	q := coordinate.MustNew("g", "q", "1.0.0")

	r, err := New(p, q, Bom, []string{"pom:p"}, 3, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r2 := r.SelectDeclaring(pPrime)

	if r2.Declaring.GAV() != pPrime.GAV() {
		t.Fatalf("expected declaring to change to pPrime, got %v", r2.Declaring)
	}
	if r2.Target.GAV() != q.GAV() {
		t.Fatalf("expected target unchanged, got %v", r2.Target)
	}
	if r2.Index != r.Index {
		t.Fatalf("expected index to be preserved: got %d want %d", r2.Index, r.Index)
	}
	if len(r2.Sources) != len(r.Sources) {
		t.Fatalf("expected sources to be preserved")
	}
}

func TestAddSourcesUnions(t *testing.T) {
	p := coordinate.MustNew("g", "p", "1.0.0")
	q := coordinate.MustNew("g", "q", "1.0.0")
	r, err := New(p, q, Dependency, []string{"a"}, 0, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r2 := r.AddSources("a", "b")
	if len(r2.Sources) != 2 {
		t.Fatalf("expected union of sources, got %v", r2.SourceList())
	}
	if len(r.Sources) != 1 {
		t.Fatalf("expected original relationship's sources to be untouched")
	}
}

func TestParentTerminus(t *testing.T) {
	p := coordinate.MustNew("g", "p", "1.0.0")
	r, err := New(p, p, Parent, []string{"pom:p"}, 0, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !r.IsTerminus() {
		t.Fatalf("expected self-referencing PARENT to be a terminus marker")
	}
}

func TestParentCannotBeManaged(t *testing.T) {
	p := coordinate.MustNew("g", "p", "1.0.0")
	q := coordinate.MustNew("g", "q", "1.0.0")
	if _, err := New(p, q, Parent, []string{"pom:p"}, 0, true); err == nil {
		t.Fatalf("expected error constructing a managed PARENT edge")
	}
}
