package graph

import (
	"testing"

	"depgraph/internal/relationship"
)

func TestPathAppendDoesNotMutateReceiver(t *testing.T) {
	p := EmptyPath()
	p2 := p.Append(1)
	if p.Len() != 0 {
		t.Fatalf("expected receiver to stay empty, got len %d", p.Len())
	}
	if p2.Len() != 1 {
		t.Fatalf("expected appended path to have len 1, got %d", p2.Len())
	}
}

func TestPathLastRID(t *testing.T) {
	p := EmptyPath()
	if _, ok := p.LastRID(); ok {
		t.Fatalf("expected no LastRID on empty path")
	}
	p = p.Append(5).Append(7)
	rid, ok := p.LastRID()
	if !ok || rid != 7 {
		t.Fatalf("LastRID = %v, %v, want 7, true", rid, ok)
	}
}

func TestPathKeyRoundTrip(t *testing.T) {
	p := CreatePath([]relationship.RID{1, 2, 3})
	if p.Key() != "1/2/3" {
		t.Fatalf("Key() = %q, want %q", p.Key(), "1/2/3")
	}
	back := CreatePath(p.Iter())
	if !p.Equal(back) {
		t.Fatalf("round-tripped path %v != original %v", back, p)
	}
}

func TestEmptyPathKeyIsEmptyString(t *testing.T) {
	if EmptyPath().Key() != "" {
		t.Fatalf("expected empty path key to be empty string, got %q", EmptyPath().Key())
	}
}

func TestPathEqual(t *testing.T) {
	a := CreatePath([]relationship.RID{1, 2})
	b := CreatePath([]relationship.RID{1, 2})
	c := CreatePath([]relationship.RID{1, 3})
	if !a.Equal(b) {
		t.Fatalf("expected equal paths to compare equal")
	}
	if a.Equal(c) {
		t.Fatalf("expected differing paths to compare unequal")
	}
}
