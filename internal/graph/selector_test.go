package graph

import (
	"testing"

	"depgraph/internal/coordinate"
	"depgraph/internal/relationship"
)

func depRel(t *testing.T, declArtifact, targetArtifact, version string) relationship.Relationship {
	t.Helper()
	decl := coordinate.MustNew("g", declArtifact, "1.0.0")
	target := coordinate.MustNew("g", targetArtifact, version)
	r, err := relationship.New(decl, target, relationship.Dependency, []string{"pom:" + declArtifact}, 0, false)
	if err != nil {
		t.Fatalf("relationship.New: %v", err)
	}
	return r
}

func TestAcceptAllSelectorNeverSubstitutes(t *testing.T) {
	s := NewAcceptAllSelector()
	r := depRel(t, "a", "b", "1.0.0")
	res := s.Select(r, EmptyPath(), s.InitialState())
	if res.Outcome != Unchanged {
		t.Fatalf("expected Unchanged, got %v", res.Outcome)
	}
}

func TestNearestWinsSubstitutesLaterOccurrence(t *testing.T) {
	s := NewNearestWinsSelector()
	st := s.InitialState()

	first := depRel(t, "a", "libx", "1.0.0")
	res := s.Select(first, EmptyPath(), st)
	if res.Outcome != Unchanged {
		t.Fatalf("expected first occurrence to pass through unchanged, got %v", res.Outcome)
	}
	st = st.Advance(first)

	second := depRel(t, "c", "libx", "2.0.0")
	res = s.Select(second, EmptyPath(), st)
	if res.Outcome != Substituted {
		t.Fatalf("expected the later occurrence of libx to be substituted, got %v", res.Outcome)
	}
	if res.Substitute.Version != "1.0.0" {
		t.Fatalf("expected nearest-wins to keep the first-seen version 1.0.0, got %s", res.Substitute.Version)
	}
}

func TestPinnedSelectorSubstitutesToPin(t *testing.T) {
	s := NewPinnedSelector()
	ga := coordinate.GA{Group: "g", Artifact: "libx"}
	s.Pin(ga, "3.0.0")

	r := depRel(t, "a", "libx", "1.0.0")
	res := s.Select(r, EmptyPath(), s.InitialState())
	if res.Outcome != Substituted {
		t.Fatalf("expected pinned GA to substitute, got %v", res.Outcome)
	}
	if res.Substitute.Version != "3.0.0" {
		t.Fatalf("expected pinned version 3.0.0, got %s", res.Substitute.Version)
	}

	pinned, ok := s.PinnedVersion(ga)
	if !ok || pinned != "3.0.0" {
		t.Fatalf("PinnedVersion = %v, %v, want 3.0.0, true", pinned, ok)
	}
	s.Unpin(ga)
	if _, ok := s.PinnedVersion(ga); ok {
		t.Fatalf("expected Unpin to remove the pin")
	}
}

func TestPinnedSelectorUnchangedWhenAlreadyAtPin(t *testing.T) {
	s := NewPinnedSelector()
	ga := coordinate.GA{Group: "g", Artifact: "libx"}
	s.Pin(ga, "1.0.0")
	r := depRel(t, "a", "libx", "1.0.0")
	res := s.Select(r, EmptyPath(), s.InitialState())
	if res.Outcome != Unchanged {
		t.Fatalf("expected no-op substitution to report Unchanged, got %v", res.Outcome)
	}
}

func TestHighestVersionSelectorKeepsHigherVersion(t *testing.T) {
	s := NewHighestVersionSelector()
	st := s.InitialState()

	high := depRel(t, "a", "libx", "2.0.0")
	res := s.Select(high, EmptyPath(), st)
	if res.Outcome != Unchanged {
		t.Fatalf("expected first occurrence to pass through, got %v", res.Outcome)
	}
	st = st.Advance(high)

	low := depRel(t, "b", "libx", "1.0.0")
	res = s.Select(low, EmptyPath(), st)
	if res.Outcome != Substituted {
		t.Fatalf("expected a lower version to be substituted up, got %v", res.Outcome)
	}
	if res.Substitute.Version != "2.0.0" {
		t.Fatalf("expected substitute version 2.0.0, got %s", res.Substitute.Version)
	}
}

func TestHighestVersionSelectorAcceptsHigherLater(t *testing.T) {
	s := NewHighestVersionSelector()
	st := s.InitialState()

	low := depRel(t, "a", "libx", "1.0.0")
	st = st.Advance(low)

	higher := depRel(t, "b", "libx", "2.0.0")
	res := s.Select(higher, EmptyPath(), st)
	if res.Outcome != Unchanged {
		t.Fatalf("expected a higher later version to win unchanged, got %v", res.Outcome)
	}
}

func TestComposeSelectorsFallsBackWhenFirstUnchanged(t *testing.T) {
	pinned := NewPinnedSelector()
	ga := coordinate.GA{Group: "g", Artifact: "libx"}
	pinned.Pin(ga, "9.9.9")
	nearest := NewNearestWinsSelector()

	composed := NewComposeSelectors(nearest, pinned)
	st := composed.InitialState()

	first := depRel(t, "a", "libx", "1.0.0")
	res := composed.Select(first, EmptyPath(), st)
	if res.Outcome != Substituted || res.Substitute.Version != "9.9.9" {
		t.Fatalf("expected fallback pinned selector to substitute to 9.9.9, got %v %v", res.Outcome, res.Substitute)
	}
}

func TestComposeSelectorsPrefersFirstWhenItSubstitutes(t *testing.T) {
	nearest := NewNearestWinsSelector()
	pinned := NewPinnedSelector()
	composed := NewComposeSelectors(nearest, pinned)
	st := composed.InitialState()

	first := depRel(t, "a", "libx", "1.0.0")
	st = st.Advance(first)
	_ = composed.Select(first, EmptyPath(), st)

	second := depRel(t, "c", "libx", "2.0.0")
	res := composed.Select(second, EmptyPath(), st)
	if res.Outcome != Substituted || res.Substitute.Version != "1.0.0" {
		t.Fatalf("expected nearest-wins (first selector) to win the composition, got %v %v", res.Outcome, res.Substitute)
	}
}
