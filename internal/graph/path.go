package graph

import (
	"strconv"
	"strings"

	"depgraph/internal/relationship"
)

// Path is the ordered sequence of edge identifiers from a root to the
// current node (spec.md §4.3). The empty Path denotes a root itself.
// Path is immutable; Append returns a new value.
type Path struct {
	rids []relationship.RID
}

// EmptyPath returns the zero-length Path representing a root.
func EmptyPath() Path {
	return Path{}
}

// Append returns a new Path with rid appended after the receiver's
// sequence. The receiver is never mutated.
func (p Path) Append(rid relationship.RID) Path {
	next := make([]relationship.RID, len(p.rids)+1)
	copy(next, p.rids)
	next[len(p.rids)] = rid
	return Path{rids: next}
}

// LastRID returns the final edge identifier of the path and true, or
// the zero RID and false for an empty (root) path.
func (p Path) LastRID() (relationship.RID, bool) {
	if len(p.rids) == 0 {
		return 0, false
	}
	return p.rids[len(p.rids)-1], true
}

// Iter returns the path's edge identifiers in traversal order. The
// returned slice must not be mutated by the caller.
func (p Path) Iter() []relationship.RID {
	return p.rids
}

// Len reports the number of edges in the path.
func (p Path) Len() int {
	return len(p.rids)
}

// Key returns a deterministic serialization of the path, suitable for
// use as a map key in ViewCache.Paths.
func (p Path) Key() string {
	if len(p.rids) == 0 {
		return ""
	}
	var b strings.Builder
	for i, rid := range p.rids {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(strconv.FormatUint(uint64(rid), 10))
	}
	return b.String()
}

// Equal reports whether two Paths have identical edge sequences.
func (p Path) Equal(o Path) bool {
	if len(p.rids) != len(o.rids) {
		return false
	}
	for i := range p.rids {
		if p.rids[i] != o.rids[i] {
			return false
		}
	}
	return true
}

// CreatePath builds a Path from an explicit edge sequence -- the
// inverse of Iter, used by Round-trip tests (spec.md §8).
func CreatePath(edges []relationship.RID) Path {
	rids := make([]relationship.RID, len(edges))
	copy(rids, edges)
	return Path{rids: rids}
}
