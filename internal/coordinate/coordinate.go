// Package coordinate implements the value type for build-artifact
// coordinates (group, artifact, version, plus optional classifier and
// extension) that every node in the dependency graph is keyed by.
package coordinate

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// NID is the stable node identifier assigned by the store when a
// coordinate is first interned. The zero value never denotes a real
// node.
type NID uint64

func (n NID) String() string {
	return fmt.Sprintf("%d", uint64(n))
}

// GA is the (group, artifact) projection of a Coordinate, used as the
// dedup key for the managed-GA and by-GA secondary indices.
type GA struct {
	Group    string
	Artifact string
}

func (ga GA) String() string {
	return ga.Group + ":" + ga.Artifact
}

// GAV is the (group, artifact, version) projection, the store's
// primary dedup key for a coordinate.
type GAV struct {
	Group    string
	Artifact string
	Version  string
}

func (gav GAV) String() string {
	return gav.Group + ":" + gav.Artifact + ":" + gav.Version
}

// Coordinate identifies a build artifact. Classifier and Extension are
// optional and distinguish otherwise-identical GAVs (e.g. a "sources"
// jar versus the main jar).
type Coordinate struct {
	Group      string
	Artifact   string
	Version    string
	Classifier string // "" means absent
	Extension  string // "" means absent
}

// Option configures an optional attribute of a Coordinate at
// construction time.
type Option func(*Coordinate)

// WithClassifier sets the coordinate's classifier.
func WithClassifier(classifier string) Option {
	return func(c *Coordinate) { c.Classifier = classifier }
}

// WithExtension sets the coordinate's extension.
func WithExtension(extension string) Option {
	return func(c *Coordinate) { c.Extension = extension }
}

// New constructs a Coordinate, validating that group, artifact and
// version are all present.
func New(group, artifact, version string, opts ...Option) (Coordinate, error) {
	group = strings.TrimSpace(group)
	artifact = strings.TrimSpace(artifact)
	version = strings.TrimSpace(version)
	if group == "" || artifact == "" || version == "" {
		return Coordinate{}, fmt.Errorf("coordinate: group, artifact and version are required, got %q:%q:%q", group, artifact, version)
	}
	c := Coordinate{Group: group, Artifact: artifact, Version: version}
	for _, opt := range opts {
		opt(&c)
	}
	return c, nil
}

// MustNew is New but panics on error; intended for tests and static
// fixtures only.
func MustNew(group, artifact, version string, opts ...Option) Coordinate {
	c, err := New(group, artifact, version, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Equal reports whether two coordinates have identical fields.
func (c Coordinate) Equal(o Coordinate) bool {
	return c.Group == o.Group && c.Artifact == o.Artifact && c.Version == o.Version &&
		c.Classifier == o.Classifier && c.Extension == o.Extension
}

// Hash returns a stable hash over every present field, suitable for
// use as a map key surrogate or for deriving deterministic ids.
func (c Coordinate) Hash() uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(c.String()))
	return h.Sum64()
}

// String renders the canonical form: group:artifact:version[:classifier][@extension].
func (c Coordinate) String() string {
	var b strings.Builder
	b.WriteString(c.Group)
	b.WriteByte(':')
	b.WriteString(c.Artifact)
	b.WriteByte(':')
	b.WriteString(c.Version)
	if c.Classifier != "" {
		b.WriteByte(':')
		b.WriteString(c.Classifier)
	}
	if c.Extension != "" {
		b.WriteByte('@')
		b.WriteString(c.Extension)
	}
	return b.String()
}

// GA projects the coordinate to its (group, artifact) pair.
func (c Coordinate) GA() GA {
	return GA{Group: c.Group, Artifact: c.Artifact}
}

// GAV projects the coordinate to its (group, artifact, version) triple.
func (c Coordinate) GAV() GAV {
	return GAV{Group: c.Group, Artifact: c.Artifact, Version: c.Version}
}

// WithVersion returns a copy of c with Version replaced, preserving
// every other field. Used by selectors to synthesize a substitute
// coordinate for an ad-hoc version selection.
func (c Coordinate) WithVersion(version string) Coordinate {
	c.Version = version
	return c
}

// WithExtension returns a copy of c with Extension replaced.
func (c Coordinate) WithExtension(extension string) Coordinate {
	c.Extension = extension
	return c
}

// IsVariable reports whether the coordinate's version is not a single
// literal semantic version -- i.e. it is a Maven-style range
// ("[1.0,2.0)", "(,1.0]"), a property expression ("${revision}"), or
// otherwise fails to parse as a literal version.
func (c Coordinate) IsVariable() bool {
	return !IsLiteralVersion(c.Version)
}

// IsLiteralVersion reports whether raw parses as a single concrete
// semantic version, as opposed to a range or unresolved expression.
func IsLiteralVersion(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	if strings.ContainsAny(raw, "[](),") {
		return false
	}
	if strings.Contains(raw, "${") {
		return false
	}
	_, err := semver.NewVersion(raw)
	return err == nil
}

// ParseVersionLiteral parses raw as a literal semantic version,
// returning ErrInvalidVersion-wrapping error (via the caller) when raw
// is a range, expression, or otherwise unparseable.
func ParseVersionLiteral(raw string) (*semver.Version, error) {
	raw = strings.TrimSpace(raw)
	if !IsLiteralVersion(raw) {
		return nil, fmt.Errorf("coordinate: %q is not a literal version", raw)
	}
	return semver.NewVersion(raw)
}

// CompareVersions compares two literal version strings the way
// HighestVersionSelector does: -1, 0, 1 for a<b, a==b, a>b. A
// non-literal version always compares as less than a literal one; two
// non-literal versions compare equal only when their raw strings
// match.
func CompareVersions(a, b string) int {
	av, aErr := ParseVersionLiteral(a)
	bv, bErr := ParseVersionLiteral(b)
	switch {
	case aErr == nil && bErr == nil:
		return av.Compare(bv)
	case aErr != nil && bErr != nil:
		if a == b {
			return 0
		}
		if a < b {
			return -1
		}
		return 1
	case aErr != nil:
		return -1
	default:
		return 1
	}
}
