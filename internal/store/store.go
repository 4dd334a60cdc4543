// Package store defines the persistence abstraction the dependency
// graph engine consumes (spec.md §6). The engine never talks to a
// concrete database directly; it only ever calls through this
// interface, so the underlying property-graph persistence can be
// swapped (in-memory for tests, Postgres for production) without the
// traversal/view/cache logic in internal/graph changing at all.
package store

import (
	"context"

	"depgraph/internal/coordinate"
	"depgraph/internal/relationship"
)

// Well-known secondary index names. Exact storage layout is an
// implementation detail of each Store; callers only need the name.
const (
	IndexByGAV         = "by-gav"
	IndexByGA          = "by-ga"
	IndexMissingNodes   = "missing-nodes"
	IndexVariableNodes  = "variable-nodes"
	IndexAllRelationships = "all-relationships"
	IndexSelectionRelationships = "selection-relationships"
	IndexManagedGA      = "managed-ga"
	IndexAllCycles      = "all-cycles"
)

// QueryResult is a minimal row iterator returned by Store.Query,
// mirroring database/sql.Rows closely enough that a Postgres-backed
// Store can return the driver's own Rows value directly.
type QueryResult interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
}

// Store is the persistence abstraction consumed by internal/graph. It
// covers node/edge CRUD, secondary indices, typed property storage and
// transactions; it does not know about Path, PathInfo, Filter,
// Selector, or View -- those are graph-package concepts layered on
// top.
type Store interface {
	// CreateNode interns a coordinate, returning its existing NID if
	// already known or a freshly assigned one otherwise.
	CreateNode(ctx context.Context, c coordinate.Coordinate) (coordinate.NID, error)
	// CreateEdge creates a new relationship, assigning it a fresh RID.
	// Callers that want logical replacement (selection substitution)
	// create a new edge rather than mutating an existing one, per
	// spec.md §3's "Lifecycle".
	CreateEdge(ctx context.Context, r relationship.Relationship) (relationship.RID, error)

	// NodeByIndex looks up a single node by an indexed string value
	// (e.g. IndexByGAV).
	NodeByIndex(ctx context.Context, index, value string) (coordinate.NID, bool, error)
	// EdgesByIndex looks up edges by an indexed string value.
	EdgesByIndex(ctx context.Context, index, value string) ([]relationship.RID, error)

	// OutgoingEdges returns n's outgoing edges, optionally restricted
	// to the given relationship types (no types means all types).
	OutgoingEdges(ctx context.Context, n coordinate.NID, types ...relationship.Type) ([]relationship.Relationship, error)
	// IncomingEdges returns n's incoming edges, optionally restricted
	// to the given relationship types.
	IncomingEdges(ctx context.Context, n coordinate.NID, types ...relationship.Type) ([]relationship.Relationship, error)

	GetNode(ctx context.Context, n coordinate.NID) (coordinate.Coordinate, error)
	GetEdge(ctx context.Context, r relationship.RID) (relationship.Relationship, error)

	// DeclaredOutgoing reports whether n has ever had an outgoing edge
	// added, i.e. whether n is in the missing-node set's complement.
	DeclaredOutgoing(ctx context.Context, n coordinate.NID) (bool, error)
	// DeleteRelationshipsDeclaredBy deletes every outgoing edge
	// declared by n, returning n (and any now-undeclared targets) to
	// the missing-node set.
	DeleteRelationshipsDeclaredBy(ctx context.Context, n coordinate.NID) error

	SetNodeProperty(ctx context.Context, n coordinate.NID, key string, val any) error
	GetNodeProperty(ctx context.Context, n coordinate.NID, key string) (any, bool, error)
	RemoveNodeProperty(ctx context.Context, n coordinate.NID, key string) error

	SetEdgeProperty(ctx context.Context, r relationship.RID, key string, val any) error
	GetEdgeProperty(ctx context.Context, r relationship.RID, key string) (any, bool, error)
	RemoveEdgeProperty(ctx context.Context, r relationship.RID, key string) error

	// EnumerateIndex lists every value currently recorded under a
	// named secondary index, e.g. the GAV of every missing node.
	EnumerateIndex(ctx context.Context, index string) ([]string, error)

	// MarkCyclesInjected flags an edge as a cycle-injector so future
	// avoid-cycles traversals can skip it without re-deriving the
	// cycle (spec.md §4.7 invariant).
	MarkCyclesInjected(ctx context.Context, r relationship.RID) error
	// DiscardSelectionEdges removes every edge flagged as a selection
	// edge; called from the process shutdown hook (spec.md §5).
	DiscardSelectionEdges(ctx context.Context) error

	// EnsureViewNode looks up the view node keyed by shortID, creating
	// it (and returning created=true) if absent. The path/edge/node/
	// cycle caches for a view live in the graph.Engine's in-memory
	// ViewCache, not in the store -- the store only durably tracks
	// that the view is registered and its free-form properties.
	EnsureViewNode(ctx context.Context, shortID string) (created bool, err error)
	DeregisterView(ctx context.Context, shortID string) error
	ListViews(ctx context.Context) ([]string, error)
	SetViewProperty(ctx context.Context, shortID, key string, val any) error
	GetViewProperty(ctx context.Context, shortID, key string) (any, bool, error)

	// WithTx runs fn inside a scoped transaction, guaranteed
	// commit-or-abort on every exit path (spec.md §5).
	WithTx(ctx context.Context, fn func(Tx) error) error

	// Query runs a declarative query string with positional
	// parameters. Optional; an implementation without query support
	// returns an error.
	Query(ctx context.Context, ql string, args ...any) (QueryResult, error)

	Close() error
}

// Tx is the transactional handle passed to WithTx's callback. It
// shares the full Store surface so mutating code does not need two
// parallel APIs.
type Tx interface {
	Store
}
