package graph

import "errors"

// Error kinds per spec.md §7. Wrap with fmt.Errorf("...: %w", ErrX) at
// the call site so callers can still errors.Is against the sentinel.
var (
	// ErrStoreClosed names the closed-store kind. No Engine method
	// returns it: after Engine.Shutdown a store call fails with the
	// store's own closed error, which the calling method wraps like any
	// other store error.
	ErrStoreClosed = errors.New("depgraph: store is closed")
	// ErrInvalidArgument covers malformed coordinates, wrong concrete
	// Path types, and unsupported query forms.
	ErrInvalidArgument = errors.New("depgraph: invalid argument")
	// ErrInvalidVersion is returned by RegisterView when a root's node
	// cannot be created. In AddRelationships a node-creation failure is
	// logged and that edge dropped instead, and the batch continues
	// (spec.md §9(a)).
	ErrInvalidVersion = errors.New("depgraph: invalid version")
	// ErrSelectionConflict names the selection-conflict kind. No code
	// path returns it: selection edges are created without checking
	// whether they close a cycle.
	ErrSelectionConflict = errors.New("depgraph: selection would introduce a cycle")
	// ErrDriverFailure wraps unexpected store errors.
	ErrDriverFailure = errors.New("depgraph: store driver failure")
)
