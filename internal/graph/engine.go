package graph

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"depgraph/internal/coordinate"
	"depgraph/internal/metrics"
	"depgraph/internal/relationship"
	"depgraph/internal/store"
)

// Archiver fetches and durably stores a POM document's raw bytes,
// keyed by the declaring coordinate's GAV and the location it was
// fetched from. internal/archive.Store satisfies this.
type Archiver interface {
	Fetch(ctx context.Context, declaringGAV, pomLocation string) (int, error)
}

// Engine owns the store, the set of registered views, and the
// single-writer mutex that every mutation serializes through (spec.md
// §5: "a coarse mutex around store-mutating transactions; readers
// never block on it and see the pre-transaction state until it
// commits"). Callers outside the package construct an Engine with
// NewEngine and the Views they register with NewView.
type Engine struct {
	writeMu sync.Mutex

	store    store.Store
	archiver Archiver

	viewsMu sync.RWMutex
	views   map[string]*View
	caches  map[string]*ViewCache
}

// EngineOption configures optional Engine behavior at construction.
type EngineOption func(*Engine)

// WithArchiver enables Engine.ArchivePom, backed by a.
func WithArchiver(a Archiver) EngineOption {
	return func(e *Engine) { e.archiver = a }
}

// NewEngine returns an Engine backed by st.
func NewEngine(st store.Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:  st,
		views:  map[string]*View{},
		caches: map[string]*ViewCache{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ArchivePom fetches and archives the POM document at r's
// PomLocation, keyed by r.Declaring's GAV. It is a no-op returning
// ErrInvalidArgument if no Archiver was configured or r has no
// PomLocation, matching spec.md §4.1's "pom_location: URI" field being
// optional.
func (e *Engine) ArchivePom(ctx context.Context, r relationship.Relationship) (int, error) {
	if e.archiver == nil {
		return 0, fmt.Errorf("%w: no archiver configured", ErrInvalidArgument)
	}
	if r.PomLocation == "" {
		return 0, fmt.Errorf("%w: relationship has no pom location", ErrInvalidArgument)
	}
	n, err := e.archiver.Fetch(ctx, r.Declaring.GAV().String(), r.PomLocation)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDriverFailure, err)
	}
	return n, nil
}

// RegisterView durably records v (creating its view node if absent)
// and materializes its in-memory ViewCache by seeding every root and
// running an initial traversal over whatever the store already holds,
// per spec.md §4.6 registration steps 1-3.
func (e *Engine) RegisterView(ctx context.Context, v *View) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	log.Printf("graph: registering view %s (%d root(s))", v.ShortID, len(v.Roots))

	if len(v.Roots) == 0 {
		return fmt.Errorf("%w: view %s has no roots", ErrInvalidArgument, v.ShortID)
	}

	if err := e.store.WithTx(ctx, func(tx store.Tx) error {
		_, err := tx.EnsureViewNode(ctx, v.ShortID)
		return err
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrDriverFailure, err)
	}

	cache := NewViewCache()
	for _, root := range v.Roots {
		nid, err := e.store.CreateNode(ctx, root)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidVersion, err)
		}
		cache.SeedRoot(nid, initialPathInfo(v))
	}

	e.viewsMu.Lock()
	e.views[v.ShortID] = v
	e.caches[v.ShortID] = cache
	e.viewsMu.Unlock()
	metrics.RegisteredViews.Set(float64(len(e.views)))

	return e.rematerialize(ctx, v, cache)
}

// DeregisterView removes v's durable view node and drops its
// in-memory cache, matching store.Store.DeregisterView's contract
// that a view no longer tracked stops receiving re-materialization
// passes.
func (e *Engine) DeregisterView(ctx context.Context, shortID string) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if err := e.store.DeregisterView(ctx, shortID); err != nil {
		return fmt.Errorf("%w: %v", ErrDriverFailure, err)
	}

	e.viewsMu.Lock()
	delete(e.views, shortID)
	delete(e.caches, shortID)
	metrics.RegisteredViews.Set(float64(len(e.views)))
	e.viewsMu.Unlock()
	return nil
}

// View returns the registered view for shortID, or false if none is
// registered.
func (e *Engine) View(shortID string) (*View, bool) {
	e.viewsMu.RLock()
	defer e.viewsMu.RUnlock()
	v, ok := e.views[shortID]
	return v, ok
}

// Cache returns the in-memory ViewCache for shortID, or false if none
// is registered.
func (e *Engine) Cache(shortID string) (*ViewCache, bool) {
	e.viewsMu.RLock()
	defer e.viewsMu.RUnlock()
	c, ok := e.caches[shortID]
	return c, ok
}

// applyRelationships interns every declaring/target coordinate and
// creates the edges inside a single store transaction, then
// re-materializes every registered view's cache (spec.md §4.1, §4.6:
// "any store mutation... triggers re-materialization of every
// registered view whose cache might be affected"). A relationship
// whose coordinate fails validation is dropped and logged rather than
// aborting the whole batch or surfacing per-edge errors to the caller
// (spec.md §9(a), §9(c)).
func (e *Engine) applyRelationships(ctx context.Context, edges []relationship.Relationship) ([]relationship.RID, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	log.Printf("graph: applying %d relationship(s)", len(edges))

	var ids []relationship.RID
	var declNIDs []coordinate.NID

	txErr := e.store.WithTx(ctx, func(tx store.Tx) error {
		for _, r := range edges {
			declNID, err := tx.CreateNode(ctx, r.Declaring)
			if err != nil {
				log.Printf("graph: dropping relationship, declaring %s invalid: %v", r.Declaring, err)
				continue
			}
			if _, err := tx.CreateNode(ctx, r.Target); err != nil {
				log.Printf("graph: dropping relationship, target %s invalid: %v", r.Target, err)
				continue
			}
			rid, err := tx.CreateEdge(ctx, r)
			if err != nil {
				log.Printf("graph: dropping relationship %s -> %s: %v", r.Declaring, r.Target, err)
				continue
			}
			ids = append(ids, rid)
			declNIDs = append(declNIDs, declNID)
		}
		return nil
	})
	if txErr != nil {
		log.Printf("graph: applyRelationships transaction failed: %v", txErr)
		return nil, fmt.Errorf("%w: %v", ErrDriverFailure, txErr)
	}

	e.viewsMu.RLock()
	views := make([]*View, 0, len(e.views))
	caches := make([]*ViewCache, 0, len(e.views))
	for id, v := range e.views {
		views = append(views, v)
		caches = append(caches, e.caches[id])
	}
	e.viewsMu.RUnlock()

	for i, v := range views {
		cache := caches[i]
		// A new edge declared from a node already in this view's cache
		// can close a loop back to an ancestor, so the next
		// re-materialization must scan for cycles again rather than
		// trust the previous pass's avoid_cycles fast path.
		for _, declNID := range declNIDs {
			if _, ok := cache.Nodes[declNID]; ok {
				v.CyclePending = true
				break
			}
		}
		if err := e.rematerialize(ctx, v, cache); err != nil {
			log.Printf("graph: %v", err)
			continue
		}
		v.NotifyInvalidated()
	}

	return ids, nil
}

// rematerialize runs a ViewUpdater-driven traversal over v's roots and
// folds every newly-accepted path into cache. It is called with
// writeMu already held.
func (e *Engine) rematerialize(ctx context.Context, v *View, cache *ViewCache) error {
	start := time.Now()
	defer func() {
		metrics.TraversalsTotal.WithLabelValues(v.ShortID).Inc()
		metrics.TraversalDuration.WithLabelValues(v.ShortID).Observe(time.Since(start).Seconds())
	}()

	updater := NewViewUpdater(ctx, e.store, v, cache, DirectionOut)
	opts := TraversalOptions{
		Start:       v.Roots,
		Direction:   DirectionOut,
		Uniqueness:  RelationshipPath,
		AvoidCycles: !v.CyclePending,
		Sorted:      true,
	}
	if err := Traverse(ctx, e.store, v, opts, updater); err != nil {
		return fmt.Errorf("graph: re-materialization of view %s failed: %w", v.ShortID, err)
	}
	if updater.Err() != nil {
		return fmt.Errorf("%w: view %s: %v", ErrDriverFailure, v.ShortID, updater.Err())
	}
	return nil
}

// DetectCycles returns v's cycles via GetCycles (spec.md §4.7), which
// runs a full cycle scan only when v.CyclePending is set and otherwise
// returns the cycles recorded by the previous scan, and adds the count
// returned to the cycles-detected metric.
func (e *Engine) DetectCycles(ctx context.Context, shortID string) ([]Cycle, error) {
	v, ok := e.View(shortID)
	if !ok {
		return nil, fmt.Errorf("%w: view %q not registered", ErrInvalidArgument, shortID)
	}
	cycles, err := GetCycles(ctx, e.store, v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDriverFailure, err)
	}
	if len(cycles) > 0 {
		metrics.CyclesDetectedTotal.WithLabelValues(shortID).Add(float64(len(cycles)))
	}
	return cycles, nil
}

// RegisterViewSelection installs a pin on v's PinnedSelector (or the
// first PinnedSelector found inside a ComposeSelectors chain),
// invalidates every cached path that touches a node of the GA (any
// version) together with everything cached below it, and
// re-materializes v, per spec.md §4.6's ad-hoc version selection: "a selection
// does not retroactively rewrite history; it only changes what future
// traversal steps choose, and invalidates cache entries that depended
// on the old choice."
func (e *Engine) RegisterViewSelection(ctx context.Context, shortID string, ga coordinate.GA, version string) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	v, ok := e.View(shortID)
	if !ok {
		return fmt.Errorf("%w: view %q not registered", ErrInvalidArgument, shortID)
	}
	cache, ok := e.Cache(shortID)
	if !ok {
		return fmt.Errorf("%w: view %q has no cache", ErrInvalidArgument, shortID)
	}

	pinned, ok := findPinnedSelector(v.Selector)
	if !ok {
		return fmt.Errorf("%w: view %q has no pinnable selector", ErrInvalidArgument, shortID)
	}
	pinned.Pin(ga, version)

	keys, err := e.pathKeysThroughGA(ctx, cache, ga)
	if err != nil {
		return err
	}
	for _, key := range keys {
		cache.InvalidateFrom(key)
	}

	if err := e.rematerialize(ctx, v, cache); err != nil {
		return err
	}
	v.NotifyInvalidated()
	return nil
}

func findPinnedSelector(s Selector) (*PinnedSelector, bool) {
	switch sel := s.(type) {
	case *PinnedSelector:
		return sel, true
	case *ComposeSelectors:
		if p, ok := findPinnedSelector(sel.first); ok {
			return p, true
		}
		return findPinnedSelector(sel.fallback)
	default:
		return nil, false
	}
}

// pathKeysThroughGA returns every cached path key that touches a node
// whose GA matches ga, via ViewCache's byContainsNode index -- this
// covers both paths terminating at ga and paths that merely pass
// through an earlier occurrence of it, so every path key returned can
// be handed to ViewCache.InvalidateFrom to drop that path and anything
// cached downstream of it.
func (e *Engine) pathKeysThroughGA(ctx context.Context, cache *ViewCache, ga coordinate.GA) ([]string, error) {
	keys := map[string]struct{}{}
	for nid := range cache.Nodes {
		c, err := e.store.GetNode(ctx, nid)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDriverFailure, err)
		}
		if c.GA() != ga {
			continue
		}
		for key := range cache.byContainsNode[nid] {
			keys[key] = struct{}{}
		}
	}
	out := make([]string, 0, len(keys))
	for key := range keys {
		out = append(out, key)
	}
	return out, nil
}

// Shutdown discards every selection edge across the whole store
// (spec.md §5: "selection edges are ephemeral and discarded at
// process shutdown") and closes the store.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	log.Printf("graph: shutting down, discarding selection edges")

	if err := e.store.DiscardSelectionEdges(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrDriverFailure, err)
	}
	return e.store.Close()
}
