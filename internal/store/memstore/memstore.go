// Package memstore is the in-memory reference implementation of
// store.Store. It is the default backend and the one the internal/graph
// package's own tests run against; store/pgstore is a drop-in
// postgres-backed alternative with identical semantics.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/tidwall/btree"

	"depgraph/internal/coordinate"
	"depgraph/internal/relationship"
	"depgraph/internal/store"
)

type nodeRecord struct {
	nid        coordinate.NID
	coord      coordinate.Coordinate
	declared   bool // has at least one outgoing edge ever been added
	properties map[string]any
}

type edgeRecord struct {
	rel        relationship.Relationship
	properties map[string]any
}

type viewRecord struct {
	shortID    string
	properties map[string]any
}

// indexEntry is the unit stored in every ordered secondary index: a
// string value (the index key, e.g. a GAV or GA rendering) paired with
// the id it points at, so Ascend-ing the btree yields a deterministic
// order even when many entries share the same value.
type indexEntry struct {
	value string
	id    uint64
}

func lessIndexEntry(a, b indexEntry) bool {
	if a.value != b.value {
		return a.value < b.value
	}
	return a.id < b.id
}

// Store is the in-memory reference store.Store implementation.
type Store struct {
	mu sync.RWMutex

	nextNID uint64
	nextRID uint64

	nodesByNID map[coordinate.NID]*nodeRecord
	nodesByGAV map[coordinate.GAV]coordinate.NID

	edgesByRID      map[relationship.RID]*edgeRecord
	outgoingByNID   map[coordinate.NID][]relationship.RID
	incomingByNID   map[coordinate.NID][]relationship.RID

	views map[string]*viewRecord

	indices map[string]*btree.BTreeG[indexEntry]

	closed bool
}

// New returns an empty in-memory store.
func New() *Store {
	s := &Store{
		nodesByNID:    make(map[coordinate.NID]*nodeRecord),
		nodesByGAV:    make(map[coordinate.GAV]coordinate.NID),
		edgesByRID:    make(map[relationship.RID]*edgeRecord),
		outgoingByNID: make(map[coordinate.NID][]relationship.RID),
		incomingByNID: make(map[coordinate.NID][]relationship.RID),
		views:         make(map[string]*viewRecord),
		indices:       make(map[string]*btree.BTreeG[indexEntry]),
	}
	for _, name := range []string{
		store.IndexByGAV, store.IndexByGA, store.IndexMissingNodes,
		store.IndexVariableNodes, store.IndexAllRelationships,
		store.IndexSelectionRelationships, store.IndexManagedGA, store.IndexAllCycles,
	} {
		s.indices[name] = btree.NewBTreeG(lessIndexEntry)
	}
	return s
}

func (s *Store) indexAdd(name, value string, id uint64) {
	s.indices[name].Set(indexEntry{value: value, id: id})
}

func (s *Store) indexRemove(name, value string, id uint64) {
	s.indices[name].Delete(indexEntry{value: value, id: id})
}

func (s *Store) checkOpen() error {
	if s.closed {
		return fmt.Errorf("memstore: %w", errStoreClosed)
	}
	return nil
}

var errStoreClosed = fmt.Errorf("store is closed")

func (s *Store) CreateNode(_ context.Context, c coordinate.Coordinate) (coordinate.NID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	gav := c.GAV()
	if nid, ok := s.nodesByGAV[gav]; ok {
		return nid, nil
	}
	s.nextNID++
	nid := coordinate.NID(s.nextNID)
	rec := &nodeRecord{nid: nid, coord: c, properties: map[string]any{}}
	s.nodesByNID[nid] = rec
	s.nodesByGAV[gav] = nid

	s.indexAdd(store.IndexByGAV, gav.String(), uint64(nid))
	s.indexAdd(store.IndexByGA, c.GA().String(), uint64(nid))
	s.indexAdd(store.IndexMissingNodes, gav.String(), uint64(nid))
	if c.IsVariable() {
		s.indexAdd(store.IndexVariableNodes, gav.String(), uint64(nid))
	}
	return nid, nil
}

func (s *Store) CreateEdge(_ context.Context, r relationship.Relationship) (relationship.RID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	declNID, ok := s.nodesByGAV[r.Declaring.GAV()]
	if !ok {
		return 0, fmt.Errorf("memstore: declaring node %s not created", r.Declaring)
	}
	targetNID, ok := s.nodesByGAV[r.Target.GAV()]
	if !ok {
		return 0, fmt.Errorf("memstore: target node %s not created", r.Target)
	}

	var rid relationship.RID
	if r.Selection {
		// Selection edges draw ids from a different space than the
		// monotonic counter (random low bits with the top bit set,
		// which the counter never reaches) so a discard-and-recreate
		// cycle never collides with a durable edge id that was
		// allocated while the selection edge existed.
		rid = relationship.RID(uint64(uuid.New().ID()) | 1<<63)
	} else {
		s.nextRID++
		rid = relationship.RID(s.nextRID)
	}
	r.ID = rid

	s.edgesByRID[rid] = &edgeRecord{rel: r, properties: map[string]any{}}
	s.outgoingByNID[declNID] = append(s.outgoingByNID[declNID], rid)
	s.incomingByNID[targetNID] = append(s.incomingByNID[targetNID], rid)

	if declRec, ok := s.nodesByNID[declNID]; ok && !declRec.declared {
		declRec.declared = true
		s.indexRemove(store.IndexMissingNodes, r.Declaring.GAV().String(), uint64(declNID))
	}

	s.indexAdd(store.IndexAllRelationships, r.Type.String(), uint64(rid))
	if r.Selection {
		s.indexAdd(store.IndexSelectionRelationships, r.Type.String(), uint64(rid))
	}
	if r.Managed {
		s.indexAdd(store.IndexManagedGA, r.Target.GA().String(), uint64(rid))
	}
	return rid, nil
}

func (s *Store) NodeByIndex(_ context.Context, index, value string) (coordinate.NID, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return 0, false, err
	}
	idx, ok := s.indices[index]
	if !ok {
		return 0, false, fmt.Errorf("memstore: unknown index %q", index)
	}
	var found coordinate.NID
	var hit bool
	idx.Ascend(indexEntry{value: value}, func(e indexEntry) bool {
		if e.value != value {
			return false
		}
		found, hit = coordinate.NID(e.id), true
		return false
	})
	return found, hit, nil
}

func (s *Store) EdgesByIndex(_ context.Context, index, value string) ([]relationship.RID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	idx, ok := s.indices[index]
	if !ok {
		return nil, fmt.Errorf("memstore: unknown index %q", index)
	}
	var out []relationship.RID
	idx.Ascend(indexEntry{value: value}, func(e indexEntry) bool {
		if e.value != value {
			return false
		}
		out = append(out, relationship.RID(e.id))
		return true
	})
	return out, nil
}

func (s *Store) OutgoingEdges(_ context.Context, n coordinate.NID, types ...relationship.Type) ([]relationship.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.filterEdges(s.outgoingByNID[n], types), nil
}

func (s *Store) IncomingEdges(_ context.Context, n coordinate.NID, types ...relationship.Type) ([]relationship.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.filterEdges(s.incomingByNID[n], types), nil
}

func (s *Store) filterEdges(rids []relationship.RID, types []relationship.Type) []relationship.Relationship {
	allow := typeSet(types)
	out := make([]relationship.Relationship, 0, len(rids))
	for _, rid := range rids {
		rec, ok := s.edgesByRID[rid]
		if !ok {
			continue
		}
		if allow != nil && !allow[rec.rel.Type] {
			continue
		}
		out = append(out, rec.rel)
	}
	return out
}

func typeSet(types []relationship.Type) map[relationship.Type]bool {
	if len(types) == 0 {
		return nil
	}
	out := make(map[relationship.Type]bool, len(types))
	for _, t := range types {
		out[t] = true
	}
	return out
}

func (s *Store) GetNode(_ context.Context, n coordinate.NID) (coordinate.Coordinate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return coordinate.Coordinate{}, err
	}
	rec, ok := s.nodesByNID[n]
	if !ok {
		return coordinate.Coordinate{}, fmt.Errorf("memstore: node %d not found", n)
	}
	return rec.coord, nil
}

func (s *Store) GetEdge(_ context.Context, r relationship.RID) (relationship.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return relationship.Relationship{}, err
	}
	rec, ok := s.edgesByRID[r]
	if !ok {
		return relationship.Relationship{}, fmt.Errorf("memstore: edge %d not found", r)
	}
	return rec.rel, nil
}

func (s *Store) DeclaredOutgoing(_ context.Context, n coordinate.NID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	rec, ok := s.nodesByNID[n]
	if !ok {
		return false, fmt.Errorf("memstore: node %d not found", n)
	}
	return rec.declared, nil
}

func (s *Store) DeleteRelationshipsDeclaredBy(_ context.Context, n coordinate.NID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	declRec, ok := s.nodesByNID[n]
	if !ok {
		return fmt.Errorf("memstore: node %d not found", n)
	}
	rids := s.outgoingByNID[n]
	delete(s.outgoingByNID, n)

	for _, rid := range rids {
		rec, ok := s.edgesByRID[rid]
		if !ok {
			continue
		}
		delete(s.edgesByRID, rid)
		s.indexRemove(store.IndexAllRelationships, rec.rel.Type.String(), uint64(rid))
		if rec.rel.Selection {
			s.indexRemove(store.IndexSelectionRelationships, rec.rel.Type.String(), uint64(rid))
		}
		if rec.rel.Managed {
			s.indexRemove(store.IndexManagedGA, rec.rel.Target.GA().String(), uint64(rid))
		}

		targetNID, ok := s.nodesByGAV[rec.rel.Target.GAV()]
		if !ok {
			continue
		}
		s.incomingByNID[targetNID] = removeRID(s.incomingByNID[targetNID], rid)
		if targetRec, ok := s.nodesByNID[targetNID]; ok && len(s.outgoingByNID[targetNID]) == 0 {
			if targetRec.declared {
				targetRec.declared = false
				s.indexAdd(store.IndexMissingNodes, targetRec.coord.GAV().String(), uint64(targetNID))
			}
		}
	}

	if declRec.declared {
		declRec.declared = false
		s.indexAdd(store.IndexMissingNodes, declRec.coord.GAV().String(), uint64(n))
	}
	return nil
}

func removeRID(rids []relationship.RID, target relationship.RID) []relationship.RID {
	out := rids[:0]
	for _, rid := range rids {
		if rid != target {
			out = append(out, rid)
		}
	}
	return out
}

func (s *Store) SetNodeProperty(_ context.Context, n coordinate.NID, key string, val any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	rec, ok := s.nodesByNID[n]
	if !ok {
		return fmt.Errorf("memstore: node %d not found", n)
	}
	rec.properties[key] = val
	return nil
}

func (s *Store) GetNodeProperty(_ context.Context, n coordinate.NID, key string) (any, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, false, err
	}
	rec, ok := s.nodesByNID[n]
	if !ok {
		return nil, false, fmt.Errorf("memstore: node %d not found", n)
	}
	v, ok := rec.properties[key]
	return v, ok, nil
}

func (s *Store) RemoveNodeProperty(_ context.Context, n coordinate.NID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	rec, ok := s.nodesByNID[n]
	if !ok {
		return fmt.Errorf("memstore: node %d not found", n)
	}
	delete(rec.properties, key)
	return nil
}

func (s *Store) SetEdgeProperty(_ context.Context, r relationship.RID, key string, val any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	rec, ok := s.edgesByRID[r]
	if !ok {
		return fmt.Errorf("memstore: edge %d not found", r)
	}
	rec.properties[key] = val
	return nil
}

func (s *Store) GetEdgeProperty(_ context.Context, r relationship.RID, key string) (any, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, false, err
	}
	rec, ok := s.edgesByRID[r]
	if !ok {
		return nil, false, fmt.Errorf("memstore: edge %d not found", r)
	}
	v, ok := rec.properties[key]
	return v, ok, nil
}

func (s *Store) RemoveEdgeProperty(_ context.Context, r relationship.RID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	rec, ok := s.edgesByRID[r]
	if !ok {
		return fmt.Errorf("memstore: edge %d not found", r)
	}
	delete(rec.properties, key)
	return nil
}

func (s *Store) EnumerateIndex(_ context.Context, index string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	idx, ok := s.indices[index]
	if !ok {
		return nil, fmt.Errorf("memstore: unknown index %q", index)
	}
	seen := make(map[string]struct{})
	var out []string
	idx.Scan(func(e indexEntry) bool {
		if _, ok := seen[e.value]; !ok {
			seen[e.value] = struct{}{}
			out = append(out, e.value)
		}
		return true
	})
	return out, nil
}

func (s *Store) MarkCyclesInjected(_ context.Context, r relationship.RID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	rec, ok := s.edgesByRID[r]
	if !ok {
		return fmt.Errorf("memstore: edge %d not found", r)
	}
	rec.rel.CyclesInjected = true
	s.indexAdd(store.IndexAllCycles, rec.rel.Type.String(), uint64(r))
	return nil
}

func (s *Store) DiscardSelectionEdges(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	var toDelete []relationship.RID
	for rid, rec := range s.edgesByRID {
		if rec.rel.Selection {
			toDelete = append(toDelete, rid)
		}
	}
	for _, rid := range toDelete {
		rec := s.edgesByRID[rid]
		delete(s.edgesByRID, rid)
		s.indexRemove(store.IndexAllRelationships, rec.rel.Type.String(), uint64(rid))
		s.indexRemove(store.IndexSelectionRelationships, rec.rel.Type.String(), uint64(rid))
		if declNID, ok := s.nodesByGAV[rec.rel.Declaring.GAV()]; ok {
			s.outgoingByNID[declNID] = removeRID(s.outgoingByNID[declNID], rid)
		}
		if targetNID, ok := s.nodesByGAV[rec.rel.Target.GAV()]; ok {
			s.incomingByNID[targetNID] = removeRID(s.incomingByNID[targetNID], rid)
		}
	}
	return nil
}

func (s *Store) EnsureViewNode(_ context.Context, shortID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	if _, ok := s.views[shortID]; ok {
		return false, nil
	}
	s.views[shortID] = &viewRecord{shortID: shortID, properties: map[string]any{}}
	return true, nil
}

func (s *Store) DeregisterView(_ context.Context, shortID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	delete(s.views, shortID)
	return nil
}

func (s *Store) ListViews(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(s.views))
	for id := range s.views {
		out = append(out, id)
	}
	return out, nil
}

func (s *Store) SetViewProperty(_ context.Context, shortID, key string, val any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	v, ok := s.views[shortID]
	if !ok {
		return fmt.Errorf("memstore: view %q not registered", shortID)
	}
	v.properties[key] = val
	return nil
}

func (s *Store) GetViewProperty(_ context.Context, shortID, key string) (any, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, false, err
	}
	v, ok := s.views[shortID]
	if !ok {
		return nil, false, fmt.Errorf("memstore: view %q not registered", shortID)
	}
	val, ok := v.properties[key]
	return val, ok, nil
}

// WithTx runs fn against s directly: the in-memory store has no
// rollback log, so an error from fn is returned as is and the writes fn
// made before failing stay applied. Each method called by fn takes s.mu
// for its own body only, so a concurrent reader can observe the writes
// of an fn that is still running.
func (s *Store) WithTx(_ context.Context, fn func(store.Tx) error) error {
	return fn((*txView)(s))
}

// txView adapts *Store to store.Tx without giving transactional code a
// way to nest WithTx calls against itself.
type txView Store

func (t *txView) CreateNode(ctx context.Context, c coordinate.Coordinate) (coordinate.NID, error) {
	return (*Store)(t).CreateNode(ctx, c)
}
func (t *txView) CreateEdge(ctx context.Context, r relationship.Relationship) (relationship.RID, error) {
	return (*Store)(t).CreateEdge(ctx, r)
}
func (t *txView) NodeByIndex(ctx context.Context, index, value string) (coordinate.NID, bool, error) {
	return (*Store)(t).NodeByIndex(ctx, index, value)
}
func (t *txView) EdgesByIndex(ctx context.Context, index, value string) ([]relationship.RID, error) {
	return (*Store)(t).EdgesByIndex(ctx, index, value)
}
func (t *txView) OutgoingEdges(ctx context.Context, n coordinate.NID, types ...relationship.Type) ([]relationship.Relationship, error) {
	return (*Store)(t).OutgoingEdges(ctx, n, types...)
}
func (t *txView) IncomingEdges(ctx context.Context, n coordinate.NID, types ...relationship.Type) ([]relationship.Relationship, error) {
	return (*Store)(t).IncomingEdges(ctx, n, types...)
}
func (t *txView) GetNode(ctx context.Context, n coordinate.NID) (coordinate.Coordinate, error) {
	return (*Store)(t).GetNode(ctx, n)
}
func (t *txView) GetEdge(ctx context.Context, r relationship.RID) (relationship.Relationship, error) {
	return (*Store)(t).GetEdge(ctx, r)
}
func (t *txView) DeclaredOutgoing(ctx context.Context, n coordinate.NID) (bool, error) {
	return (*Store)(t).DeclaredOutgoing(ctx, n)
}
func (t *txView) DeleteRelationshipsDeclaredBy(ctx context.Context, n coordinate.NID) error {
	return (*Store)(t).DeleteRelationshipsDeclaredBy(ctx, n)
}
func (t *txView) SetNodeProperty(ctx context.Context, n coordinate.NID, key string, val any) error {
	return (*Store)(t).SetNodeProperty(ctx, n, key, val)
}
func (t *txView) GetNodeProperty(ctx context.Context, n coordinate.NID, key string) (any, bool, error) {
	return (*Store)(t).GetNodeProperty(ctx, n, key)
}
func (t *txView) RemoveNodeProperty(ctx context.Context, n coordinate.NID, key string) error {
	return (*Store)(t).RemoveNodeProperty(ctx, n, key)
}
func (t *txView) SetEdgeProperty(ctx context.Context, r relationship.RID, key string, val any) error {
	return (*Store)(t).SetEdgeProperty(ctx, r, key, val)
}
func (t *txView) GetEdgeProperty(ctx context.Context, r relationship.RID, key string) (any, bool, error) {
	return (*Store)(t).GetEdgeProperty(ctx, r, key)
}
func (t *txView) RemoveEdgeProperty(ctx context.Context, r relationship.RID, key string) error {
	return (*Store)(t).RemoveEdgeProperty(ctx, r, key)
}
func (t *txView) EnumerateIndex(ctx context.Context, index string) ([]string, error) {
	return (*Store)(t).EnumerateIndex(ctx, index)
}
func (t *txView) MarkCyclesInjected(ctx context.Context, r relationship.RID) error {
	return (*Store)(t).MarkCyclesInjected(ctx, r)
}
func (t *txView) DiscardSelectionEdges(ctx context.Context) error {
	return (*Store)(t).DiscardSelectionEdges(ctx)
}
func (t *txView) EnsureViewNode(ctx context.Context, shortID string) (bool, error) {
	return (*Store)(t).EnsureViewNode(ctx, shortID)
}
func (t *txView) DeregisterView(ctx context.Context, shortID string) error {
	return (*Store)(t).DeregisterView(ctx, shortID)
}
func (t *txView) ListViews(ctx context.Context) ([]string, error) {
	return (*Store)(t).ListViews(ctx)
}
func (t *txView) SetViewProperty(ctx context.Context, shortID, key string, val any) error {
	return (*Store)(t).SetViewProperty(ctx, shortID, key, val)
}
func (t *txView) GetViewProperty(ctx context.Context, shortID, key string) (any, bool, error) {
	return (*Store)(t).GetViewProperty(ctx, shortID, key)
}
func (t *txView) Query(ctx context.Context, ql string, args ...any) (store.QueryResult, error) {
	return (*Store)(t).Query(ctx, ql, args...)
}
func (t *txView) Close() error { return (*Store)(t).Close() }

// WithTx rejects nested transactions: txView intentionally does not
// embed *Store, so calling WithTx again from inside a transaction
// callback fails instead of silently re-entering the same lock.
func (t *txView) WithTx(_ context.Context, _ func(store.Tx) error) error {
	return fmt.Errorf("memstore: nested WithTx is not supported")
}

func (s *Store) Query(_ context.Context, _ string, _ ...any) (store.QueryResult, error) {
	return nil, fmt.Errorf("memstore: declarative queries are not supported, use store/pgstore for extended analytics")
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
