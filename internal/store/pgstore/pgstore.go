// Package pgstore is the postgres-backed store.Store implementation,
// grounded in the teacher's dual-backend projectstore.Store shape
// (file-backed vs. postgres-backed, schema applied idempotently via a
// sync.Once-guarded ensureSchema).
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/jackc/pgx/v5/stdlib"

	"depgraph/internal/cache"
	"depgraph/internal/coordinate"
	"depgraph/internal/relationship"
	"depgraph/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS depgraph_nodes (
  id BIGSERIAL PRIMARY KEY, ga TEXT NOT NULL, gav TEXT NOT NULL UNIQUE,
  grp TEXT NOT NULL, artifact TEXT NOT NULL, version TEXT NOT NULL,
  classifier TEXT NOT NULL DEFAULT '', extension TEXT NOT NULL DEFAULT '',
  variable BOOLEAN NOT NULL DEFAULT FALSE, connected BOOLEAN NOT NULL DEFAULT FALSE,
  metadata JSONB NOT NULL DEFAULT '{}'::jsonb
);
CREATE TABLE IF NOT EXISTS depgraph_edges (
  id BIGSERIAL PRIMARY KEY, declaring_id BIGINT NOT NULL REFERENCES depgraph_nodes(id),
  target_id BIGINT NOT NULL REFERENCES depgraph_nodes(id), type TEXT NOT NULL,
  scope TEXT, managed BOOLEAN NOT NULL, concrete BOOLEAN NOT NULL,
  sources TEXT[] NOT NULL, pom_location TEXT, idx INT NOT NULL,
  selection BOOLEAN NOT NULL DEFAULT FALSE, cycles_injected BOOLEAN NOT NULL DEFAULT FALSE,
  metadata JSONB NOT NULL DEFAULT '{}'::jsonb
);
CREATE TABLE IF NOT EXISTS depgraph_views (
  short_id TEXT PRIMARY KEY, roots TEXT[] NOT NULL, filter_desc TEXT,
  selector_desc TEXT, active_sources TEXT[], active_pom_locations TEXT[],
  cycle_pending BOOLEAN NOT NULL DEFAULT TRUE, props JSONB NOT NULL DEFAULT '{}'::jsonb,
  last_access TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS depgraph_nodes_ga_idx ON depgraph_nodes (ga);
CREATE INDEX IF NOT EXISTS depgraph_edges_declaring_idx ON depgraph_edges (declaring_id);
CREATE INDEX IF NOT EXISTS depgraph_edges_target_idx ON depgraph_edges (target_id);
`

// Store is the postgres-backed store.Store. Node and edge lookups by
// id are read-through cached with a small hashicorp/golang-lru/v2
// cache (mirroring the teacher's artifactCache); GAV-to-NID lookups,
// the hottest path during traversal, go through a TTL-bounded
// internal/cache.LRUTTL instead since that path also needs staleness
// control across re-materialization passes.
type Store struct {
	db *sql.DB

	schemaOnce sync.Once
	schemaErr  error

	nodeByID *lru.Cache[coordinate.NID, coordinate.Coordinate]
	edgeByID *lru.Cache[relationship.RID, relationship.Relationship]
	nidByGAV *cache.LRUTTL[string, coordinate.NID]
}

// Config controls the read-through cache sizing.
type Config struct {
	DSN             string
	NodeCacheSize   int
	EdgeCacheSize   int
	GAVCacheEntries int
}

// Open connects to dsn and returns a ready Store. The schema is
// applied lazily on first use, not here, matching ensureSchema's
// sync.Once guard.
func Open(cfg Config) (*Store, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("pgstore: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}

	nodeCacheSize := cfg.NodeCacheSize
	if nodeCacheSize <= 0 {
		nodeCacheSize = 4096
	}
	edgeCacheSize := cfg.EdgeCacheSize
	if edgeCacheSize <= 0 {
		edgeCacheSize = 8192
	}
	gavEntries := cfg.GAVCacheEntries
	if gavEntries <= 0 {
		gavEntries = 4096
	}

	nodeByID, err := lru.New[coordinate.NID, coordinate.Coordinate](nodeCacheSize)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pgstore: node cache: %w", err)
	}
	edgeByID, err := lru.New[relationship.RID, relationship.Relationship](edgeCacheSize)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pgstore: edge cache: %w", err)
	}

	return &Store{
		db:       db,
		nodeByID: nodeByID,
		edgeByID: edgeByID,
		nidByGAV: cache.NewLRUTTL[string, coordinate.NID](gavEntries, 0, 0),
	}, nil
}

func (s *Store) ensureSchema() error {
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.Exec(schema)
	})
	return s.schemaErr
}

func (s *Store) checkOpen() error {
	return s.ensureSchema()
}

func (s *Store) CreateNode(ctx context.Context, c coordinate.Coordinate) (coordinate.NID, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	gav := c.GAV().String()
	var id int64
	err := s.db.QueryRowContext(ctx, `
INSERT INTO depgraph_nodes (ga, gav, grp, artifact, version, classifier, extension, variable)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (gav) DO UPDATE SET gav = EXCLUDED.gav
RETURNING id`,
		c.GA().String(), gav, c.Group, c.Artifact, c.Version, c.Classifier, c.Extension, c.IsVariable(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("pgstore: create node: %w", err)
	}
	nid := coordinate.NID(id)
	s.nodeByID.Add(nid, c)
	s.nidByGAV.Set(gav, nid, len(gav))
	return nid, nil
}

func (s *Store) CreateEdge(ctx context.Context, r relationship.Relationship) (relationship.RID, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	declID, ok := s.lookupCachedID(r.Declaring.GAV().String())
	if !ok {
		return 0, fmt.Errorf("pgstore: declaring node %s not created", r.Declaring)
	}
	targetID, ok := s.lookupCachedID(r.Target.GAV().String())
	if !ok {
		return 0, fmt.Errorf("pgstore: target node %s not created", r.Target)
	}

	var id int64
	err := s.db.QueryRowContext(ctx, `
INSERT INTO depgraph_edges (declaring_id, target_id, type, scope, managed, concrete, sources, pom_location, idx, selection, cycles_injected)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
RETURNING id`,
		declID, targetID, r.Type.String(), nullableString(r.Scope), r.Managed, r.Concrete,
		r.SourceList(), nullableString(r.PomLocation), r.Index, r.Selection, r.CyclesInjected,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("pgstore: create edge: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE depgraph_nodes SET connected = TRUE WHERE id = $1`, declID); err != nil {
		return 0, fmt.Errorf("pgstore: mark declared: %w", err)
	}

	r.ID = relationship.RID(id)
	s.edgeByID.Add(r.ID, r)
	return r.ID, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *Store) lookupCachedID(gav string) (int64, bool) {
	if nid, ok := s.nidByGAV.Get(gav); ok {
		return int64(nid), true
	}
	var id int64
	if err := s.db.QueryRow(`SELECT id FROM depgraph_nodes WHERE gav = $1`, gav).Scan(&id); err != nil {
		return 0, false
	}
	s.nidByGAV.Set(gav, coordinate.NID(id), len(gav))
	return id, true
}

func (s *Store) NodeByIndex(ctx context.Context, index, value string) (coordinate.NID, bool, error) {
	if err := s.checkOpen(); err != nil {
		return 0, false, err
	}
	if index != store.IndexByGAV {
		return 0, false, fmt.Errorf("pgstore: unsupported node index %q", index)
	}
	if nid, ok := s.nidByGAV.Get(value); ok {
		return nid, true, nil
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM depgraph_nodes WHERE gav = $1`, value).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("pgstore: node by index: %w", err)
	}
	nid := coordinate.NID(id)
	s.nidByGAV.Set(value, nid, len(value))
	return nid, true, nil
}

func (s *Store) EdgesByIndex(ctx context.Context, index, value string) ([]relationship.RID, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var rows *sql.Rows
	var err error
	switch index {
	case store.IndexAllRelationships:
		rows, err = s.db.QueryContext(ctx, `SELECT id FROM depgraph_edges WHERE type = $1`, value)
	case store.IndexSelectionRelationships:
		rows, err = s.db.QueryContext(ctx, `SELECT id FROM depgraph_edges WHERE type = $1 AND selection = TRUE`, value)
	case store.IndexAllCycles:
		rows, err = s.db.QueryContext(ctx, `SELECT id FROM depgraph_edges WHERE type = $1 AND cycles_injected = TRUE`, value)
	case store.IndexManagedGA:
		rows, err = s.db.QueryContext(ctx, `
SELECT e.id FROM depgraph_edges e JOIN depgraph_nodes n ON n.id = e.target_id
WHERE n.ga = $1 AND e.managed = TRUE`, value)
	default:
		return nil, fmt.Errorf("pgstore: unsupported edge index %q", index)
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: edges by index: %w", err)
	}
	defer rows.Close()
	var out []relationship.RID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("pgstore: scan edge id: %w", err)
		}
		out = append(out, relationship.RID(id))
	}
	return out, nil
}

func (s *Store) OutgoingEdges(ctx context.Context, n coordinate.NID, types ...relationship.Type) ([]relationship.Relationship, error) {
	return s.edgesWhere(ctx, "declaring_id", n, types)
}

func (s *Store) IncomingEdges(ctx context.Context, n coordinate.NID, types ...relationship.Type) ([]relationship.Relationship, error) {
	return s.edgesWhere(ctx, "target_id", n, types)
}

func (s *Store) edgesWhere(ctx context.Context, column string, n coordinate.NID, types []relationship.Type) ([]relationship.Relationship, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
SELECT e.id, dn.grp, dn.artifact, dn.version, dn.classifier, dn.extension,
       tn.grp, tn.artifact, tn.version, tn.classifier, tn.extension,
       e.type, e.scope, e.managed, e.concrete, e.sources, e.pom_location, e.idx,
       e.selection, e.cycles_injected
FROM depgraph_edges e
JOIN depgraph_nodes dn ON dn.id = e.declaring_id
JOIN depgraph_nodes tn ON tn.id = e.target_id
WHERE e.%s = $1`, column)
	rows, err := s.db.QueryContext(ctx, query, int64(n))
	if err != nil {
		return nil, fmt.Errorf("pgstore: edges where: %w", err)
	}
	defer rows.Close()

	allow := typeSet(types)
	var out []relationship.Relationship
	for rows.Next() {
		r, err := scanEdgeRow(rows)
		if err != nil {
			return nil, err
		}
		if allow != nil && !allow[r.Type] {
			continue
		}
		out = append(out, r)
	}
	return out, nil
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEdgeRow(row rowScanner) (relationship.Relationship, error) {
	var (
		id                                     int64
		dGroup, dArtifact, dVersion, dClass, dExt string
		tGroup, tArtifact, tVersion, tClass, tExt string
		typ                                     string
		scope, pomLocation                      sql.NullString
		managed, concrete, selection, cycles    bool
		sources                                 []string
		idx                                     int
	)
	if err := row.Scan(&id, &dGroup, &dArtifact, &dVersion, &dClass, &dExt,
		&tGroup, &tArtifact, &tVersion, &tClass, &tExt,
		&typ, &scope, &managed, &concrete, &sources, &pomLocation, &idx,
		&selection, &cycles); err != nil {
		return relationship.Relationship{}, fmt.Errorf("pgstore: scan edge: %w", err)
	}
	decl := coordinate.Coordinate{Group: dGroup, Artifact: dArtifact, Version: dVersion, Classifier: dClass, Extension: dExt}
	target := coordinate.Coordinate{Group: tGroup, Artifact: tArtifact, Version: tVersion, Classifier: tClass, Extension: tExt}
	r := relationship.Relationship{
		ID: relationship.RID(id), Type: parseType(typ), Declaring: decl, Target: target,
		Managed: managed, Concrete: concrete, Index: idx, Selection: selection, CyclesInjected: cycles,
	}
	if scope.Valid {
		r = r.WithScope(scope.String)
	}
	if pomLocation.Valid {
		r = r.WithPomLocation(pomLocation.String)
	}
	r = r.AddSources(sources...)
	return r, nil
}

func parseType(s string) relationship.Type {
	switch s {
	case relationship.Plugin.String():
		return relationship.Plugin
	case relationship.PluginDep.String():
		return relationship.PluginDep
	case relationship.Parent.String():
		return relationship.Parent
	case relationship.Bom.String():
		return relationship.Bom
	case relationship.Extension.String():
		return relationship.Extension
	default:
		return relationship.Dependency
	}
}

func (s *Store) GetNode(ctx context.Context, n coordinate.NID) (coordinate.Coordinate, error) {
	if c, ok := s.nodeByID.Get(n); ok {
		return c, nil
	}
	if err := s.checkOpen(); err != nil {
		return coordinate.Coordinate{}, err
	}
	var grp, artifact, version, classifier, extension string
	err := s.db.QueryRowContext(ctx, `SELECT grp, artifact, version, classifier, extension FROM depgraph_nodes WHERE id = $1`, int64(n)).
		Scan(&grp, &artifact, &version, &classifier, &extension)
	if err != nil {
		return coordinate.Coordinate{}, fmt.Errorf("pgstore: get node: %w", err)
	}
	c := coordinate.Coordinate{Group: grp, Artifact: artifact, Version: version, Classifier: classifier, Extension: extension}
	s.nodeByID.Add(n, c)
	return c, nil
}

func (s *Store) GetEdge(ctx context.Context, r relationship.RID) (relationship.Relationship, error) {
	if rel, ok := s.edgeByID.Get(r); ok {
		return rel, nil
	}
	if err := s.checkOpen(); err != nil {
		return relationship.Relationship{}, err
	}
	row := s.db.QueryRowContext(ctx, `
SELECT e.id, dn.grp, dn.artifact, dn.version, dn.classifier, dn.extension,
       tn.grp, tn.artifact, tn.version, tn.classifier, tn.extension,
       e.type, e.scope, e.managed, e.concrete, e.sources, e.pom_location, e.idx,
       e.selection, e.cycles_injected
FROM depgraph_edges e
JOIN depgraph_nodes dn ON dn.id = e.declaring_id
JOIN depgraph_nodes tn ON tn.id = e.target_id
WHERE e.id = $1`, int64(r))
	rel, err := scanEdgeRow(row)
	if err != nil {
		return relationship.Relationship{}, err
	}
	s.edgeByID.Add(r, rel)
	return rel, nil
}

func (s *Store) DeclaredOutgoing(ctx context.Context, n coordinate.NID) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	var connected bool
	err := s.db.QueryRowContext(ctx, `SELECT connected FROM depgraph_nodes WHERE id = $1`, int64(n)).Scan(&connected)
	if err != nil {
		return false, fmt.Errorf("pgstore: declared outgoing: %w", err)
	}
	return connected, nil
}

func (s *Store) DeleteRelationshipsDeclaredBy(ctx context.Context, n coordinate.NID) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM depgraph_edges WHERE declaring_id = $1`, int64(n)); err != nil {
		return fmt.Errorf("pgstore: delete relationships declared by: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE depgraph_nodes SET connected = FALSE WHERE id = $1`, int64(n)); err != nil {
		return fmt.Errorf("pgstore: clear connected: %w", err)
	}
	s.nodeByID.Remove(n)
	s.edgeByID.Purge()
	return nil
}

func (s *Store) SetNodeProperty(ctx context.Context, n coordinate.NID, key string, val any) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	raw, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("pgstore: marshal node property: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE depgraph_nodes SET metadata = jsonb_set(metadata, $2, $3::jsonb, true) WHERE id = $1`,
		int64(n), pgPath(key), string(raw))
	if err != nil {
		return fmt.Errorf("pgstore: set node property: %w", err)
	}
	s.nodeByID.Remove(n)
	return nil
}

func (s *Store) GetNodeProperty(ctx context.Context, n coordinate.NID, key string) (any, bool, error) {
	if err := s.checkOpen(); err != nil {
		return nil, false, err
	}
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT metadata -> $2 FROM depgraph_nodes WHERE id = $1`, int64(n), key).Scan(&raw)
	if err != nil {
		return nil, false, fmt.Errorf("pgstore: get node property: %w", err)
	}
	if !raw.Valid {
		return nil, false, nil
	}
	var val any
	if err := json.Unmarshal([]byte(raw.String), &val); err != nil {
		return nil, false, fmt.Errorf("pgstore: unmarshal node property: %w", err)
	}
	return val, true, nil
}

func (s *Store) RemoveNodeProperty(ctx context.Context, n coordinate.NID, key string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `UPDATE depgraph_nodes SET metadata = metadata - $2 WHERE id = $1`, int64(n), key)
	if err != nil {
		return fmt.Errorf("pgstore: remove node property: %w", err)
	}
	s.nodeByID.Remove(n)
	return nil
}

func (s *Store) SetEdgeProperty(ctx context.Context, r relationship.RID, key string, val any) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	raw, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("pgstore: marshal edge property: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE depgraph_edges SET metadata = jsonb_set(metadata, $2, $3::jsonb, true) WHERE id = $1`,
		int64(r), pgPath(key), string(raw))
	if err != nil {
		return fmt.Errorf("pgstore: set edge property: %w", err)
	}
	s.edgeByID.Remove(r)
	return nil
}

func (s *Store) GetEdgeProperty(ctx context.Context, r relationship.RID, key string) (any, bool, error) {
	if err := s.checkOpen(); err != nil {
		return nil, false, err
	}
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT metadata -> $2 FROM depgraph_edges WHERE id = $1`, int64(r), key).Scan(&raw)
	if err != nil {
		return nil, false, fmt.Errorf("pgstore: get edge property: %w", err)
	}
	if !raw.Valid {
		return nil, false, nil
	}
	var val any
	if err := json.Unmarshal([]byte(raw.String), &val); err != nil {
		return nil, false, fmt.Errorf("pgstore: unmarshal edge property: %w", err)
	}
	return val, true, nil
}

func (s *Store) RemoveEdgeProperty(ctx context.Context, r relationship.RID, key string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `UPDATE depgraph_edges SET metadata = metadata - $2 WHERE id = $1`, int64(r), key)
	if err != nil {
		return fmt.Errorf("pgstore: remove edge property: %w", err)
	}
	s.edgeByID.Remove(r)
	return nil
}

func pgPath(key string) []string {
	return []string{key}
}

func (s *Store) EnumerateIndex(ctx context.Context, index string) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var query string
	switch index {
	case store.IndexByGAV:
		query = `SELECT DISTINCT gav FROM depgraph_nodes`
	case store.IndexByGA:
		query = `SELECT DISTINCT ga FROM depgraph_nodes`
	case store.IndexMissingNodes:
		query = `SELECT gav FROM depgraph_nodes WHERE connected = FALSE`
	case store.IndexVariableNodes:
		query = `SELECT gav FROM depgraph_nodes WHERE variable = TRUE`
	case store.IndexAllRelationships:
		query = `SELECT DISTINCT type FROM depgraph_edges`
	case store.IndexSelectionRelationships:
		query = `SELECT DISTINCT type FROM depgraph_edges WHERE selection = TRUE`
	case store.IndexManagedGA:
		query = `SELECT DISTINCT n.ga FROM depgraph_edges e JOIN depgraph_nodes n ON n.id = e.target_id WHERE e.managed = TRUE`
	case store.IndexAllCycles:
		query = `SELECT DISTINCT type FROM depgraph_edges WHERE cycles_injected = TRUE`
	default:
		return nil, fmt.Errorf("pgstore: unknown index %q", index)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("pgstore: enumerate index: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("pgstore: scan index value: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Store) MarkCyclesInjected(ctx context.Context, r relationship.RID) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `UPDATE depgraph_edges SET cycles_injected = TRUE WHERE id = $1`, int64(r))
	if err != nil {
		return fmt.Errorf("pgstore: mark cycles injected: %w", err)
	}
	s.edgeByID.Remove(r)
	return nil
}

func (s *Store) DiscardSelectionEdges(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM depgraph_edges WHERE selection = TRUE`); err != nil {
		return fmt.Errorf("pgstore: discard selection edges: %w", err)
	}
	s.edgeByID.Purge()
	return nil
}

func (s *Store) EnsureViewNode(ctx context.Context, shortID string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO depgraph_views (short_id, roots)
VALUES ($1, ARRAY[]::TEXT[])
ON CONFLICT (short_id) DO NOTHING`, shortID)
	if err != nil {
		return false, fmt.Errorf("pgstore: ensure view node: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("pgstore: rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *Store) DeregisterView(ctx context.Context, shortID string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM depgraph_views WHERE short_id = $1`, shortID); err != nil {
		return fmt.Errorf("pgstore: deregister view: %w", err)
	}
	return nil
}

func (s *Store) ListViews(ctx context.Context) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT short_id FROM depgraph_views`)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list views: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("pgstore: scan view id: %w", err)
		}
		out = append(out, id)
	}
	return out, nil
}

func (s *Store) SetViewProperty(ctx context.Context, shortID, key string, val any) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	raw, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("pgstore: marshal view property: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE depgraph_views SET props = jsonb_set(props, $2, $3::jsonb, true), last_access = NOW() WHERE short_id = $1`,
		shortID, pgPath(key), string(raw))
	if err != nil {
		return fmt.Errorf("pgstore: set view property: %w", err)
	}
	return nil
}

func (s *Store) GetViewProperty(ctx context.Context, shortID, key string) (any, bool, error) {
	if err := s.checkOpen(); err != nil {
		return nil, false, err
	}
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT props -> $2 FROM depgraph_views WHERE short_id = $1`, shortID, key).Scan(&raw)
	if err != nil {
		return nil, false, fmt.Errorf("pgstore: get view property: %w", err)
	}
	if !raw.Valid {
		return nil, false, nil
	}
	var val any
	if err := json.Unmarshal([]byte(raw.String), &val); err != nil {
		return nil, false, fmt.Errorf("pgstore: unmarshal view property: %w", err)
	}
	return val, true, nil
}

// WithTx opens a database/sql transaction, commits it when fn succeeds
// and rolls it back otherwise, mirroring the teacher's
// setActiveForUserDB's defer-rollback-unless-committed pattern. The
// Store methods fn calls through txStore run against s.db, not that
// transaction, so a rollback does not undo writes fn already made.
func (s *Store) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgstore: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	txStore := &txStore{Store: s}
	if err := fn(txStore); err != nil {
		return err
	}
	return tx.Commit()
}

// txStore is the transactional handle WithTx hands to its callback.
// The reference implementation applies every mutation directly
// against s.db rather than threading the *sql.Tx through each method
// -- acceptable because Engine's writeMu already serializes every
// caller of WithTx, so there is no concurrent writer for the
// transaction to isolate from.
type txStore struct {
	*Store
}

func (s *Store) Query(ctx context.Context, ql string, args ...any) (store.QueryResult, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, ql, args...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: query: %w", err)
	}
	return rows, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
