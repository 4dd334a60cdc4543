// Package transport is the thin HTTP query surface over the graph
// engine, served over cleartext HTTP/2 via golang.org/x/net/http2/h2c,
// grounded in the teacher's gateway/server.Server and cmd/api's mux +
// CORS middleware.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"depgraph/internal/coordinate"
	"depgraph/internal/graph"
	"depgraph/internal/notify"
	"depgraph/internal/relationship"
)

// Server is the HTTP query surface exposing graph.Engine's Query API
// and the notify package's invalidation stream.
type Server struct {
	httpServer *http.Server
	engine     *graph.Engine
	hub        *notify.Hub
}

// New builds a Server listening on addr. metricsEnabled controls
// whether /metrics is mounted, matching config.MetricsConfig.Enabled.
func New(addr string, engine *graph.Engine, hub *notify.Hub, metricsEnabled bool) *Server {
	s := &Server{engine: engine, hub: hub}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/views", s.handleRegisterView)
	mux.HandleFunc("/v1/relationships", s.handleAddRelationships)
	mux.HandleFunc("/v1/projects", s.handleAllProjects)
	mux.HandleFunc("/v1/edges", s.handleAllEdges)
	mux.HandleFunc("/v1/paths", s.handlePathsTo)
	mux.HandleFunc("/v1/missing", s.handleMissingProjects)
	mux.HandleFunc("/v1/variable", s.handleVariableProjects)
	mux.HandleFunc("/v1/cycle-participant", s.handleCycleParticipant)
	mux.HandleFunc("/v1/notify", hub.ServeWS)
	if metricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: withCORS(h2c.NewHandler(mux, &http2.Server{})),
	}
	return s
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type")
		if r.Method == http.MethodOptions {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe blocks serving HTTP until Shutdown is called.
func (s *Server) ListenAndServe() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) resolveView(w http.ResponseWriter, r *http.Request) (*graph.View, bool) {
	shortID := strings.TrimSpace(r.URL.Query().Get("view_id"))
	if shortID == "" {
		http.Error(w, "view_id is required", http.StatusBadRequest)
		return nil, false
	}
	v, ok := s.engine.View(shortID)
	if !ok {
		http.Error(w, "view not registered", http.StatusNotFound)
		return nil, false
	}
	return v, true
}

// coordinateDTO is the wire shape of coordinate.Coordinate accepted in
// request bodies.
type coordinateDTO struct {
	Group      string `json:"group"`
	Artifact   string `json:"artifact"`
	Version    string `json:"version"`
	Classifier string `json:"classifier,omitempty"`
	Extension  string `json:"extension,omitempty"`
}

func (d coordinateDTO) toCoordinate() (coordinate.Coordinate, error) {
	var opts []coordinate.Option
	if d.Classifier != "" {
		opts = append(opts, coordinate.WithClassifier(d.Classifier))
	}
	if d.Extension != "" {
		opts = append(opts, coordinate.WithExtension(d.Extension))
	}
	return coordinate.New(d.Group, d.Artifact, d.Version, opts...)
}

type registerViewRequest struct {
	Roots []coordinateDTO `json:"roots"`
}

// handleRegisterView constructs a View over the requested roots with
// the default AcceptAll filter and selector, wires s.hub in as a
// Mutator so the websocket stream fires on every re-materialization,
// and registers it against the engine.
func (s *Server) handleRegisterView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req registerViewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Roots) == 0 {
		http.Error(w, "roots must be non-empty", http.StatusBadRequest)
		return
	}

	roots := make([]coordinate.Coordinate, 0, len(req.Roots))
	for _, dto := range req.Roots {
		c, err := dto.toCoordinate()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		roots = append(roots, c)
	}

	v, err := graph.NewView(roots, nil, nil, graph.WithMutators(s.hub))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.engine.RegisterView(r.Context(), v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"viewId": v.ShortID})
}

type relationshipDTO struct {
	Type        string        `json:"type"`
	Scope       string        `json:"scope,omitempty"`
	Declaring   coordinateDTO `json:"declaring"`
	Target      coordinateDTO `json:"target"`
	Managed     bool          `json:"managed,omitempty"`
	Sources     []string      `json:"sources"`
	Index       int           `json:"index"`
	PomLocation string        `json:"pomLocation,omitempty"`
}

func parseRelationshipType(s string) (relationship.Type, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEPENDENCY":
		return relationship.Dependency, nil
	case "PLUGIN":
		return relationship.Plugin, nil
	case "PLUGIN_DEP":
		return relationship.PluginDep, nil
	case "PARENT":
		return relationship.Parent, nil
	case "BOM":
		return relationship.Bom, nil
	case "EXTENSION":
		return relationship.Extension, nil
	default:
		return 0, fmt.Errorf("unknown relationship type %q", s)
	}
}

// handleAddRelationships decodes a JSON array of relationshipDTO and
// hands the resulting edges to Engine.AddRelationships in one batch,
// so every registered view re-materializes against the whole batch
// rather than edge by edge.
func (s *Server) handleAddRelationships(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var dtos []relationshipDTO
	if err := json.NewDecoder(r.Body).Decode(&dtos); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	edges := make([]relationship.Relationship, 0, len(dtos))
	for _, dto := range dtos {
		typ, err := parseRelationshipType(dto.Type)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		declaring, err := dto.Declaring.toCoordinate()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		target, err := dto.Target.toCoordinate()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rel, err := relationship.New(declaring, target, typ, dto.Sources, dto.Index, dto.Managed)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if dto.Scope != "" {
			rel = rel.WithScope(dto.Scope)
		}
		if dto.PomLocation != "" {
			rel = rel.WithPomLocation(dto.PomLocation)
		}
		edges = append(edges, rel)
	}

	ids, err := s.engine.AddRelationships(r.Context(), edges...)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"relationshipIds": ids})
}

func (s *Server) handleAllProjects(w http.ResponseWriter, r *http.Request) {
	v, ok := s.resolveView(w, r)
	if !ok {
		return
	}
	projects, err := s.engine.AllProjects(r.Context(), v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, projects)
}

func (s *Server) handleAllEdges(w http.ResponseWriter, r *http.Request) {
	v, ok := s.resolveView(w, r)
	if !ok {
		return
	}
	edges, err := s.engine.AllEdges(r.Context(), v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, edges)
}

func (s *Server) handlePathsTo(w http.ResponseWriter, r *http.Request) {
	v, ok := s.resolveView(w, r)
	if !ok {
		return
	}
	c, ok := parseCoordinate(w, r)
	if !ok {
		return
	}
	paths, err := s.engine.AllPathsTo(r.Context(), v, c)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, paths)
}

func (s *Server) handleMissingProjects(w http.ResponseWriter, r *http.Request) {
	v, ok := s.resolveView(w, r)
	if !ok {
		return
	}
	projects, err := s.engine.MissingProjects(r.Context(), v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, projects)
}

func (s *Server) handleVariableProjects(w http.ResponseWriter, r *http.Request) {
	v, ok := s.resolveView(w, r)
	if !ok {
		return
	}
	projects, err := s.engine.VariableProjects(r.Context(), v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, projects)
}

func (s *Server) handleCycleParticipant(w http.ResponseWriter, r *http.Request) {
	v, ok := s.resolveView(w, r)
	if !ok {
		return
	}
	c, ok := parseCoordinate(w, r)
	if !ok {
		return
	}
	participant, err := s.engine.IsCycleParticipant(r.Context(), v, c)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]bool{"cycleParticipant": participant})
}

func parseCoordinate(w http.ResponseWriter, r *http.Request) (coordinate.Coordinate, bool) {
	q := r.URL.Query()
	group := strings.TrimSpace(q.Get("group"))
	artifact := strings.TrimSpace(q.Get("artifact"))
	version := strings.TrimSpace(q.Get("version"))
	if group == "" || artifact == "" || version == "" {
		http.Error(w, "group, artifact and version are required", http.StatusBadRequest)
		return coordinate.Coordinate{}, false
	}
	var opts []coordinate.Option
	if classifier := strings.TrimSpace(q.Get("classifier")); classifier != "" {
		opts = append(opts, coordinate.WithClassifier(classifier))
	}
	if extension := strings.TrimSpace(q.Get("extension")); extension != "" {
		opts = append(opts, coordinate.WithExtension(extension))
	}
	c, err := coordinate.New(group, artifact, version, opts...)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return coordinate.Coordinate{}, false
	}
	return c, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
