package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.etcd.io/etcd/raft/v3/raftpb"

	"searchdb/pkg/metrics"
	"searchdb/pkg/routing"
)

const (
	contentTypeJSON        = "application/json"
	defaultHTTPPort        = "8080"
	defaultShutdownTimeout = time.Second * 5
)

// iRouter dispatches document operations to the owning shard copy.
type iRouter interface {
	Put(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) error
}

// iRoutingState exposes the published routing tables for inspection.
type iRoutingState interface {
	Table(index string) (*routing.Table, bool)
	Tables() []*routing.Table
}

type iRaftNode interface {
	Handle(ctx context.Context, message raftpb.Message) error
	Run(ctx context.Context) error
	Stop() error
}

// Server is the node's HTTP surface: the routed document API, routing-table
// inspection, and the internal raft endpoint.
type Server struct {
	router     iRouter
	state      iRoutingState
	node       iRaftNode // optional; nil disables the raft endpoint
	registry   *metrics.Registry
	httpServer *http.Server
	URL        string
	addr       string
}

func NewServer(router iRouter, state iRoutingState, port string) *Server {
	if port == "" {
		port = defaultHTTPPort
	}
	return &Server{
		router: router,
		state:  state,
		URL:    "http://localhost:" + port,
		addr:   ":" + port,
	}
}

// SetRaftNode attaches the statelog node, enabling the internal raft
// endpoint. Must be called before Start.
func (s *Server) SetRaftNode(node iRaftNode) {
	s.node = node
}

// SetMetricsRegistry attaches a registry rendered at /metrics.
func (s *Server) SetMetricsRegistry(registry *metrics.Registry) {
	s.registry = registry
}

// Start starts the server
func (s *Server) Start() error {
	if s.node != nil {
		go func() {
			if err := s.node.Run(context.Background()); err != nil {
				slog.Error("statelog node error", "error", err)
			}
		}()
	}
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown HTTP server: %w", err)
		}
		if s.node != nil {
			_ = s.node.Stop()
		}
	}
	return nil
}

// createRouter builds chi router
func (s *Server) createRouter() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/routing", s.handleRoutingTables)
	r.Get("/routing/{index}", s.handleRoutingTable)
	r.Put("/api/doc", s.handlePut)
	r.Get("/api/doc", s.handleGet)
	r.Delete("/api/doc", s.handleDelete)

	if s.node != nil {
		r.Post("/api/internal/raft", s.handleRaft)
	}

	return r
}

func (s *Server) startHTTPServer() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.createRouter(),
		ReadHeaderTimeout: time.Second,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("HTTP server started", "addr", s.URL)
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("Error encoding response", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, NewOKResponse())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	body := "# searchdb metrics\n"
	if s.registry != nil {
		body += s.registry.Render()
	}
	if _, err := w.Write([]byte(body)); err != nil {
		slog.Warn("Failed to write metrics response", "error", err)
	}
}

func tableView(t *routing.Table) TableView {
	view := TableView{
		Index:           t.Index(),
		Shards:          t.NumGroups(),
		PrimariesActive: t.PrimariesActive(),
	}
	for _, g := range t.Groups() {
		gv := GroupView{Shard: g.ShardID().ID}
		for _, c := range g.Copies() {
			gv.Copies = append(gv.Copies, CopyView{
				Node:           string(c.Node),
				RelocatingNode: string(c.RelocatingNode),
				Primary:        c.Primary,
				State:          c.State.String(),
			})
		}
		view.Groups = append(view.Groups, gv)
	}
	return view
}

func (s *Server) handleRoutingTables(w http.ResponseWriter, r *http.Request) {
	tables := s.state.Tables()
	views := make([]TableView, 0, len(tables))
	for _, t := range tables {
		views = append(views, tableView(t))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleRoutingTable(w http.ResponseWriter, r *http.Request) {
	index := chi.URLParam(r, "index")
	t, ok := s.state.Table(index)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, NewErrorResponse("Unknown index"))
		return
	}
	s.writeJSON(w, http.StatusOK, tableView(t))
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Failed to parse form"))
		return
	}

	key := r.FormValue("key")
	value := r.FormValue("value")

	if key == "" || value == "" {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Missing key or value"))
		return
	}

	if err := s.router.Put(r.Context(), key, value); err != nil {
		s.writeJSON(w, http.StatusInternalServerError, NewErrorResponse(err.Error()))
		return
	}
	s.writeJSON(w, http.StatusOK, NewSuccessResponse())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Missing key"))
		return
	}

	value, found, err := s.router.Get(r.Context(), key)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, NewErrorResponse(err.Error()))
		return
	}
	if !found {
		s.writeJSON(w, http.StatusNotFound, NewErrorResponse("Key not found"))
		return
	}
	s.writeJSON(w, http.StatusOK, NewValueResponse(value))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Missing key"))
		return
	}

	if err := s.router.Delete(r.Context(), key); err != nil {
		s.writeJSON(w, http.StatusInternalServerError, NewErrorResponse(err.Error()))
		return
	}
	s.writeJSON(w, http.StatusOK, NewSuccessResponse())
}

func (s *Server) handleRaft(w http.ResponseWriter, r *http.Request) {
	if s.node == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, NewErrorResponse("Raft node not available"))
		return
	}

	dec := json.NewDecoder(r.Body)
	var msg raftpb.Message
	if err := dec.Decode(&msg); err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}
	if err := s.node.Handle(r.Context(), msg); err != nil {
		s.writeJSON(w, http.StatusInternalServerError, NewErrorResponse(err.Error()))
		return
	}

	s.writeJSON(w, http.StatusOK, NewSuccessResponse())
}
