// Package adminhttp is a read-only operator surface over a running replica:
// /status, /log, and /state. It never touches the replicated state machine
// or the wire protocol (internal/wire, internal/udpconn) — it only reads
// the atomic Status/StateSnapshot a replica.Node already publishes every
// tick, so it can't introduce a second writer into the event loop's
// otherwise lock-free state (spec §5).
package adminhttp

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/arnavsood/raftkv/internal/replica"
)

// Server serves the admin routes backed by one replica.Node.
type Server struct {
	node *replica.Node
}

// New creates an admin server for node.
func New(node *replica.Node) *Server {
	return &Server{node: node}
}

// Handler returns the routed HTTP handler. Every response carries a
// request-scoped correlation id (a random UUID, not chi's built-in counter)
// in its X-Correlation-ID header, so concurrent requests can be told apart.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(correlationID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/status", s.handleStatus)
	r.Get("/log", s.handleLog)
	r.Get("/state", s.handleState)
	return r
}

func correlationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Correlation-ID", uuid.NewString())
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus reports the replica's current Status snapshot (spec §3
// "Node state"): role, term, commit/apply indices, log length.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.node.Status())
}

// handleLog reports how long the replicated log currently is. The log's
// contents aren't exposed entry-by-entry: spec §5 forbids any reader from
// touching replica.Node state directly, and the event loop only publishes
// the Status and applied-map snapshots, not the log itself.
func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	status := s.node.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"length":       status.LogLength,
		"commit_index": status.CommitIndex,
		"last_applied": status.LastApplied,
	})
}

// handleState reports the applied key-value map (spec §3 "State map").
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.node.StateSnapshot())
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
