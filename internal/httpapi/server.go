// Package httpapi exposes the Director over HTTP: turn processing, the
// SSE tool-call stream, node execution, browser session lifecycle, and
// workflow snapshots for UI rendering.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dirworks/director/internal/director"
	"github.com/dirworks/director/internal/state"
)

// Server wires the HTTP handlers to the Director's subsystems. It
// carries no listener itself; callers mount Routes() on an http.Server.
type Server struct {
	Manager  *director.Manager
	Store    state.Store
	Events   *director.EventBus
	Sessions *Sessions
	Logger   *slog.Logger
}

// NewServer builds a Server, defaulting the logger.
func NewServer(manager *director.Manager, store state.Store, events *director.EventBus, sessions *Sessions, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{Manager: manager, Store: store, Events: events, Sessions: sessions, Logger: logger}
}

// Routes returns the handler tree for the full API surface.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /director/process", s.handleProcess)
	mux.HandleFunc("GET /director/tool-stream", s.handleToolStream)
	mux.HandleFunc("POST /nodes/execute", s.handleExecuteNodes)
	mux.HandleFunc("POST /execution/start", s.handleExecutionStart)
	mux.HandleFunc("POST /execution/stop", s.handleExecutionStop)
	mux.HandleFunc("GET /workflows/{id}", s.handleGetWorkflow)
	return mux
}

type apiError struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Error("write response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, apiError{Error: err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
