// Package api serves the read-only status endpoints of a running batch: health,
// Prometheus metrics and the stored synchronization runs.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/videosync/internal/adapters/repository"
	"github.com/okian/videosync/pkg/metrics"
)

// RunStore is the part of the repository the status endpoints read.
type RunStore interface {
	Runs(ctx context.Context, job string) ([]repository.Run, error)
	Run(ctx context.Context, id string) (repository.Run, error)
	Anomalies(ctx context.Context, runID string) ([]repository.RunAnomaly, error)
}

// Server wires the status routes.
type Server struct {
	healthHandler *HealthHandler
	runsHandler   *RunsHandler
}

// NewServer creates a status server over store.
func NewServer(store RunStore) *Server {
	return &Server{
		healthHandler: NewHealthHandler(),
		runsHandler:   NewRunsHandler(store),
	}
}

// Register attaches all routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /runs", MetricsMiddleware(s.runsHandler.HandleList, "runs"))
	mux.HandleFunc("GET /runs/{id}", MetricsMiddleware(s.runsHandler.HandleGet, "run"))
}

// Handler returns a mux with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
