// Package api serves the ops endpoints of a running fetch: health, ledger
// status and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	service "github.com/okian/pitwall/internal/app"
	"github.com/okian/pitwall/pkg/metrics"
)

// StatusProvider reads the ledger view of a season.
type StatusProvider interface {
	Status(ctx context.Context) (service.Status, error)
}

// Server wires the ops routes.
type Server struct {
	healthHandler *HealthHandler
	statusHandler *StatusHandler
}

// NewServer creates a new ops server. status may be nil, in which case
// /status is not registered.
func NewServer(status StatusProvider) *Server {
	s := &Server{healthHandler: NewHealthHandler()}
	if status != nil {
		s.statusHandler = NewStatusHandler(status)
	}
	return s
}

// Register attaches all routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("/metrics", metrics.Handler())
	if s.statusHandler != nil {
		mux.HandleFunc("/status", MetricsMiddleware(s.statusHandler.HandleStatus, "status"))
	}
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
