// Package api exposes the read-only status surface for the extractor:
// health, Prometheus metrics and a snapshot of the most recent run.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/civicdata/gemeinden-extractor/internal/metrics"
	"github.com/civicdata/gemeinden-extractor/internal/middleware"
	"github.com/civicdata/gemeinden-extractor/internal/pipeline"
)

// StatusSource provides the last-run snapshot shown on /status.
type StatusSource interface {
	LastRun() pipeline.Snapshot
}

// Server wires the HTTP handlers.
type Server struct {
	router chi.Router
	status StatusSource
	logger *zap.Logger
}

// NewServer constructs a Server serving the given registry and status
// source.
func NewServer(status StatusSource, m *metrics.Metrics, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{status: status, logger: logger}

	r := chi.NewRouter()
	if m != nil {
		r.Use(middleware.Metrics(m))
	}
	r.Get("/healthz", s.healthz)
	r.Get("/status", s.getStatus)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	if s.status == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no pipeline attached"})
		return
	}
	writeJSON(w, http.StatusOK, s.status.LastRun())
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
