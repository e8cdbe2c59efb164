package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brojonat/trc20watch/service/ingest"
	"github.com/brojonat/trc20watch/service/metrics"
)

// StatusProvider exposes the ingestion loop's latest snapshot.
// This allows for easy mocking in tests.
type StatusProvider interface {
	Status() ingest.Status
}

// Server represents the HTTP server for health, status and metrics.
type Server struct {
	addr     string
	status   StatusProvider
	gatherer prometheus.Gatherer
	metrics  *metrics.Metrics
	logger   *slog.Logger
	server   *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The gatherer is optional - if nil, the /metrics endpoint won't be available.
// The metrics is optional - if nil, HTTP request metrics won't be recorded.
func New(addr string, status StatusProvider, gatherer prometheus.Gatherer, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:     addr,
		status:   status,
		gatherer: gatherer,
		metrics:  m,
		logger:   logger.With("component", "server"),
	}
}

// Handler builds the routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /health", metrics.HTTPMetricsMiddleware(s.metrics, "/health")(handleHealth()))
	mux.Handle("GET /api/v1/status", metrics.HTTPMetricsMiddleware(s.metrics, "/api/v1/status")(handleStatus(s.status, s.logger)))

	// Prometheus metrics endpoint (if a registry is configured)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr, "metrics", s.gatherer != nil)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
