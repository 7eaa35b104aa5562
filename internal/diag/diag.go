// Package diag implements the localhost diagnostics HTTP server.
//
// It exposes Prometheus metrics and health endpoints only. Nothing under
// this server returns vault contents, item titles, or identifiers; the
// broker surface stays on MCP stdio.
package diag

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jkaninda/okapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/mlinzi/internal/observability"
)

// Config configures the diagnostics server.
type Config struct {
	Addr        string // Listen address. Default: "127.0.0.1:9464".
	MetricsPath string // Path for the metrics endpoint. Default: "/metrics".

	MetricsRegistry *prometheus.Registry            // Custom Prometheus registry for the metrics endpoint.
	HealthChecker   *observability.HealthChecker    // Health checker for the readiness endpoint.
	Metrics         *observability.MetricsCollector // Metrics collector for HTTP middleware.
	Tracer          trace.Tracer                    // OTel tracer for HTTP middleware.
}

// Server is the diagnostics HTTP server.
type Server struct {
	config Config
	logger *slog.Logger
	server *http.Server
	okapi  *okapi.Okapi
}

// HealthResponse is the JSON response for the health endpoints.
type HealthResponse struct {
	Status string `json:"status"`
}

// NewServer creates a diagnostics server.
func NewServer(cfg Config, logger *slog.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:9464"
	}
	return &Server{
		config: cfg,
		logger: logger,
		okapi:  okapi.New(),
	}
}

// Start launches the HTTP server and blocks until it exits or ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	if s.config.Metrics != nil || s.config.Tracer != nil {
		s.okapi.UseMiddleware(func(next http.Handler) http.Handler {
			return observability.HTTPMetricsMiddleware(s.config.Metrics, s.config.Tracer, next)
		})
	}

	s.okapi.Get("/healthz", s.handleLiveness)
	s.okapi.Get("/readyz", s.handleReadiness)

	if s.config.MetricsRegistry != nil {
		path := s.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		s.okapi.HandleStd("GET", path, promhttp.HandlerFor(s.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}

	s.server = &http.Server{
		Addr:              s.config.Addr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	s.logger.Info("diagnostics server starting", slog.String("addr", s.config.Addr))

	return s.okapi.StartServer(s.server)
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("diagnostics server stopping")
	return s.okapi.Shutdown(s.server)
}

// handleLiveness answers the liveness probe.
func (s *Server) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleReadiness checks all registered dependencies and returns 200 or 503.
func (s *Server) handleReadiness(c *okapi.Context) error {
	if s.config.HealthChecker == nil {
		return c.OK(&HealthResponse{Status: "ok"})
	}

	status := s.config.HealthChecker.CheckReady(c.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}
