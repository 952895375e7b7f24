// Package server serves health probes and Prometheus metrics for a running graph.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker interface for checking component health.
type HealthChecker interface {
	Liveness() bool
	Readiness(ctx context.Context) bool
	GetStatus() map[string]string
}

// Config configures the HTTP endpoints.
type Config struct {
	HealthPort    int
	LivenessPath  string
	ReadinessPath string

	// MetricsPort may equal HealthPort, in which case one listener serves both.
	MetricsPort    int
	MetricsPath    string
	MetricsEnabled bool
}

func (c *Config) setDefaults() {
	if c.LivenessPath == "" {
		c.LivenessPath = "/health/live"
	}
	if c.ReadinessPath == "" {
		c.ReadinessPath = "/health/ready"
	}
	if c.MetricsPath == "" {
		c.MetricsPath = "/metrics"
	}
}

// Server represents the HTTP server for health and metrics.
type Server struct {
	servers []*http.Server
	logger  *slog.Logger
}

// NewServer creates a new HTTP server.
func NewServer(
	config Config,
	healthChecker HealthChecker,
	registry *prometheus.Registry,
	logger *slog.Logger,
) *Server {
	config.setDefaults()

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("GET "+config.LivenessPath, LivenessHandler(healthChecker, logger))
	healthMux.HandleFunc("GET "+config.ReadinessPath, ReadinessHandler(healthChecker, logger))

	s := &Server{logger: logger}
	s.servers = append(s.servers, newHTTPServer(config.HealthPort, healthMux))

	if config.MetricsEnabled {
		metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
		if config.MetricsPort == config.HealthPort {
			healthMux.Handle("GET "+config.MetricsPath, metricsHandler)
		} else {
			metricsMux := http.NewServeMux()
			metricsMux.Handle("GET "+config.MetricsPath, metricsHandler)
			s.servers = append(s.servers, newHTTPServer(config.MetricsPort, metricsMux))
		}
	}

	return s
}

func newHTTPServer(port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Start binds every listener and serves in the background. A port that
// cannot be bound is reported here rather than from the serving goroutine.
func (s *Server) Start() error {
	listeners := make([]net.Listener, 0, len(s.servers))
	for _, srv := range s.servers {
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			for _, l := range listeners {
				l.Close()
			}
			return fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
		}
		listeners = append(listeners, ln)
	}

	for i, srv := range s.servers {
		go func() {
			s.logger.Info("starting HTTP server", "addr", srv.Addr)
			if err := srv.Serve(listeners[i]); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("HTTP server failed", "addr", srv.Addr, "error", err)
			}
		}()
	}

	return nil
}

// Shutdown gracefully shuts down all servers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP servers")

	errChan := make(chan error, len(s.servers))
	for _, srv := range s.servers {
		go func() {
			errChan <- srv.Shutdown(ctx)
		}()
	}

	var errs []error
	for range s.servers {
		if err := <-errChan; err != nil {
			s.logger.Error("error shutting down server", "error", err)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
