package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func testRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_metric_total",
		Help: "Test metric",
	})
	registry.MustRegister(counter)
	counter.Inc()
	return registry
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestNewServer_Routes(t *testing.T) {
	checker := &mockHealthChecker{liveness: true, readiness: true}

	tests := []struct {
		name        string
		config      Config
		wantServers int
		idx         int // index of the server receiving the request
		method      string
		path        string
		wantCode    int
		wantBody    string
	}{
		{
			name:        "liveness on default path",
			config:      Config{HealthPort: 8080, MetricsPort: 9090, MetricsEnabled: true},
			wantServers: 2,
			method:      http.MethodGet,
			path:        "/health/live",
			wantCode:    http.StatusOK,
			wantBody:    `"status":"alive"`,
		},
		{
			name:        "custom readiness path",
			config:      Config{HealthPort: 8080, ReadinessPath: "/ready"},
			wantServers: 1,
			method:      http.MethodGet,
			path:        "/ready",
			wantCode:    http.StatusOK,
			wantBody:    `"status":"ready"`,
		},
		{
			name:        "metrics on its own port",
			config:      Config{HealthPort: 8080, MetricsPort: 9090, MetricsEnabled: true},
			wantServers: 2,
			idx:         1,
			method:      http.MethodGet,
			path:        "/metrics",
			wantCode:    http.StatusOK,
			wantBody:    "test_metric_total 1",
		},
		{
			name:        "metrics shares the health port",
			config:      Config{HealthPort: 8080, MetricsPort: 8080, MetricsEnabled: true, MetricsPath: "/prom"},
			wantServers: 1,
			method:      http.MethodGet,
			path:        "/prom",
			wantCode:    http.StatusOK,
			wantBody:    "test_metric_total 1",
		},
		{
			name:        "metrics disabled",
			config:      Config{HealthPort: 8080, MetricsPort: 8080},
			wantServers: 1,
			method:      http.MethodGet,
			path:        "/metrics",
			wantCode:    http.StatusNotFound,
		},
		{
			name:        "post rejected",
			config:      Config{HealthPort: 8080},
			wantServers: 1,
			method:      http.MethodPost,
			path:        "/health/live",
			wantCode:    http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(tt.config, checker, testRegistry(), discardLogger())
			if len(s.servers) != tt.wantServers {
				t.Fatalf("servers = %d, want %d", len(s.servers), tt.wantServers)
			}

			w := serve(s.servers[tt.idx].Handler, tt.method, tt.path)
			if w.Code != tt.wantCode {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.path, w.Code, tt.wantCode)
			}
			if tt.wantBody != "" && !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("body = %s, want it to contain %s", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestServer_StartAndShutdown(t *testing.T) {
	healthPort, metricsPort := freePort(t), freePort(t)
	s := NewServer(Config{HealthPort: healthPort, MetricsPort: metricsPort, MetricsEnabled: true},
		&mockHealthChecker{liveness: true}, testRegistry(), discardLogger())

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	resp, err := http.Get(fmt.Sprintf("http://localhost:%d/health/live", healthPort))
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Get(fmt.Sprintf("http://localhost:%d/metrics", metricsPort))
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}

	if _, err := http.Get(fmt.Sprintf("http://localhost:%d/health/live", healthPort)); err == nil {
		t.Error("expected error connecting to stopped health server")
	}
}

func TestServer_StartPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	busy := ln.Addr().(*net.TCPAddr).Port

	s := NewServer(Config{HealthPort: freePort(t), MetricsPort: busy, MetricsEnabled: true},
		&mockHealthChecker{}, testRegistry(), discardLogger())
	if err := s.Start(); err == nil {
		s.Shutdown(context.Background())
		t.Fatal("Start() expected error for a port in use")
	}
}
