package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// LivenessHandler returns a handler for Kubernetes liveness probes.
// Liveness probes should only fail if the process needs to be restarted.
func LivenessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "alive"
		statusCode := http.StatusOK

		if !checker.Liveness() {
			status = "not alive"
			statusCode = http.StatusServiceUnavailable
		}

		writeResponse(w, statusCode, HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}, logger)
	}
}

// ReadinessHandler returns a handler for Kubernetes readiness probes.
// Readiness probes indicate if the application can handle traffic.
func ReadinessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ready"
		statusCode := http.StatusOK

		if !checker.Readiness(r.Context()) {
			status = "not ready"
			statusCode = http.StatusServiceUnavailable
		}

		writeResponse(w, statusCode, HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    checker.GetStatus(),
		}, logger)
	}
}

func writeResponse(w http.ResponseWriter, statusCode int, response HealthResponse, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("failed to encode health response", "status", response.Status, "error", err)
	}
}

// PipelineState is the lifecycle state of a graph run.
type PipelineState string

const (
	StateStarting PipelineState = "starting"
	StateRunning  PipelineState = "running"
	StateStopping PipelineState = "stopping"
	StateFinished PipelineState = "finished"
	StateFailed   PipelineState = "failed"
)

// PipelineHealth implements HealthChecker for one graph run. It is ready
// only while the graph runs and stays alive unless the run failed.
type PipelineHealth struct {
	mu     sync.RWMutex
	state  PipelineState
	err    error
	checks map[string]func() string
}

// NewPipelineHealth returns a checker in the starting state.
func NewPipelineHealth() *PipelineHealth {
	return &PipelineHealth{
		state:  StateStarting,
		checks: make(map[string]func() string),
	}
}

// SetState records a state transition. err is kept for StateFailed.
func (h *PipelineHealth) SetState(state PipelineState, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = state
	h.err = err
}

// State returns the current state.
func (h *PipelineHealth) State() PipelineState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// AddCheck registers a named status probe reported by GetStatus.
func (h *PipelineHealth) AddCheck(name string, check func() string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

func (h *PipelineHealth) Liveness() bool {
	return h.State() != StateFailed
}

func (h *PipelineHealth) Readiness(ctx context.Context) bool {
	return h.State() == StateRunning
}

func (h *PipelineHealth) GetStatus() map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := make(map[string]string, len(h.checks)+2)
	status["pipeline"] = string(h.state)
	if h.err != nil {
		status["error"] = h.err.Error()
	}
	for name, check := range h.checks {
		status[name] = check()
	}
	return status
}
