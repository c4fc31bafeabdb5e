// Package server provides the worker's HTTP surface: health probes, the
// metrics endpoint, and graceful shutdown.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
)

// HealthCheck is the result of probing one dependency.
type HealthCheck struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// HealthResponse is the body of the health endpoints.
type HealthResponse struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Version   string        `json:"version,omitempty"`
	Checks    []HealthCheck `json:"checks,omitempty"`
}

// HealthChecker probes one dependency.
type HealthChecker func(ctx context.Context) HealthCheck

// HealthServer serves /health, /ready, /live (plus Kubernetes aliases) and
// optionally /metrics.
type HealthServer struct {
	mu           sync.RWMutex
	checks       map[string]HealthChecker
	version      string
	ready        bool
	live         bool
	metrics      http.Handler
	shutdownChan chan struct{}
}

// NewHealthServer creates a health server. The metrics handler may be nil.
func NewHealthServer(version string, metrics http.Handler) *HealthServer {
	return &HealthServer{
		checks:       make(map[string]HealthChecker),
		version:      version,
		live:         true,
		metrics:      metrics,
		shutdownChan: make(chan struct{}),
	}
}

// RegisterCheck adds a dependency probe under the given name.
func (s *HealthServer) RegisterCheck(name string, checker HealthChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = checker
}

// SetReady marks the server as ready to accept traffic.
func (s *HealthServer) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
}

// SetLive marks the server as live (or not).
func (s *HealthServer) SetLive(live bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = live
}

// Handler returns the full endpoint mux.
func (s *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/live", s.handleLive)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/livez", s.handleLive)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

// ListenAndServe starts the server and blocks until it stops.
func (s *HealthServer) ListenAndServe(addr string) error {
	if addr == "" {
		addr = ":8080"
	}
	server := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	go func() {
		<-s.shutdownChan
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()
	return server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *HealthServer) Shutdown() {
	close(s.shutdownChan)
}

func (s *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	s.mu.RLock()
	checks := make(map[string]HealthChecker, len(s.checks))
	for k, v := range s.checks {
		checks[k] = v
	}
	version := s.version
	s.mu.RUnlock()

	response := HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now().UTC(),
		Version:   version,
		Checks:    make([]HealthCheck, 0, len(checks)),
	}
	for name, checker := range checks {
		check := checker(ctx)
		check.Name = name
		response.Checks = append(response.Checks, check)

		if check.Status == HealthStatusUnhealthy {
			response.Status = HealthStatusUnhealthy
		} else if check.Status == HealthStatusDegraded && response.Status == HealthStatusHealthy {
			response.Status = HealthStatusDegraded
		}
	}

	status := http.StatusOK
	if response.Status == HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

func (s *HealthServer) handleReady(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	ready := s.ready
	s.mu.RUnlock()
	s.probeResponse(w, ready)
}

func (s *HealthServer) handleLive(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	live := s.live
	s.mu.RUnlock()
	s.probeResponse(w, live)
}

func (s *HealthServer) probeResponse(w http.ResponseWriter, ok bool) {
	response := HealthResponse{Status: HealthStatusHealthy, Timestamp: time.Now().UTC()}
	if !ok {
		response.Status = HealthStatusUnhealthy
		writeJSON(w, http.StatusServiceUnavailable, response)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// PingHealthChecker wraps a connectivity probe (Neo4j verify, Qdrant list
// collections, Temporal namespace check) as a HealthChecker.
func PingHealthChecker(label string, ping func(ctx context.Context) error) HealthChecker {
	return func(ctx context.Context) HealthCheck {
		if err := ping(ctx); err != nil {
			return HealthCheck{
				Status:  HealthStatusUnhealthy,
				Message: label + " unreachable: " + err.Error(),
			}
		}
		return HealthCheck{Status: HealthStatusHealthy, Message: label + " OK"}
	}
}
