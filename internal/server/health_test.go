package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthEndpoint_AggregatesChecks(t *testing.T) {
	s := NewHealthServer("1.0.0", nil)
	s.RegisterCheck("graph", PingHealthChecker("neo4j", func(ctx context.Context) error {
		return nil
	}))
	s.RegisterCheck("vector", PingHealthChecker("qdrant", func(ctx context.Context) error {
		return errors.New("connection refused")
	}))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if resp.Status != HealthStatusUnhealthy {
		t.Errorf("overall status = %s, want unhealthy", resp.Status)
	}
	if len(resp.Checks) != 2 {
		t.Errorf("checks = %d, want 2", len(resp.Checks))
	}
	if resp.Version != "1.0.0" {
		t.Errorf("version = %q", resp.Version)
	}
}

func TestReadyProbe(t *testing.T) {
	s := NewHealthServer("", nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("not-ready status = %d, want 503", rec.Code)
	}

	s.SetReady(true)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("ready status = %d, want 200", rec.Code)
	}
}

func TestLiveProbe(t *testing.T) {
	s := NewHealthServer("", nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("live status = %d, want 200", rec.Code)
	}

	s.SetLive(false)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/livez", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("not-live status = %d, want 503", rec.Code)
	}
}

func TestMetricsMount(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("crucible_up 1\n"))
	})
	s := NewHealthServer("", metrics)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "crucible_up 1\n" {
		t.Errorf("metrics endpoint: code=%d body=%q", rec.Code, rec.Body.String())
	}

	bare := NewHealthServer("", nil)
	rec = httptest.NewRecorder()
	bare.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("metrics without handler: code=%d, want 404", rec.Code)
	}
}
