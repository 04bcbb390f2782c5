package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/atelier-market/api/internal/domain"
)

type stubReadiness struct {
	report domain.ReadinessReport
}

func (s stubReadiness) Check(context.Context) domain.ReadinessReport {
	return s.report
}

func TestHealthHandlersHealthz(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(30 * time.Second)
	handlers := NewHealthHandlers(
		WithHealthBuildInfo(BuildInfo{
			Version:     "1.0.0",
			CommitSHA:   "abc123",
			Environment: "prod",
			StartedAt:   start,
		}),
		WithHealthClock(func() time.Time { return now }),
	)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()

	handlers.Healthz(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body["status"] != domain.ReadinessOK {
		t.Fatalf("expected status ok, got %v", body["status"])
	}
	if body["version"] != "1.0.0" {
		t.Fatalf("expected version 1.0.0, got %v", body["version"])
	}
	if body["commitSha"] != "abc123" {
		t.Fatalf("expected commit abc123, got %v", body["commitSha"])
	}
	if body["uptime"] != "30s" {
		t.Fatalf("expected uptime 30s, got %v", body["uptime"])
	}
}

func TestHealthHandlersReadyzDegradedIsServed(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC)
	handlers := NewHealthHandlers(
		WithHealthReadiness(stubReadiness{report: domain.ReadinessReport{
			Status: domain.ReadinessDegraded,
			Dependencies: map[string]domain.DependencyStatus{
				"firestore": {Status: domain.ReadinessOK},
				"redis":     {Status: domain.ReadinessDown, Error: "timeout"},
			},
			CheckedAt: now,
		}}),
		WithHealthClock(func() time.Time { return now }),
	)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()

	handlers.Readyz(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var body struct {
		Status string `json:"status"`
		Checks map[string]struct {
			Status string `json:"status"`
		} `json:"checks"`
		Details []string `json:"details"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Status != domain.ReadinessDegraded {
		t.Fatalf("expected status degraded, got %s", body.Status)
	}
	if body.Checks["firestore"].Status != domain.ReadinessOK {
		t.Fatalf("expected firestore ok, got %s", body.Checks["firestore"].Status)
	}
	if len(body.Details) != 1 || body.Details[0] != "redis: timeout" {
		t.Fatalf("expected redis detail, got %v", body.Details)
	}
}

func TestHealthHandlersReadyzDown(t *testing.T) {
	handlers := NewHealthHandlers(
		WithHealthReadiness(stubReadiness{report: domain.ReadinessReport{
			Status: domain.ReadinessDown,
			Dependencies: map[string]domain.DependencyStatus{
				"firestore": {Status: domain.ReadinessDown, Error: "unavailable"},
			},
		}}),
	)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()

	handlers.Readyz(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestHealthHandlersReadyzWithoutChecker(t *testing.T) {
	handlers := NewHealthHandlers()
	rr := httptest.NewRecorder()
	handlers.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}
