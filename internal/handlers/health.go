package handlers

import (
	"context"
	"net/http"
	"slices"
	"time"

	domain "github.com/atelier-market/api/internal/domain"
)

// BuildInfo describes the running binary for /healthz.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// ReadinessChecker evaluates backing dependencies for /readyz.
type ReadinessChecker interface {
	Check(ctx context.Context) domain.ReadinessReport
}

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	build     BuildInfo
	readiness ReadinessChecker
	now       func() time.Time
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// NewHealthHandlers constructs health handlers. Without a readiness checker /readyz always
// reports ok.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.now()
	}
	return h
}

// WithHealthBuildInfo sets the version metadata reported by /healthz.
func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthClock overrides the clock, mainly for tests.
func WithHealthClock(now func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if now != nil {
			h.now = now
		}
	}
}

// WithHealthReadiness sets the dependency checker used by /readyz.
func WithHealthReadiness(checker ReadinessChecker) HealthOption {
	return func(h *HealthHandlers) {
		h.readiness = checker
	}
}

// Healthz reports process liveness. It never touches dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":      domain.ReadinessOK,
		"version":     h.build.Version,
		"commitSha":   h.build.CommitSHA,
		"environment": h.build.Environment,
		"uptime":      now.Sub(h.build.StartedAt).Round(time.Second).String(),
		"timestamp":   formatTime(now),
	})
}

type readinessPayload struct {
	Status  string                             `json:"status"`
	Checks  map[string]domain.DependencyStatus `json:"checks"`
	Details []string                           `json:"details,omitempty"`
	Checked string                             `json:"checkedAt"`
}

// Readyz reports dependency readiness: ok and degraded answer 200, down answers 503.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	report := domain.ReadinessReport{Status: domain.ReadinessOK, CheckedAt: h.now()}
	if h.readiness != nil {
		report = h.readiness.Check(r.Context())
	}

	payload := readinessPayload{
		Status:  report.Status,
		Checks:  report.Dependencies,
		Checked: formatTime(report.CheckedAt),
	}
	if payload.Checks == nil {
		payload.Checks = map[string]domain.DependencyStatus{}
	}
	for name, dep := range report.Dependencies {
		if dep.Error != "" {
			payload.Details = append(payload.Details, name+": "+dep.Error)
		}
	}
	slices.Sort(payload.Details)

	status := http.StatusOK
	if report.Status == domain.ReadinessDown {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, payload)
}
