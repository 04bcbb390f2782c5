package repositories

import (
	"context"
	"errors"
	"sync"
	"time"

	domain "github.com/atelier-market/api/internal/domain"
)

const defaultProbeTimeout = 1500 * time.Millisecond

// Probe checks one backing dependency. Optional probes degrade readiness instead of failing it.
type Probe struct {
	Name     string
	Optional bool
	Check    func(context.Context) error
}

// ReadinessChecker runs every probe concurrently, each bounded by its own timeout.
type ReadinessChecker struct {
	probes  []Probe
	timeout time.Duration
	now     func() time.Time
}

// NewReadinessChecker returns a checker over probes. A non-positive timeout uses 1.5s.
func NewReadinessChecker(probes []Probe, timeout time.Duration, now func() time.Time) *ReadinessChecker {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	if now == nil {
		now = time.Now
	}
	return &ReadinessChecker{probes: probes, timeout: timeout, now: now}
}

// Check evaluates all probes. The report is down when any required probe fails.
func (c *ReadinessChecker) Check(ctx context.Context) domain.ReadinessReport {
	report := domain.ReadinessReport{Status: domain.ReadinessOK, Dependencies: make(map[string]domain.DependencyStatus, len(c.probes))}
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, probe := range c.probes {
		if probe.Check == nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			start := c.now()
			err := probe.Check(probeCtx)
			status := domain.DependencyStatus{Status: domain.ReadinessOK, Latency: c.now().Sub(start) / time.Millisecond}
			if err == nil && probeCtx.Err() != nil {
				err = probeCtx.Err()
			}
			if err != nil {
				status.Status = domain.ReadinessDown
				status.Error = err.Error()
				if errors.Is(err, context.DeadlineExceeded) {
					status.Error = "timeout"
				}
			}

			mu.Lock()
			defer mu.Unlock()
			report.Dependencies[probe.Name] = status
			switch {
			case err == nil:
			case probe.Optional:
				if report.Status == domain.ReadinessOK {
					report.Status = domain.ReadinessDegraded
				}
			default:
				report.Status = domain.ReadinessDown
			}
		}()
	}
	wg.Wait()
	report.CheckedAt = c.now()
	return report
}
