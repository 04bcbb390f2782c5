package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/atelier-market/api/internal/domain"
)

func TestReadinessCheckerStatuses(t *testing.T) {
	ok := func(context.Context) error { return nil }
	fail := func(context.Context) error { return errors.New("boom") }

	cases := []struct {
		name   string
		probes []Probe
		want   string
	}{
		{"all healthy", []Probe{{Name: "firestore", Check: ok}, {Name: "redis", Check: ok, Optional: true}}, domain.ReadinessOK},
		{"optional failure degrades", []Probe{{Name: "firestore", Check: ok}, {Name: "redis", Check: fail, Optional: true}}, domain.ReadinessDegraded},
		{"required failure is down", []Probe{{Name: "firestore", Check: fail}, {Name: "redis", Check: fail, Optional: true}}, domain.ReadinessDown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			report := NewReadinessChecker(tc.probes, 0, nil).Check(context.Background())
			if report.Status != tc.want {
				t.Fatalf("expected %s got %s (%#v)", tc.want, report.Status, report.Dependencies)
			}
			if len(report.Dependencies) != len(tc.probes) {
				t.Fatalf("expected every probe reported")
			}
		})
	}
}

func TestReadinessCheckerTimeout(t *testing.T) {
	slow := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	report := NewReadinessChecker([]Probe{{Name: "firestore", Check: slow}}, 10*time.Millisecond, nil).Check(context.Background())
	if report.Status != domain.ReadinessDown || report.Dependencies["firestore"].Error != "timeout" {
		t.Fatalf("unexpected report %#v", report)
	}
}
