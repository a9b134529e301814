package services

import (
	"context"
	"testing"
	"time"

	"github.com/trimline-home/api/internal/repositories"
)

type stubHealthRepo struct {
	collectFn func(ctx context.Context) ([]repositories.DependencyStatus, error)
}

func (s *stubHealthRepo) Collect(ctx context.Context) ([]repositories.DependencyStatus, error) {
	return s.collectFn(ctx)
}

func TestCheckReadinessAggregates(t *testing.T) {
	repo := &stubHealthRepo{
		collectFn: func(context.Context) ([]repositories.DependencyStatus, error) {
			return []repositories.DependencyStatus{
				{Name: "firestore", Healthy: true, Latency: 12 * time.Millisecond},
				{Name: "payments", Healthy: false, Error: "dial timeout"},
			}, nil
		},
	}
	svc, err := NewSystemService(SystemServiceDeps{Repository: repo, Clock: testClock})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	report, err := svc.CheckReadiness(context.Background())
	if err != nil {
		t.Fatalf("CheckReadiness: %v", err)
	}
	if report.Healthy {
		t.Fatal("one failing dependency must mark the report unhealthy")
	}
	if len(report.Dependencies) != 2 {
		t.Fatalf("expected 2 dependencies, got %d", len(report.Dependencies))
	}
	if !report.CheckedAt.Equal(testClock()) {
		t.Fatalf("expected clock timestamp, got %v", report.CheckedAt)
	}
}

func TestCheckReadinessAllHealthy(t *testing.T) {
	repo := &stubHealthRepo{
		collectFn: func(context.Context) ([]repositories.DependencyStatus, error) {
			return []repositories.DependencyStatus{{Name: "firestore", Healthy: true}}, nil
		},
	}
	svc, err := NewSystemService(SystemServiceDeps{Repository: repo, Clock: testClock})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	report, err := svc.CheckReadiness(context.Background())
	if err != nil {
		t.Fatalf("CheckReadiness: %v", err)
	}
	if !report.Healthy {
		t.Fatal("expected healthy report")
	}
}
