package services

import (
	"context"
	"errors"
	"time"

	"github.com/trimline-home/api/internal/repositories"
)

var (
	errSystemRepositoryRequired = errors.New("system service: health repository is required")
	errSystemClockRequired      = errors.New("system service: clock is required")
)

// ErrSystemUnavailable indicates the readiness probes themselves failed to run.
var ErrSystemUnavailable = errors.New("system service: unavailable")

// SystemServiceDeps wires the health repository for readiness checks.
type SystemServiceDeps struct {
	Repository repositories.HealthRepository
	Clock      Clock
	Logger     Logger
}

type systemService struct {
	repo   repositories.HealthRepository
	now    func() time.Time
	logger Logger
}

// NewSystemService constructs a SystemService.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.Repository == nil {
		return nil, errSystemRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errSystemClockRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &systemService{
		repo:   deps.Repository,
		now:    func() time.Time { return deps.Clock().UTC() },
		logger: logger,
	}, nil
}

// CheckReadiness runs every dependency probe and reports the aggregate.
func (s *systemService) CheckReadiness(ctx context.Context) (ReadinessReport, error) {
	statuses, err := s.repo.Collect(ctx)
	if err != nil {
		return ReadinessReport{}, ErrSystemUnavailable
	}

	healthy := true
	for _, status := range statuses {
		if !status.Healthy {
			healthy = false
			s.logger(ctx, "readiness.dependency_unhealthy", map[string]any{
				"dependency": status.Name,
				"error":      status.Error,
			})
		}
	}
	if statuses == nil {
		statuses = []DependencyStatus{}
	}
	return ReadinessReport{
		Healthy:      healthy,
		Dependencies: statuses,
		CheckedAt:    s.now(),
	}, nil
}
