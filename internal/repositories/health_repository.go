package repositories

import (
	"context"
	"errors"
	"sync"
	"time"
)

const defaultDependencyTimeout = 1500 * time.Millisecond

type dependencyHealthRepository struct {
	checks         []DependencyCheck
	defaultTimeout time.Duration
}

var _ HealthRepository = (*dependencyHealthRepository)(nil)

// NewDependencyHealthRepository builds a HealthRepository that runs the given
// probes concurrently.
func NewDependencyHealthRepository(checks []DependencyCheck) (HealthRepository, error) {
	if len(checks) == 0 {
		return nil, errors.New("health repository: at least one dependency check is required")
	}
	repo := &dependencyHealthRepository{
		checks:         make([]DependencyCheck, len(checks)),
		defaultTimeout: defaultDependencyTimeout,
	}
	copy(repo.checks, checks)
	return repo, nil
}

func (r *dependencyHealthRepository) Collect(ctx context.Context) ([]DependencyStatus, error) {
	if ctx == nil {
		return nil, errors.New("health repository: context is required")
	}

	statuses := make([]DependencyStatus, len(r.checks))
	var wg sync.WaitGroup
	for i, check := range r.checks {
		wg.Add(1)
		go func(i int, check DependencyCheck) {
			defer wg.Done()
			statuses[i] = r.run(ctx, check)
		}(i, check)
	}
	wg.Wait()
	return statuses, nil
}

func (r *dependencyHealthRepository) run(ctx context.Context, check DependencyCheck) DependencyStatus {
	status := DependencyStatus{Name: check.Name}
	if check.Check == nil {
		status.Error = "no probe configured"
		return status
	}

	timeout := check.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := check.Check(probeCtx)
	status.Latency = time.Since(start)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Healthy = true
	return status
}
