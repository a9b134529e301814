package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/trimline-home/api/internal/services"
)

type stubSystemService struct {
	readinessFn func(ctx context.Context) (services.ReadinessReport, error)
}

func (s *stubSystemService) CheckReadiness(ctx context.Context) (services.ReadinessReport, error) {
	return s.readinessFn(ctx)
}

func TestHealthzAlwaysOK(t *testing.T) {
	h := NewHealthHandlers(nil)

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assertStatus(t, rec, http.StatusOK)
}

func TestReadyzHealthy(t *testing.T) {
	h := NewHealthHandlers(&stubSystemService{
		readinessFn: func(context.Context) (services.ReadinessReport, error) {
			return services.ReadinessReport{Healthy: true}, nil
		},
	})

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assertStatus(t, rec, http.StatusOK)
}

func TestReadyzUnhealthyDependency(t *testing.T) {
	h := NewHealthHandlers(&stubSystemService{
		readinessFn: func(context.Context) (services.ReadinessReport, error) {
			return services.ReadinessReport{
				Healthy:      false,
				Dependencies: []services.DependencyStatus{{Name: "firestore", Healthy: false, Error: "dial timeout"}},
			}, nil
		},
	})

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assertStatus(t, rec, http.StatusServiceUnavailable)
}

func TestReadyzProbeFailure(t *testing.T) {
	h := NewHealthHandlers(&stubSystemService{
		readinessFn: func(context.Context) (services.ReadinessReport, error) {
			return services.ReadinessReport{}, errors.New("probe exploded")
		},
	})

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assertStatus(t, rec, http.StatusServiceUnavailable)
}
