package handlers

import (
	"net/http"
	"time"

	"github.com/trimline-home/api/internal/services"
)

var startTime = time.Now()

// HealthHandlers serves the liveness and readiness probes.
type HealthHandlers struct {
	system services.SystemService
}

// NewHealthHandlers builds the probe handlers. A nil system service degrades
// readiness to a plain liveness answer.
func NewHealthHandlers(system services.SystemService) *HealthHandlers {
	return &HealthHandlers{system: system}
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(startTime).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Readyz runs the dependency probes and returns 503 when any fail.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		writeJSONResponse(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}

	report, err := h.system.CheckReadiness(r.Context())
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
			"error":  "readiness probes failed",
		})
		return
	}

	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, report)
}
