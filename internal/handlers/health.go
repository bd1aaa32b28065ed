package handlers

import (
	"net/http"
	"time"

	domain "github.com/customtees/api/internal/domain"
	"github.com/customtees/api/internal/services"
)

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	system    services.SystemService
	startedAt time.Time
	now       func() time.Time
}

// NewHealthHandlers constructs health probe handlers. The system service is
// optional; without it the readiness probe reports only process liveness.
func NewHealthHandlers(system services.SystemService) *HealthHandlers {
	return &HealthHandlers{
		system:    system,
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    domain.HealthStatusOK,
		"uptime":    now.Sub(h.startedAt).String(),
		"timestamp": now.UTC().Format(time.RFC3339),
	})
}

// Readyz reports dependency readiness collected from the system service.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		writeJSONResponse(w, http.StatusOK, map[string]any{"status": domain.HealthStatusOK})
		return
	}

	report, err := h.system.HealthReport(r.Context())
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, map[string]any{
			"status":  domain.HealthStatusError,
			"message": "health report unavailable",
		})
		return
	}

	checks := make(map[string]any, len(report.Checks))
	for name, check := range report.Checks {
		entry := map[string]any{"status": check.Status}
		if check.Detail != "" {
			entry["detail"] = check.Detail
		}
		if check.Error != "" {
			entry["error"] = check.Error
		}
		checks[name] = entry
	}

	status := http.StatusOK
	if report.Status == domain.HealthStatusError {
		status = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, status, map[string]any{
		"status":       report.Status,
		"checks":       checks,
		"generated_at": formatTime(report.GeneratedAt),
	})
}
