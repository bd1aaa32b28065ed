package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	domain "github.com/customtees/api/internal/domain"
	"github.com/customtees/api/internal/repositories"
)

type stubSystemService struct {
	report repositories.SystemHealthReport
	err    error
}

func (s *stubSystemService) HealthReport(ctx context.Context) (repositories.SystemHealthReport, error) {
	return s.report, s.err
}

func TestHealthzReportsUptime(t *testing.T) {
	h := NewHealthHandlers(nil)
	h.startedAt = time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC) }

	router := NewRouter(WithHealthHandlers(h))
	rec := doJSONRequest(t, router, http.MethodGet, "/healthz", "", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
	if body["uptime"] != "1h30m0s" {
		t.Errorf("uptime = %v, want 1h30m0s", body["uptime"])
	}
}

func TestReadyzWithoutSystemServiceIsOK(t *testing.T) {
	router := NewRouter(WithHealthHandlers(NewHealthHandlers(nil)))
	rec := doJSONRequest(t, router, http.MethodGet, "/readyz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestReadyzDegradedStillReady(t *testing.T) {
	system := &stubSystemService{report: repositories.SystemHealthReport{
		Status: domain.HealthStatusDegraded,
		Checks: map[string]repositories.SystemHealthCheck{
			"firestore": {Status: domain.HealthStatusOK},
			"pubsub":    {Status: domain.HealthStatusDegraded, Detail: "publish latency elevated"},
		},
		GeneratedAt: time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC),
	}}

	router := NewRouter(WithHealthHandlers(NewHealthHandlers(system)))
	rec := doJSONRequest(t, router, http.MethodGet, "/readyz", "", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := decodeBody(t, rec)
	if body["status"] != "degraded" {
		t.Errorf("status field = %v, want degraded", body["status"])
	}
	checks, ok := body["checks"].(map[string]any)
	if !ok {
		t.Fatalf("checks missing from payload: %v", body)
	}
	if _, ok := checks["firestore"]; !ok {
		t.Errorf("firestore check missing: %v", checks)
	}
}

func TestReadyzErrorStatusIsUnavailable(t *testing.T) {
	system := &stubSystemService{report: repositories.SystemHealthReport{
		Status: domain.HealthStatusError,
		Checks: map[string]repositories.SystemHealthCheck{
			"firestore": {Status: domain.HealthStatusError, Error: "deadline exceeded"},
		},
	}}

	router := NewRouter(WithHealthHandlers(NewHealthHandlers(system)))
	rec := doJSONRequest(t, router, http.MethodGet, "/readyz", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestReadyzReportFailureIsUnavailable(t *testing.T) {
	system := &stubSystemService{err: errors.New("probe failed")}

	router := NewRouter(WithHealthHandlers(NewHealthHandlers(system)))
	rec := doJSONRequest(t, router, http.MethodGet, "/readyz", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
