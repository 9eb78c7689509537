package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/afyacare/clinic-intake-platform/internal/clinic"
	"github.com/afyacare/clinic-intake-platform/internal/conversation"
	"github.com/afyacare/clinic-intake-platform/internal/messaging"
	"github.com/afyacare/clinic-intake-platform/internal/tenancy"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error { return s.err }

func newTestRouter(db Pinger) http.Handler {
	webhook := messaging.NewWebhookHandler(nil, nil, nil, nil, nil, "auth-token", "https://intake.example.com/webhook/whatsapp")
	admin := clinic.NewAdminHandler(tenancy.NewRepositoryWithDB(nil), nil, nil, clinic.NewStatsRepositoryWithDB(nil), conversation.NewHospitalDirectory(nil, nil), nil, nil)
	return New(&Config{
		WebhookHandler:  webhook,
		AdminHandler:    admin,
		AdminAuthSecret: "secret",
		DB:              db,
	})
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(stubPinger{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestHealthEndpointDegraded(t *testing.T) {
	r := newTestRouter(stubPinger{err: errors.New("connection refused")})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestWebhookRouteRejectsUnsigned(t *testing.T) {
	r := newTestRouter(stubPinger{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader("Body=hi")))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unsigned webhook, got %d", rec.Code)
	}
}

func TestAdminRoutesRequireAuth(t *testing.T) {
	r := newTestRouter(stubPinger{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/clinics", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}
