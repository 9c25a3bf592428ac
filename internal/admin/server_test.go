package admin

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lunastream/realtime/internal/security"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	audit := security.NewAuditLog(zerolog.Nop(), 100, time.Hour)
	mon := security.NewMonitor(security.Config{
		Buckets: map[security.BucketClass]security.Policy{
			security.BucketAPI: {Max: 100, Window: time.Minute},
		},
		BlockAfterViolations: 100,
	}, audit, zerolog.Nop())
	t.Cleanup(mon.Stop)
	return NewServer("secret-token", mon, nil, nil, nil, zerolog.Nop()).Router()
}

func TestHealthOpenWithoutToken(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET /health without token = %d, want 200", rec.Code)
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("GET /metrics without token = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest("GET", "/metrics", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("GET /metrics with wrong token = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest("GET", "/metrics", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("GET /metrics with token = %d, want 200", rec.Code)
	}
}
