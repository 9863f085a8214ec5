package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"omnitoken/clinic-service/internal/models"
	"omnitoken/clinic-service/internal/store"

	"github.com/rs/zerolog"
)

type fakeResolver struct {
	sessionUserFn func(ctx context.Context, sessionID string) (models.User, error)
}

func (f fakeResolver) SessionUser(ctx context.Context, sessionID string) (models.User, error) {
	return f.sessionUserFn(ctx, sessionID)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{IPPerMinute: 1, IPBurst: 2, ClinicPerMinute: 100, ClinicBurst: 100})
	handler := limiter.Middleware(okHandler())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/queue", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected status 200, got %d", i, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/queue", nil)
	req.RemoteAddr = "10.0.0.1:5001"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/queue", nil)
	req.RemoteAddr = "10.0.0.2:5000"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected other address to pass, got %d", rec.Code)
	}
}

func TestClinicRateLimitIsPerClinic(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{IPPerMinute: 100, IPBurst: 100, ClinicPerMinute: 1, ClinicBurst: 1})
	users := map[string]models.User{
		"s1": {ID: "u1", Role: models.RoleAssistant, ClinicID: "c1"},
		"s2": {ID: "u2", Role: models.RoleAssistant, ClinicID: "c1"},
		"s3": {ID: "u3", Role: models.RoleAssistant, ClinicID: "c2"},
		"s4": {ID: "root", Role: models.RoleCentralAdmin},
	}
	resolver := fakeResolver{sessionUserFn: func(ctx context.Context, sessionID string) (models.User, error) {
		user, ok := users[sessionID]
		if !ok {
			return models.User{}, store.ErrSessionNotFound
		}
		return user, nil
	}}
	handler := AuthMiddleware(resolver, limiter.ClinicMiddleware(okHandler()))

	cases := []struct {
		session string
		status  int
	}{
		{"s1", http.StatusOK},
		{"s2", http.StatusTooManyRequests},
		{"s3", http.StatusOK},
		{"s4", http.StatusOK},
		{"s4", http.StatusOK},
	}
	for i, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/queue", nil)
		req.Header.Set("Authorization", "Bearer "+tc.session)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != tc.status {
			t.Fatalf("case %d (%s): expected status %d, got %d", i, tc.session, tc.status, rec.Code)
		}
	}
}

func TestAuthMiddlewareSkipsPublicEndpoints(t *testing.T) {
	resolver := fakeResolver{sessionUserFn: func(ctx context.Context, sessionID string) (models.User, error) {
		t.Fatalf("resolver must not be called for public endpoints")
		return models.User{}, nil
	}}
	handler := AuthMiddleware(resolver, okHandler())
	for _, path := range []string{"/healthz", "/metrics", "/api/auth/login", "/api/register/f1", "/display/info"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d", path, rec.Code)
		}
	}
}

func TestAuthMiddlewareMapsStoreFailure(t *testing.T) {
	resolver := fakeResolver{sessionUserFn: func(ctx context.Context, sessionID string) (models.User, error) {
		return models.User{}, context.DeadlineExceeded
	}}
	handler := AuthMiddleware(resolver, okHandler())
	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	req.Header.Set("X-Session-ID", "abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
}

func TestLoggingMiddlewareRecordsCaller(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	resolver := fakeResolver{sessionUserFn: func(ctx context.Context, sessionID string) (models.User, error) {
		return models.User{ID: "u1", Role: models.RoleDoctor, ClinicID: "c1"}, nil
	}}
	handler := LoggingMiddleware(logger, AuthMiddleware(resolver, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/queue", nil)
	req.Header.Set("Authorization", "Bearer s1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	requestID := rec.Header().Get("X-Request-ID")
	if requestID == "" {
		t.Fatalf("expected generated request id")
	}
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log entry: %v (%s)", err, buf.String())
	}
	if entry["status"] != float64(http.StatusTeapot) || entry["user_id"] != "u1" || entry["clinic_id"] != "c1" {
		t.Fatalf("unexpected log entry: %v", entry)
	}
	if entry["request_id"] != requestID {
		t.Fatalf("expected request id %s in log, got %v", requestID, entry["request_id"])
	}
}

func TestLoggingMiddlewareKeepsClientRequestID(t *testing.T) {
	handler := LoggingMiddleware(zerolog.Nop(), okHandler())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "req-42" {
		t.Fatalf("expected req-42, got %q", got)
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc": "abc",
		"bearer abc": "abc",
		"Basic abc":  "",
		"Bearer":     "",
		"":           "",
		"Bearer a b": "",
	}
	for header, want := range cases {
		if got := bearerToken(header); got != want {
			t.Fatalf("bearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}

func TestRolePermissions(t *testing.T) {
	doctor := models.User{ID: "d1", Role: models.RoleDoctor, ClinicID: "c1"}
	if err := authorize(doctor, permTokens, "c1"); err != nil {
		t.Fatalf("expected doctor to manage tokens in own clinic: %v", err)
	}
	if err := authorize(doctor, permTokens, "c2"); err != store.ErrAccessDenied {
		t.Fatalf("expected access denied for other clinic, got %v", err)
	}
	if err := authorize(doctor, permManageClinic, "c1"); err != store.ErrAccessDenied {
		t.Fatalf("expected doctor not to manage clinic, got %v", err)
	}
	advertiser := models.User{ID: "a", Role: models.RoleAdvertiser, AdvertiserID: "adv"}
	if can(advertiser, permReadQueue) || !can(advertiser, permVideos) {
		t.Fatalf("unexpected advertiser permissions")
	}
}
