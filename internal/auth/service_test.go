package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestServiceAuthenticate(t *testing.T) {
	svc, err := NewService(Config{Enabled: true, APIKeys: []string{"secret-key"}})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if svc.Mode() != ModeAPIKey {
		t.Fatalf("unexpected mode %s", svc.Mode())
	}

	subject, err := svc.Authenticate("Bearer secret-key")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if subject.KeyFingerprint == "" {
		t.Fatal("expected key fingerprint")
	}

	if _, err := svc.Authenticate("Bearer wrong"); err != ErrInvalidToken {
		t.Fatalf("expected invalid token, got %v", err)
	}
	if _, err := svc.Authenticate(""); err != ErrMissingToken {
		t.Fatalf("expected missing token, got %v", err)
	}
	if _, err := svc.Authenticate("Basic abc"); err != ErrInvalidToken {
		t.Fatalf("expected invalid token for non-bearer scheme, got %v", err)
	}
}

func TestNewServiceRequiresKeys(t *testing.T) {
	if _, err := NewService(Config{Enabled: true}); err != ErrNoKeysConfigured {
		t.Fatalf("expected ErrNoKeysConfigured, got %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	svc, err := NewService(Config{Enabled: true, APIKeys: []string{"secret-key"}})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	var sawSubject *Subject
	handler := svc.Middleware(MiddlewareConfig{AuditEvent: "test"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawSubject = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reviews", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/reviews", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 with valid token, got %d", rec.Code)
	}
	if sawSubject == nil || sawSubject.KeyFingerprint == "" {
		t.Fatal("expected subject in request context")
	}
}

func TestDisabledServicePassesThrough(t *testing.T) {
	svc, err := NewService(Config{Enabled: false})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	handler := svc.Middleware(MiddlewareConfig{})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}
}
