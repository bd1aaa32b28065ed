package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var authTestNow = time.Date(2025, time.July, 1, 9, 0, 0, 0, time.UTC)

var authTestSecret = []byte("test-signing-secret")

func newTestAuthenticator(t *testing.T, opts ...Option) *Authenticator {
	t.Helper()
	opts = append(opts, WithClock(func() time.Time { return authTestNow }))
	authn, err := NewAuthenticator(authTestSecret, opts...)
	if err != nil {
		t.Fatalf("NewAuthenticator returned error: %v", err)
	}
	return authn
}

func signToken(t *testing.T, claims tokenClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(authTestSecret)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return token
}

func TestRequireAuth_AllowsValidToken(t *testing.T) {
	authn := newTestAuthenticator(t)

	tokenStr := signToken(t, tokenClaims{
		Email:  "user@example.com",
		Role:   []any{"staff", "admin"},
		Locale: "en-IN",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "uid-123",
			ExpiresAt: jwt.NewNumericDate(authTestNow.Add(time.Hour)),
		},
	})

	handlerCalled := false
	handler := authn.RequireAuth(RoleStaff)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true

		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected identity in context")
		}
		if identity.UID != "uid-123" {
			t.Fatalf("unexpected uid: %s", identity.UID)
		}
		if !identity.HasRole(RoleStaff) || !identity.IsAdmin() {
			t.Fatalf("expected staff and admin roles, got %v", identity.Roles)
		}
		if identity.Email != "user@example.com" {
			t.Fatalf("expected email user@example.com, got %s", identity.Email)
		}

		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if !handlerCalled {
		t.Fatalf("expected handler to be called")
	}
}

func TestRequireAuth_ExpiredToken(t *testing.T) {
	authn := newTestAuthenticator(t)

	tokenStr := signToken(t, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "uid-123",
			ExpiresAt: jwt.NewNumericDate(authTestNow.Add(-time.Hour)),
		},
	})

	handler := authn.RequireAuth(RoleUser)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not execute on expired token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if body["error"] != "token_expired" {
		t.Fatalf("expected token_expired error, got %v", body["error"])
	}
}

func TestRequireAuth_RejectsWrongSignature(t *testing.T) {
	authn := newTestAuthenticator(t)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "uid-123",
			ExpiresAt: jwt.NewNumericDate(authTestNow.Add(time.Hour)),
		},
	}).SignedString([]byte("some-other-secret"))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}

	handler := authn.RequireAuth()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not execute on forged token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestRequireAuth_MissingRoleUsesFallback(t *testing.T) {
	authn := newTestAuthenticator(t)

	tokenStr := signToken(t, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "uid-456",
			ExpiresAt: jwt.NewNumericDate(authTestNow.Add(time.Hour)),
		},
	})

	handler := authn.RequireAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected identity in context")
		}
		if len(identity.Roles) != 1 || identity.Roles[0] != RoleUser {
			t.Fatalf("expected fallback role %q, got %v", RoleUser, identity.Roles)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}

func TestRequireAuth_InsufficientRole(t *testing.T) {
	authn := newTestAuthenticator(t)

	tokenStr := signToken(t, tokenClaims{
		Role: "user",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "uid-789",
			ExpiresAt: jwt.NewNumericDate(authTestNow.Add(time.Hour)),
		},
	})

	handler := authn.RequireAuth(RoleAdmin)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not execute for insufficient role")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestIssueTokenRoundTrip(t *testing.T) {
	authn := newTestAuthenticator(t, WithIssuer("customtees-api"))

	tokenStr, err := authn.IssueToken(Identity{UID: "uid-1", Email: "a@b.c", Roles: []string{RoleAdmin}}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken returned error: %v", err)
	}

	identity, err := authn.Verify(tokenStr)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if identity.UID != "uid-1" || !identity.IsAdmin() {
		t.Fatalf("unexpected identity: %+v", identity)
	}
}
