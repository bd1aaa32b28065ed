package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/customtees/api/internal/platform/auth"
)

const testSigningSecret = "handler-test-signing-secret"

func newTestAuthenticator(t *testing.T) *auth.Authenticator {
	t.Helper()
	authn, err := auth.NewAuthenticator([]byte(testSigningSecret))
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	return authn
}

func bearerToken(t *testing.T, authn *auth.Authenticator, identity auth.Identity) string {
	t.Helper()
	token, err := authn.IssueToken(identity, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	return "Bearer " + token
}

func testUserIdentity() auth.Identity {
	return auth.Identity{UID: "usr_123", Email: "shopper@example.com", Roles: []string{auth.RoleUser}}
}

func testStaffIdentity() auth.Identity {
	return auth.Identity{UID: "stf_001", Email: "warehouse@example.com", Roles: []string{auth.RoleStaff}}
}

func testAdminIdentity() auth.Identity {
	return auth.Identity{UID: "adm_001", Email: "ops@example.com", Roles: []string{auth.RoleAdmin}}
}

func doJSONRequest(t *testing.T, handler http.Handler, method, target, authorization string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var decoded map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode response body %q: %v", rec.Body.String(), err)
	}
	return decoded
}

func assertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, wantStatus int, wantCode string) {
	t.Helper()
	if rec.Code != wantStatus {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, wantStatus, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if got, _ := body["error"].(string); got != wantCode {
		t.Fatalf("error code = %q, want %q", got, wantCode)
	}
}
