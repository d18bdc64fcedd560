package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testAuth() *Auth {
	return New(nil, "test-secret", 15*time.Minute, 30*24*time.Hour)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	a := testAuth()

	tokenStr, expiresAt, err := a.issueAccessToken(42, "alice", true)
	if err != nil {
		t.Fatalf("issueAccessToken: %v", err)
	}
	if time.Until(expiresAt) > 15*time.Minute {
		t.Errorf("expiry too far out: %v", expiresAt)
	}

	claims, err := a.validateToken(tokenStr)
	if err != nil {
		t.Fatalf("validateToken: %v", err)
	}
	if claims.UserID != 42 || claims.Username != "alice" || !claims.IsAdmin {
		t.Errorf("claims = %+v", claims)
	}
	if claims.Issuer != "driftpad" {
		t.Errorf("issuer = %q", claims.Issuer)
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	a := testAuth()
	tokenStr, _, err := a.issueAccessToken(1, "bob", false)
	if err != nil {
		t.Fatal(err)
	}

	other := New(nil, "different-secret", 15*time.Minute, time.Hour)
	if _, err := other.validateToken(tokenStr); err == nil {
		t.Error("expected validation failure with wrong secret")
	}
}

func TestValidateTokenGarbage(t *testing.T) {
	a := testAuth()
	if _, err := a.validateToken("not-a-jwt"); err == nil {
		t.Error("expected error for garbage token")
	}
}

func TestValidateTokenExpired(t *testing.T) {
	a := New(nil, "test-secret", -time.Minute, time.Hour)
	tokenStr, _, err := a.issueAccessToken(1, "bob", false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.validateToken(tokenStr); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestExtractToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
	r.Header.Set("Authorization", "Bearer abc123")
	if got := extractToken(r); got != "abc123" {
		t.Errorf("extractToken = %q, want abc123", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/api/v1/events?token=xyz", nil)
	if got := extractToken(r); got != "xyz" {
		t.Errorf("extractToken = %q, want xyz", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	if got := extractToken(r); got != "" {
		t.Errorf("extractToken = %q, want empty", got)
	}
}

func TestMiddleware(t *testing.T) {
	a := testAuth()
	tokenStr, _, err := a.issueAccessToken(7, "carol", false)
	if err != nil {
		t.Fatal(err)
	}

	var gotClaims *Claims
	handler := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClaims = GetClaims(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
	r.Header.Set("Authorization", "Bearer "+tokenStr)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if gotClaims == nil || gotClaims.UserID != 7 {
		t.Errorf("claims = %+v", gotClaims)
	}

	// Missing token is rejected before the handler runs.
	gotClaims = nil
	r = httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if gotClaims != nil {
		t.Error("handler ran without a token")
	}
}

func TestHashTokenStable(t *testing.T) {
	if hashToken("a") == hashToken("b") {
		t.Error("distinct tokens hash equal")
	}
	if hashToken("a") != hashToken("a") {
		t.Error("hash not deterministic")
	}
	if len(hashToken("a")) != 64 {
		t.Errorf("hash length = %d, want 64", len(hashToken("a")))
	}
}
