package identity

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestRoleHierarchy(t *testing.T) {
	if !RoleAdmin.AtLeast(RoleModerator) {
		t.Error("admin not at least moderator")
	}
	if !RoleModerator.AtLeast(RoleModerator) {
		t.Error("moderator not at least itself")
	}
	if RoleSubscriber.AtLeast(RoleModerator) {
		t.Error("subscriber ranked at moderator")
	}
	if Role("superuser").AtLeast(RoleViewer) {
		t.Error("unknown role ranked at or above viewer")
	}
	if Role("superuser").Valid() {
		t.Error("unknown role reported valid")
	}
}

func TestResolveValidToken(t *testing.T) {
	r := NewJWTResolver("test-secret")
	token := signToken(t, "test-secret", Claims{
		UserID:      "u1",
		DisplayName: "alice",
		Role:        "moderator",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	ident, err := r.Resolve(token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ident.ID != "u1" || ident.DisplayName != "alice" || ident.Role != RoleModerator {
		t.Errorf("identity = %+v", ident)
	}
}

func TestResolveUnknownRoleDowngradesToViewer(t *testing.T) {
	r := NewJWTResolver("test-secret")
	token := signToken(t, "test-secret", Claims{UserID: "u1", Role: "wizard"})

	ident, err := r.Resolve(token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ident.Role != RoleViewer {
		t.Errorf("role = %q, want viewer for unknown claim role", ident.Role)
	}
}

func TestResolveRejectsBadTokens(t *testing.T) {
	r := NewJWTResolver("test-secret")

	if _, err := r.Resolve("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("malformed token: got %v, want ErrInvalidToken", err)
	}

	wrongKey := signToken(t, "other-secret", Claims{UserID: "u1"})
	if _, err := r.Resolve(wrongKey); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong key: got %v, want ErrInvalidToken", err)
	}

	expired := signToken(t, "test-secret", Claims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	if _, err := r.Resolve(expired); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token: got %v, want ErrInvalidToken", err)
	}

	noSubject := signToken(t, "test-secret", Claims{})
	if _, err := r.Resolve(noSubject); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("missing subject: got %v, want ErrInvalidToken", err)
	}
}

func TestFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Authorization", "Bearer abc123")
	if got := FromRequest(req); got != "abc123" {
		t.Errorf("header token = %q", got)
	}

	req = httptest.NewRequest("GET", "/ws?access_token=qrs789", nil)
	if got := FromRequest(req); got != "qrs789" {
		t.Errorf("query token = %q", got)
	}

	req = httptest.NewRequest("GET", "/ws", nil)
	if got := FromRequest(req); got != "" {
		t.Errorf("no credential = %q, want empty", got)
	}

	req = httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	if got := FromRequest(req); got != "" {
		t.Errorf("non-bearer scheme = %q, want empty", got)
	}
}
