package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const testSecret = "unit-test-secret"

func signToken(t *testing.T, secret, role string, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": "op@example.com", "role": role, "exp": exp.Unix()}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func runProtected(token string, mws ...echo.MiddlewareFunc) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/admin/slots", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	_ = h(e.NewContext(req, rec))
	return rec
}

func TestJWTAuthAcceptsValidToken(t *testing.T) {
	token := signToken(t, testSecret, "ADMIN", time.Now().Add(time.Hour))
	rec := runProtected(token, JWTAuth(testSecret), RequireRole("ADMIN"))
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestJWTAuthRejectsMissingToken(t *testing.T) {
	rec := runProtected("", JWTAuth(testSecret))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", rec.Code)
	}
}

func TestJWTAuthRejectsWrongSecret(t *testing.T) {
	token := signToken(t, "other-secret", "ADMIN", time.Now().Add(time.Hour))
	rec := runProtected(token, JWTAuth(testSecret))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", rec.Code)
	}
}

func TestJWTAuthRejectsExpiredToken(t *testing.T) {
	token := signToken(t, testSecret, "ADMIN", time.Now().Add(-time.Hour))
	rec := runProtected(token, JWTAuth(testSecret))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", rec.Code)
	}
}

func TestRequireRoleRejectsWrongRole(t *testing.T) {
	token := signToken(t, testSecret, "STUDENT", time.Now().Add(time.Hour))
	rec := runProtected(token, JWTAuth(testSecret), RequireRole("ADMIN"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("want 403, got %d", rec.Code)
	}
}

func TestRequireRoleRejectsMissingClaim(t *testing.T) {
	rec := runProtected("", RequireRole("ADMIN"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("want 403, got %d", rec.Code)
	}
}
