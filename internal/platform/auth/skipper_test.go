package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestAuthSkipper(t *testing.T) {
	tests := []struct {
		path string
		skip bool
	}{
		{"/health", true},
		{"/health/db", true},
		{"/metrics", true},
		{"/api/v1/auth/login", true},
		{"/api/v1/receipts", false},
		{"/api/v1/materials/:id", false},
	}
	for _, tt := range tests {
		e := echo.New()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, tt.path, nil), httptest.NewRecorder())
		c.SetPath(tt.path)
		if got := AuthSkipper(c); got != tt.skip {
			t.Errorf("AuthSkipper(%q) = %v, want %v", tt.path, got, tt.skip)
		}
		if IsPublicPath(tt.path) != tt.skip {
			t.Errorf("IsPublicPath(%q) mismatch", tt.path)
		}
	}
}

func TestJWTMiddleware_SkipsPublicPaths(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), httptest.NewRecorder())
	c.SetPath("/health")

	err := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Skipper: AuthSkipper})(okHandler)(c)
	if err != nil {
		t.Fatalf("expected public path to skip auth, got %v", err)
	}
}

func TestJWTMiddleware_DoesNotSkipProtectedPaths(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/bills", nil), httptest.NewRecorder())
	c.SetPath("/api/v1/bills")

	err := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Skipper: AuthSkipper})(okHandler)(c)
	expectStatus(t, err, http.StatusUnauthorized)
}
