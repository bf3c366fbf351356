package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestIssuer_RoundTrip(t *testing.T) {
	now := time.Now()
	iss := &Issuer{SigningKey: testSigningKey, Issuer: "clinic", TTL: time.Hour, Now: func() time.Time { return now }}

	token, exp, err := iss.Issue("staff-1", "minh", "north", []string{RoleReceptionist})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !exp.Equal(now.Add(time.Hour)) {
		t.Errorf("unexpected expiry %v", exp)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	c := e.NewContext(req, httptest.NewRecorder())

	var uid string
	h := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Issuer: "clinic"})(func(c echo.Context) error {
		uid = UserIDFromContext(c.Request().Context())
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("issued token rejected: %v", err)
	}
	if uid != "staff-1" {
		t.Errorf("expected subject staff-1, got %q", uid)
	}
}

func TestIssuer_NoKey(t *testing.T) {
	iss := &Issuer{TTL: time.Hour}
	if _, _, err := iss.Issue("x", "x", "", nil); err == nil {
		t.Fatal("expected error without signing key")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "s3cret-pass" {
		t.Fatal("hash must not equal the password")
	}
	if !CheckPassword(hash, "s3cret-pass") {
		t.Error("expected password to match")
	}
	if CheckPassword(hash, "wrong") {
		t.Error("expected wrong password to fail")
	}
}
