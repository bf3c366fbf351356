package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
)

func TestRateLimit_SetsLimitHeader(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
		t.Errorf("expected X-RateLimit-Limit 10, got %q", got)
	}
}

func TestRateLimit_PerUserIsolation(t *testing.T) {
	e := echo.New()
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 1})(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	call := func(user string) error {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(auth.WithUser(req.Context(), user, nil))
		return h(e.NewContext(req, httptest.NewRecorder()))
	}

	if err := call("alice"); err != nil {
		t.Fatalf("alice first request: %v", err)
	}
	if err := call("alice"); err == nil {
		t.Fatal("expected alice to be limited")
	}
	if err := call("bob"); err != nil {
		t.Errorf("bob should have an independent bucket, got %v", err)
	}
}

func TestRateLimit_DefaultConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond != 100 || cfg.BurstSize != 200 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestTokenBucket_RetryAfter(t *testing.T) {
	b := newTokenBucket(0.5, 1)
	zero := newTokenBucket(0, 1)
	now := time.Now()

	b.take(now)
	if ok, retry := b.take(now); ok || retry != 3 {
		t.Errorf("expected retry after 3s, got ok=%v retry=%d", ok, retry)
	}

	zero.take(now)
	if ok, retry := zero.take(now); ok || retry != 1 {
		t.Errorf("zero rate: expected retry 1, got ok=%v retry=%d", ok, retry)
	}
}
