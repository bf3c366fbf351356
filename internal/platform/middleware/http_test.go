package middleware

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestParseLimit(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"512K", 512 << 10},
		{"10M", 10 << 20},
		{"10MB", 10 << 20},
		{"1g", 1 << 30},
		{"2048", 2048},
		{"", 1 << 20},
		{"lots", 1 << 20},
	}
	for _, tt := range tests {
		if got := parseLimit(tt.in); got != tt.want {
			t.Errorf("parseLimit(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func readAll(c echo.Context) error {
	_, err := io.ReadAll(c.Request().Body)
	return err
}

func TestBodyLimit_JSON(t *testing.T) {
	e := echo.New()
	mw := BodyLimit("10", "1K")

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":500}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	err := mw(readAll)(e.NewContext(req, httptest.NewRecorder()))
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`))
	if err := mw(readAll)(e.NewContext(req, httptest.NewRecorder())); err != nil {
		t.Errorf("small body: unexpected error %v", err)
	}
}

func TestBodyLimit_UnknownLength(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 64)))
	req.ContentLength = -1
	err := BodyLimit("16", "16")(readAll)(e.NewContext(req, httptest.NewRecorder()))
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from the limiting reader, got %v", err)
	}
}

func TestBodyLimit_MultipartUsesUploadLimit(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 100)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEMultipartForm+"; boundary=abc")
	if err := BodyLimit("10", "1K")(readAll)(e.NewContext(req, httptest.NewRecorder())); err != nil {
		t.Errorf("expected upload limit to apply, got %v", err)
	}
}

func TestSecurityHeaders(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	_ = SecurityHeaders()(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)

	for h, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := rec.Header().Get(h); got != want {
			t.Errorf("%s = %q, want %q", h, got, want)
		}
	}
}

func TestRequestTimeout(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	err := RequestTimeout(time.Millisecond)(func(c echo.Context) error {
		<-c.Request().Context().Done()
		return fmt.Errorf("query: %w", c.Request().Context().Err())
	})(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %v", err)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	err = RequestTimeout(time.Second)(func(c echo.Context) error {
		if _, ok := c.Request().Context().Deadline(); !ok {
			t.Error("expected a deadline on the request context")
		}
		return nil
	})(c)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
