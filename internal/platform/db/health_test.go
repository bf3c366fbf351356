package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type fakeHealthSource struct {
	pingErr error
}

func (f fakeHealthSource) Ping(context.Context) error { return f.pingErr }
func (f fakeHealthSource) Stat() *pgxpool.Stat      { return nil }

func runHealth(t *testing.T, src healthSource, check schemaChecker) (int, HealthReport) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health/db", nil), rec)
	if err := healthHandler(src, check, "default")(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var report HealthReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rec.Code, report
}

func TestHealthHandler(t *testing.T) {
	migrated := func(context.Context, string) (bool, error) { return true, nil }
	notMigrated := func(context.Context, string) (bool, error) { return false, nil }
	broken := func(context.Context, string) (bool, error) { return false, errors.New("check schema: boom") }

	tests := []struct {
		name     string
		src      healthSource
		check    schemaChecker
		code     int
		migrated bool
	}{
		{"healthy", fakeHealthSource{}, migrated, http.StatusOK, true},
		{"ping fails", fakeHealthSource{pingErr: errors.New("conn refused")}, migrated, http.StatusServiceUnavailable, false},
		{"schema missing", fakeHealthSource{}, notMigrated, http.StatusServiceUnavailable, false},
		{"schema check fails", fakeHealthSource{}, broken, http.StatusServiceUnavailable, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, report := runHealth(t, tt.src, tt.check)
			if code != tt.code {
				t.Errorf("expected %d, got %d", tt.code, code)
			}
			if report.Migrated != tt.migrated || report.Tenant != "default" {
				t.Errorf("unexpected report %+v", report)
			}
			if tt.code != http.StatusOK && report.Error == "" {
				t.Error("expected an error message")
			}
		})
	}
}
