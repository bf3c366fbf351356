package db

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireDuration string `json:"acquire_duration"`
}

// HealthReport is the body of /health/db.
type HealthReport struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	// Tenant is the default tenant; Migrated reports whether its schema
	// has the newest tables.
	Tenant   string     `json:"tenant"`
	Migrated bool       `json:"migrated"`
	Pool     *PoolStats `json:"pool,omitempty"`
}

// healthSource is the part of *pgxpool.Pool the health check needs.
type healthSource interface {
	Ping(ctx context.Context) error
	Stat() *pgxpool.Stat
}

func poolStats(stat *pgxpool.Stat) *PoolStats {
	if stat == nil {
		return nil
	}
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// schemaChecker reports whether a tenant schema has been migrated.
type schemaChecker func(ctx context.Context, tenantID string) (bool, error)

func pgSchemaChecker(pool *pgxpool.Pool) schemaChecker {
	return func(ctx context.Context, tenantID string) (bool, error) {
		var ok bool
		err := pool.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL",
			SchemaName(tenantID)+".notifications").Scan(&ok)
		if err != nil {
			return false, fmt.Errorf("check schema: %w", err)
		}
		return ok, nil
	}
}

// HealthHandler pings the database and checks that the default tenant
// schema has been migrated. Either failure answers 503.
func HealthHandler(pool *pgxpool.Pool, defaultTenant string) echo.HandlerFunc {
	return healthHandler(pool, pgSchemaChecker(pool), defaultTenant)
}

func healthHandler(src healthSource, migrated schemaChecker, tenant string) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		report := HealthReport{Status: "healthy", Tenant: tenant}
		if err := src.Ping(ctx); err != nil {
			report.Status = "unhealthy"
			report.Error = err.Error()
			return c.JSON(http.StatusServiceUnavailable, report)
		}
		report.Pool = poolStats(src.Stat())

		ok, err := migrated(ctx, tenant)
		if err != nil || !ok {
			report.Status = "unhealthy"
			report.Error = "default tenant schema is not migrated"
			if err != nil {
				report.Error = err.Error()
			}
			return c.JSON(http.StatusServiceUnavailable, report)
		}
		report.Migrated = true
		return c.JSON(http.StatusOK, report)
	}
}
