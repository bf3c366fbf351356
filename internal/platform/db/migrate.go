package db

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"

	"github.com/clinic/clinic/migrations"
)

// MigrationStatus represents the status of a migration (applied or pending).
type MigrationStatus struct {
	Version   int64
	Name      string
	Applied   bool
	AppliedAt *time.Time
}

// Migrator applies the embedded goose migrations to a tenant schema.
type Migrator struct {
	pool *pgxpool.Pool
	fsys fs.FS
}

func NewMigrator(pool *pgxpool.Pool) *Migrator {
	return &Migrator{pool: pool, fsys: migrations.FS}
}

func (m *Migrator) withProvider(ctx context.Context, schema string, fn func(p *goose.Provider) error) error {
	if _, err := m.pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}

	sqlDB := OpenSchemaDB(m.pool, schema)
	defer func() { _ = sqlDB.Close() }()

	p, err := goose.NewProvider(goose.DialectPostgres, sqlDB, m.fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	return fn(p)
}

// Up applies all pending migrations and returns how many ran.
func (m *Migrator) Up(ctx context.Context, schema string) (int, error) {
	var n int
	err := m.withProvider(ctx, schema, func(p *goose.Provider) error {
		results, err := p.Up(ctx)
		n = len(results)
		return err
	})
	return n, err
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context, schema string) (int64, error) {
	var version int64
	err := m.withProvider(ctx, schema, func(p *goose.Provider) error {
		res, err := p.Down(ctx)
		if res != nil && res.Source != nil {
			version = res.Source.Version
		}
		return err
	})
	return version, err
}

func (m *Migrator) Status(ctx context.Context, schema string) ([]MigrationStatus, error) {
	var out []MigrationStatus
	err := m.withProvider(ctx, schema, func(p *goose.Provider) error {
		statuses, err := p.Status(ctx)
		if err != nil {
			return err
		}
		for _, s := range statuses {
			out = append(out, toMigrationStatus(s))
		}
		return nil
	})
	return out, err
}

func toMigrationStatus(s *goose.MigrationStatus) MigrationStatus {
	ms := MigrationStatus{}
	if s.Source != nil {
		ms.Version = s.Source.Version
		ms.Name = s.Source.Path
	}
	if s.State == goose.StateApplied {
		ms.Applied = true
		at := s.AppliedAt
		ms.AppliedAt = &at
	}
	return ms
}
