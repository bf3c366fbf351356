package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func connFor(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// =========== Category Repository ===========

type categoryRepoPG struct{ pool *pgxpool.Pool }

func NewCategoryRepoPG(pool *pgxpool.Pool) CategoryRepository { return &categoryRepoPG{pool: pool} }

func (r *categoryRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const categoryCols = `id, name, description, is_active, created_at, updated_at`

func scanCategory(row pgx.Row) (*Category, error) {
	var c Category
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, apperr.FromPG(err)
	}
	return &c, nil
}

func (r *categoryRepoPG) Create(ctx context.Context, c *Category) error {
	c.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO categories (id, name, description, is_active)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at, updated_at`,
		c.ID, c.Name, c.Description, c.IsActive,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if apperr.IsUniqueViolation(err) {
		return fmt.Errorf("%w: category %q already exists", apperr.ErrValidation, c.Name)
	}
	return err
}

func (r *categoryRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Category, error) {
	c, err := scanCategory(r.conn(ctx).QueryRow(ctx, `SELECT `+categoryCols+` FROM categories WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("category %s: %w", id, err)
	}
	return c, nil
}

func (r *categoryRepoPG) Update(ctx context.Context, c *Category) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE categories SET name=$2, description=$3, is_active=$4, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		c.ID, c.Name, c.Description, c.IsActive,
	).Scan(&c.UpdatedAt)
	if apperr.IsUniqueViolation(err) {
		return fmt.Errorf("%w: category %q already exists", apperr.ErrValidation, c.Name)
	}
	return apperr.FromPG(err)
}

// Delete leaves the services foreign key as the last guard against removing
// a category that still has procedures.
func (r *categoryRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if apperr.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: category %s still has services", apperr.ErrReferentialBlock, id)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("category %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (r *categoryRepoPG) List(ctx context.Context, activeOnly bool) ([]*Category, error) {
	q := `SELECT ` + categoryCols + ` FROM categories`
	if activeOnly {
		q += ` WHERE is_active`
	}
	rows, err := r.conn(ctx).Query(ctx, q+` ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *categoryRepoPG) CountProcedures(ctx context.Context, id uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM services WHERE category_id = $1`, id).Scan(&n)
	return n, err
}

// =========== Procedure Repository ===========

type procedureRepoPG struct{ pool *pgxpool.Pool }

func NewProcedureRepoPG(pool *pgxpool.Pool) ProcedureRepository { return &procedureRepoPG{pool: pool} }

func (r *procedureRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const procSelect = `SELECT s.id, s.category_id, s.name, s.description, s.price, s.duration, s.is_active,
	s.created_at, s.updated_at, c.name
	FROM services s JOIN categories c ON c.id = s.category_id`

func scanProcedure(row pgx.Row) (*Procedure, error) {
	var p Procedure
	var category string
	err := row.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Description, &p.Price, &p.Duration, &p.IsActive,
		&p.CreatedAt, &p.UpdatedAt, &category)
	if err != nil {
		return nil, apperr.FromPG(err)
	}
	p.Category = &CategoryRef{ID: p.CategoryID, Name: category}
	return &p, nil
}

func (r *procedureRepoPG) Create(ctx context.Context, p *Procedure) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO services (id, category_id, name, description, price, duration, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		p.ID, p.CategoryID, p.Name, p.Description, p.Price, p.Duration, p.IsActive,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if apperr.IsForeignKeyViolation(err) {
		return fmt.Errorf("category %s: %w", p.CategoryID, apperr.ErrNotFound)
	}
	return err
}

func (r *procedureRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Procedure, error) {
	p, err := scanProcedure(r.conn(ctx).QueryRow(ctx, procSelect+` WHERE s.id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("service %s: %w", id, err)
	}
	return p, nil
}

func (r *procedureRepoPG) Update(ctx context.Context, p *Procedure) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE services SET category_id=$2, name=$3, description=$4, price=$5, duration=$6, is_active=$7,
			updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.CategoryID, p.Name, p.Description, p.Price, p.Duration, p.IsActive,
	).Scan(&p.UpdatedAt)
	if apperr.IsForeignKeyViolation(err) {
		return fmt.Errorf("category %s: %w", p.CategoryID, apperr.ErrNotFound)
	}
	return apperr.FromPG(err)
}

func (r *procedureRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM services WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("service %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (r *procedureRepoPG) List(ctx context.Context, categoryID *uuid.UUID, activeOnly bool) ([]*Procedure, error) {
	q := procSelect + ` WHERE TRUE`
	args := []interface{}{}
	if categoryID != nil {
		args = append(args, *categoryID)
		q += fmt.Sprintf(` AND s.category_id = $%d`, len(args))
	}
	if activeOnly {
		q += ` AND s.is_active`
	}
	rows, err := r.conn(ctx).Query(ctx, q+` ORDER BY s.name`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Procedure
	for rows.Next() {
		p, err := scanProcedure(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}
