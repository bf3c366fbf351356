package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

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

// =========== Material Repository ===========

type materialRepoPG struct{ pool *pgxpool.Pool }

func NewMaterialRepoPG(pool *pgxpool.Pool) MaterialRepository { return &materialRepoPG{pool: pool} }

func (r *materialRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const matCols = `id, name, description, unit, quantity, min_quantity, price, supplier, is_active, created_at, updated_at`

func scanMaterial(row pgx.Row) (*Material, error) {
	var m Material
	err := row.Scan(&m.ID, &m.Name, &m.Description, &m.Unit, &m.Quantity, &m.MinQuantity,
		&m.Price, &m.Supplier, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, apperr.FromPG(err)
	}
	return &m, nil
}

func (r *materialRepoPG) Create(ctx context.Context, m *Material) error {
	m.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO materials (id, name, description, unit, quantity, min_quantity, price, supplier, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		m.ID, m.Name, m.Description, m.Unit, m.Quantity, m.MinQuantity, m.Price, m.Supplier, m.IsActive,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if apperr.IsUniqueViolation(err) {
		return fmt.Errorf("%w: material %q already exists", apperr.ErrValidation, m.Name)
	}
	return err
}

func (r *materialRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Material, error) {
	m, err := scanMaterial(r.conn(ctx).QueryRow(ctx, `SELECT `+matCols+` FROM materials WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("material %s: %w", id, err)
	}
	return m, nil
}

func (r *materialRepoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Material, error) {
	m, err := scanMaterial(r.conn(ctx).QueryRow(ctx, `SELECT `+matCols+` FROM materials WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("material %s: %w", id, err)
	}
	return m, nil
}

func (r *materialRepoPG) GetByName(ctx context.Context, name string) (*Material, error) {
	return scanMaterial(r.conn(ctx).QueryRow(ctx, `SELECT `+matCols+` FROM materials WHERE name = $1`, name))
}

func (r *materialRepoPG) Update(ctx context.Context, m *Material) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE materials SET name=$2, description=$3, unit=$4, quantity=$5, min_quantity=$6,
			price=$7, supplier=$8, is_active=$9, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		m.ID, m.Name, m.Description, m.Unit, m.Quantity, m.MinQuantity, m.Price, m.Supplier, m.IsActive,
	).Scan(&m.UpdatedAt)
	if apperr.IsUniqueViolation(err) {
		return fmt.Errorf("%w: material %q already exists", apperr.ErrValidation, m.Name)
	}
	return apperr.FromPG(err)
}

func (r *materialRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM materials WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("material %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (r *materialRepoPG) List(ctx context.Context, search string, limit, offset int) ([]*Material, int, error) {
	where := ""
	args := []interface{}{}
	if search != "" {
		where = ` WHERE name ILIKE $1 OR description ILIKE $1`
		args = append(args, "%"+search+"%")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM materials`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		fmt.Sprintf(`SELECT %s FROM materials%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, matCols, where, n+1, n+2),
		args...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectMaterials(rows)
	return items, total, err
}

func (r *materialRepoPG) ListActive(ctx context.Context) ([]*Material, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+matCols+` FROM materials WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return collectMaterials(rows)
}

func (r *materialRepoPG) ListLowStock(ctx context.Context) ([]*Material, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+matCols+` FROM materials WHERE is_active AND quantity < min_quantity ORDER BY quantity, name`)
	if err != nil {
		return nil, err
	}
	return collectMaterials(rows)
}

func collectMaterials(rows pgx.Rows) ([]*Material, error) {
	defer rows.Close()
	var items []*Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func (r *materialRepoPG) AdjustQuantity(ctx context.Context, id uuid.UUID, delta int64) (*Material, error) {
	m, err := scanMaterial(r.conn(ctx).QueryRow(ctx, `
		UPDATE materials SET quantity = quantity + $2, updated_at = NOW()
		WHERE id = $1 AND quantity + $2 >= 0
		RETURNING `+matCols, id, delta))
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	var have int64
	if err := r.conn(ctx).QueryRow(ctx, `SELECT quantity FROM materials WHERE id = $1`, id).Scan(&have); err != nil {
		return nil, fmt.Errorf("material %s: %w", id, apperr.FromPG(err))
	}
	return nil, fmt.Errorf("%w: material %s has %d, change of %d", apperr.ErrInsufficientStock, id, have, delta)
}

func (r *materialRepoPG) CountJournalEntries(ctx context.Context, id uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM material_imports WHERE material_id = $1)
		     + (SELECT COUNT(*) FROM material_exports WHERE material_id = $1)`, id).Scan(&n)
	return n, err
}

// =========== Import Repository ===========

type importRepoPG struct{ pool *pgxpool.Pool }

func NewImportRepoPG(pool *pgxpool.Pool) ImportRepository { return &importRepoPG{pool: pool} }

func (r *importRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const impSelect = `SELECT i.id, i.material_id, i.quantity, i.price, i.total_price, i.supplier, i.note,
	i.import_date, i.created_by, i.created_at, i.updated_at, m.name, m.unit
	FROM material_imports i JOIN materials m ON m.id = i.material_id`

func scanImport(row pgx.Row) (*Import, error) {
	var i Import
	ref := &MaterialRef{}
	err := row.Scan(&i.ID, &i.MaterialID, &i.Quantity, &i.Price, &i.TotalPrice, &i.Supplier, &i.Note,
		&i.ImportDate, &i.CreatedBy, &i.CreatedAt, &i.UpdatedAt, &ref.Name, &ref.Unit)
	if err != nil {
		return nil, apperr.FromPG(err)
	}
	ref.ID = i.MaterialID
	i.Material = ref
	return &i, nil
}

func (r *importRepoPG) Create(ctx context.Context, i *Import) error {
	i.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO material_imports (id, material_id, quantity, price, total_price, supplier, note, import_date, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		i.ID, i.MaterialID, i.Quantity, i.Price, i.TotalPrice, i.Supplier, i.Note, i.ImportDate, i.CreatedBy,
	).Scan(&i.CreatedAt, &i.UpdatedAt)
}

func (r *importRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Import, error) {
	i, err := scanImport(r.conn(ctx).QueryRow(ctx, impSelect+` WHERE i.id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", id, err)
	}
	return i, nil
}

// GetByIDForUpdate locks the import row, not the joined material.
func (r *importRepoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Import, error) {
	i, err := scanImport(r.conn(ctx).QueryRow(ctx, impSelect+` WHERE i.id = $1 FOR UPDATE OF i`, id))
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", id, err)
	}
	return i, nil
}

func (r *importRepoPG) Update(ctx context.Context, i *Import) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE material_imports SET quantity=$2, price=$3, total_price=$4, supplier=$5, note=$6,
			import_date=$7, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		i.ID, i.Quantity, i.Price, i.TotalPrice, i.Supplier, i.Note, i.ImportDate,
	).Scan(&i.UpdatedAt)
	return apperr.FromPG(err)
}

func (r *importRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM material_imports WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("import %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (r *importRepoPG) List(ctx context.Context, limit, offset int) ([]*Import, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM material_imports`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, impSelect+` ORDER BY i.created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Import
	for rows.Next() {
		i, err := scanImport(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, i)
	}
	return items, total, rows.Err()
}

func (r *importRepoPG) SumBetween(ctx context.Context, from, to time.Time) (int64, int, error) {
	var sum int64
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(total_price), 0), COUNT(*)
		FROM material_imports WHERE import_date >= $1 AND import_date < $2`, from, to).Scan(&sum, &n)
	return sum, n, err
}

// =========== Export Repository ===========

type exportRepoPG struct{ pool *pgxpool.Pool }

func NewExportRepoPG(pool *pgxpool.Pool) ExportRepository { return &exportRepoPG{pool: pool} }

func (r *exportRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const expSelect = `SELECT e.id, e.material_id, e.patient_id, e.record_id, e.quantity, e.price, e.total_price,
	e.note, e.export_date, e.created_by, e.created_at, e.updated_at, m.name, m.unit
	FROM material_exports e JOIN materials m ON m.id = e.material_id`

func scanExport(row pgx.Row) (*Export, error) {
	var e Export
	ref := &MaterialRef{}
	err := row.Scan(&e.ID, &e.MaterialID, &e.PatientID, &e.RecordID, &e.Quantity, &e.Price, &e.TotalPrice,
		&e.Note, &e.ExportDate, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt, &ref.Name, &ref.Unit)
	if err != nil {
		return nil, apperr.FromPG(err)
	}
	ref.ID = e.MaterialID
	e.Material = ref
	return &e, nil
}

func (r *exportRepoPG) Create(ctx context.Context, e *Export) error {
	e.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO material_exports (id, material_id, patient_id, record_id, quantity, price, total_price, note, export_date, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		e.ID, e.MaterialID, e.PatientID, e.RecordID, e.Quantity, e.Price, e.TotalPrice, e.Note, e.ExportDate, e.CreatedBy,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if apperr.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: unknown patient %s", apperr.ErrValidation, e.PatientID)
	}
	return err
}

func (r *exportRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Export, error) {
	e, err := scanExport(r.conn(ctx).QueryRow(ctx, expSelect+` WHERE e.id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", id, err)
	}
	return e, nil
}

func (r *exportRepoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Export, error) {
	e, err := scanExport(r.conn(ctx).QueryRow(ctx, expSelect+` WHERE e.id = $1 FOR UPDATE OF e`, id))
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", id, err)
	}
	return e, nil
}

func (r *exportRepoPG) Update(ctx context.Context, e *Export) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE material_exports SET quantity=$2, price=$3, total_price=$4, note=$5, export_date=$6, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		e.ID, e.Quantity, e.Price, e.TotalPrice, e.Note, e.ExportDate,
	).Scan(&e.UpdatedAt)
	return apperr.FromPG(err)
}

func (r *exportRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM material_exports WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("export %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (r *exportRepoPG) List(ctx context.Context, limit, offset int) ([]*Export, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM material_exports`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, expSelect+` ORDER BY e.created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectExports(rows)
	return items, total, err
}

func (r *exportRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Export, error) {
	rows, err := r.conn(ctx).Query(ctx, expSelect+` WHERE e.patient_id = $1 ORDER BY e.created_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	return collectExports(rows)
}

func collectExports(rows pgx.Rows) ([]*Export, error) {
	defer rows.Close()
	var items []*Export
	for rows.Next() {
		e, err := scanExport(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}
