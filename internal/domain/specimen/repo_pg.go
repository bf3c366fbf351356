package specimen

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

// =========== Lab Repository ===========

type labRepoPG struct{ pool *pgxpool.Pool }

func NewLabRepoPG(pool *pgxpool.Pool) LabRepository { return &labRepoPG{pool: pool} }

func (r *labRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const labCols = `id, name, phone, email, address, contact_person, description, is_active, created_at, updated_at`

func scanLab(row pgx.Row) (*Lab, error) {
	var l Lab
	if err := row.Scan(&l.ID, &l.Name, &l.Phone, &l.Email, &l.Address, &l.ContactPerson,
		&l.Description, &l.IsActive, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, apperr.FromPG(err)
	}
	return &l, nil
}

func collectLabs(rows pgx.Rows) ([]*Lab, error) {
	defer rows.Close()
	var items []*Lab
	for rows.Next() {
		l, err := scanLab(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	return items, rows.Err()
}

func (r *labRepoPG) Create(ctx context.Context, l *Lab) error {
	l.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO labs (id, name, phone, email, address, contact_person, description, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		l.ID, l.Name, l.Phone, l.Email, l.Address, l.ContactPerson, l.Description, l.IsActive,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
}

func (r *labRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Lab, error) {
	l, err := scanLab(r.conn(ctx).QueryRow(ctx, `SELECT `+labCols+` FROM labs WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("lab %s: %w", id, err)
	}
	return l, nil
}

func (r *labRepoPG) Update(ctx context.Context, l *Lab) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE labs SET name=$2, phone=$3, email=$4, address=$5, contact_person=$6,
			description=$7, is_active=$8, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		l.ID, l.Name, l.Phone, l.Email, l.Address, l.ContactPerson, l.Description, l.IsActive,
	).Scan(&l.UpdatedAt)
	return apperr.FromPG(err)
}

// Delete relies on the specimens foreign key to refuse labs still in use.
func (r *labRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM labs WHERE id = $1`, id)
	if apperr.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: lab %s has specimens", apperr.ErrReferentialBlock, id)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("lab %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (r *labRepoPG) List(ctx context.Context, search string, limit, offset int) ([]*Lab, int, error) {
	where := ""
	args := []interface{}{}
	if search != "" {
		where = ` WHERE name ILIKE $1 OR phone ILIKE $1 OR email ILIKE $1`
		args = append(args, "%"+search+"%")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM labs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		fmt.Sprintf(`SELECT %s FROM labs%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, labCols, where, n+1, n+2),
		args...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectLabs(rows)
	return items, total, err
}

func (r *labRepoPG) ListActive(ctx context.Context) ([]*Lab, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+labCols+` FROM labs WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return collectLabs(rows)
}

// =========== Specimen Repository ===========

type specimenRepoPG struct{ pool *pgxpool.Pool }

func NewSpecimenRepoPG(pool *pgxpool.Pool) SpecimenRepository { return &specimenRepoPG{pool: pool} }

func (r *specimenRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const specSelect = `SELECT s.id, s.patient_id, s.record_id, s.lab_id, s.name, s.type, s.description,
	s.tooth_number, s.quantity, s.price, s.total_price, s.status, s.send_date, s.receive_date,
	s.expected_date, s.used_date, s.report, s.images, s.note, s.created_by, s.created_at, s.updated_at,
	COALESCE(l.name, ''), p.full_name
	FROM specimens s
	JOIN patients p ON p.id = s.patient_id
	LEFT JOIN labs l ON l.id = s.lab_id`

func scanSpecimen(row pgx.Row) (*Specimen, error) {
	var s Specimen
	if err := row.Scan(&s.ID, &s.PatientID, &s.RecordID, &s.LabID, &s.Name, &s.Type, &s.Description,
		&s.ToothNumber, &s.Quantity, &s.Price, &s.TotalPrice, &s.Status, &s.SendDate, &s.ReceiveDate,
		&s.ExpectedDate, &s.UsedDate, &s.Report, &s.Images, &s.Note, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt,
		&s.LabName, &s.PatientName); err != nil {
		return nil, apperr.FromPG(err)
	}
	return &s, nil
}

func collectSpecimens(rows pgx.Rows) ([]*Specimen, error) {
	defer rows.Close()
	var items []*Specimen
	for rows.Next() {
		s, err := scanSpecimen(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (r *specimenRepoPG) Create(ctx context.Context, s *Specimen) error {
	s.ID = uuid.New()
	if s.Images == nil {
		s.Images = []string{}
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO specimens (id, patient_id, record_id, lab_id, name, type, description, tooth_number,
			quantity, price, total_price, status, expected_date, images, note, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING created_at, updated_at`,
		s.ID, s.PatientID, s.RecordID, s.LabID, s.Name, s.Type, s.Description, s.ToothNumber,
		s.Quantity, s.Price, s.TotalPrice, s.Status, s.ExpectedDate, s.Images, s.Note, s.CreatedBy,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if apperr.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: unknown patient, record or lab", apperr.ErrValidation)
	}
	return err
}

func (r *specimenRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Specimen, error) {
	s, err := scanSpecimen(r.conn(ctx).QueryRow(ctx, specSelect+` WHERE s.id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("specimen %s: %w", id, err)
	}
	return s, nil
}

func (r *specimenRepoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Specimen, error) {
	s, err := scanSpecimen(r.conn(ctx).QueryRow(ctx, specSelect+` WHERE s.id = $1 FOR UPDATE OF s`, id))
	if err != nil {
		return nil, fmt.Errorf("specimen %s: %w", id, err)
	}
	return s, nil
}

func (r *specimenRepoPG) Update(ctx context.Context, s *Specimen) error {
	if s.Images == nil {
		s.Images = []string{}
	}
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE specimens SET lab_id=$2, name=$3, type=$4, description=$5, tooth_number=$6,
			quantity=$7, price=$8, total_price=$9, status=$10, send_date=$11, receive_date=$12,
			expected_date=$13, used_date=$14, report=$15, images=$16, note=$17, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		s.ID, s.LabID, s.Name, s.Type, s.Description, s.ToothNumber,
		s.Quantity, s.Price, s.TotalPrice, s.Status, s.SendDate, s.ReceiveDate,
		s.ExpectedDate, s.UsedDate, s.Report, s.Images, s.Note,
	).Scan(&s.UpdatedAt)
	if apperr.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: unknown lab", apperr.ErrValidation)
	}
	return apperr.FromPG(err)
}

func (r *specimenRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM specimens WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("specimen %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (r *specimenRepoPG) List(ctx context.Context, search string, limit, offset int) ([]*Specimen, int, error) {
	where := ""
	args := []interface{}{}
	if search != "" {
		where = ` WHERE s.name ILIKE $1 OR s.type ILIKE $1`
		args = append(args, "%"+search+"%")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM specimens s`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		fmt.Sprintf(`%s%s ORDER BY s.created_at DESC LIMIT $%d OFFSET $%d`, specSelect, where, n+1, n+2),
		args...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectSpecimens(rows)
	return items, total, err
}

func (r *specimenRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Specimen, error) {
	rows, err := r.conn(ctx).Query(ctx, specSelect+` WHERE s.patient_id = $1 ORDER BY s.created_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	return collectSpecimens(rows)
}

func (r *specimenRepoPG) ListByLab(ctx context.Context, labID uuid.UUID, statuses []Status) ([]*Specimen, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	rows, err := r.conn(ctx).Query(ctx,
		specSelect+` WHERE s.lab_id = $1 AND s.status = ANY($2) ORDER BY s.created_at DESC`, labID, names)
	if err != nil {
		return nil, err
	}
	return collectSpecimens(rows)
}

func (r *specimenRepoPG) CountByLab(ctx context.Context, labID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM specimens WHERE lab_id = $1`, labID).Scan(&n)
	return n, err
}
