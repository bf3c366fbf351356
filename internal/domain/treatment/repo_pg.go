package treatment

import (
	"context"
	"encoding/json"
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

type recordRepoPG struct{ pool *pgxpool.Pool }

func NewRecordRepoPG(pool *pgxpool.Pool) RecordRepository { return &recordRepoPG{pool: pool} }

func (r *recordRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const recordCols = `id, patient_id, doctor_id, treatment_id, services, diagnosis, treatment_plan, note, images,
	total_price, paid_amount, status, visit_date, next_visit, created_by, created_at, updated_at`

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	var services []byte
	err := row.Scan(&rec.ID, &rec.PatientID, &rec.DoctorID, &rec.TreatmentID, &services, &rec.Diagnosis,
		&rec.TreatmentPlan, &rec.Note, &rec.Images, &rec.TotalPrice, &rec.PaidAmount, &rec.Status,
		&rec.VisitDate, &rec.NextVisit, &rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, apperr.FromPG(err)
	}
	if err := json.Unmarshal(services, &rec.Services); err != nil {
		return nil, fmt.Errorf("decode services of record %s: %w", rec.ID, err)
	}
	return &rec, nil
}

func encodeServices(items []ServiceItem) ([]byte, error) {
	if items == nil {
		items = []ServiceItem{}
	}
	return json.Marshal(items)
}

func (r *recordRepoPG) Create(ctx context.Context, rec *Record) error {
	rec.ID = uuid.New()
	services, err := encodeServices(rec.Services)
	if err != nil {
		return err
	}
	if rec.Images == nil {
		rec.Images = []string{}
	}
	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO treatment_records (id, patient_id, doctor_id, treatment_id, services, diagnosis, treatment_plan,
			note, images, total_price, paid_amount, status, visit_date, next_visit, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING created_at, updated_at`,
		rec.ID, rec.PatientID, rec.DoctorID, rec.TreatmentID, services, rec.Diagnosis, rec.TreatmentPlan,
		rec.Note, rec.Images, rec.TotalPrice, rec.PaidAmount, rec.Status, rec.VisitDate, rec.NextVisit, rec.CreatedBy,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if apperr.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: unknown patient %s", apperr.ErrValidation, rec.PatientID)
	}
	return err
}

func (r *recordRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	return scanRecord(r.conn(ctx).QueryRow(ctx, `SELECT `+recordCols+` FROM treatment_records WHERE id = $1`, id))
}

func (r *recordRepoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Record, error) {
	return scanRecord(r.conn(ctx).QueryRow(ctx, `SELECT `+recordCols+` FROM treatment_records WHERE id = $1 FOR UPDATE`, id))
}

func (r *recordRepoPG) Update(ctx context.Context, rec *Record) error {
	services, err := encodeServices(rec.Services)
	if err != nil {
		return err
	}
	if rec.Images == nil {
		rec.Images = []string{}
	}
	err = r.conn(ctx).QueryRow(ctx, `
		UPDATE treatment_records SET services=$2, diagnosis=$3, treatment_plan=$4, note=$5, images=$6,
			total_price=$7, status=$8, visit_date=$9, next_visit=$10, updated_at=NOW()
		WHERE id = $1
		RETURNING paid_amount, updated_at`,
		rec.ID, services, rec.Diagnosis, rec.TreatmentPlan, rec.Note, rec.Images,
		rec.TotalPrice, rec.Status, rec.VisitDate, rec.NextVisit,
	).Scan(&rec.PaidAmount, &rec.UpdatedAt)
	return apperr.FromPG(err)
}

func (r *recordRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM treatment_records WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *recordRepoPG) list(ctx context.Context, where string, arg interface{}) ([]*Record, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+recordCols+` FROM treatment_records WHERE `+where+` ORDER BY created_at DESC`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

func (r *recordRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Record, error) {
	return r.list(ctx, `patient_id = $1`, patientID)
}

func (r *recordRepoPG) ListByTreatment(ctx context.Context, treatmentID string) ([]*Record, error) {
	return r.list(ctx, `treatment_id = $1`, treatmentID)
}

func (r *recordRepoPG) CountByPatient(ctx context.Context, patientID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM treatment_records WHERE patient_id = $1`, patientID).Scan(&n)
	return n, err
}

func (r *recordRepoPG) SetPaidAmountByTreatment(ctx context.Context, treatmentID string, paid int64) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE treatment_records SET paid_amount = $2, updated_at = NOW() WHERE treatment_id = $1`, treatmentID, paid)
	return err
}
