package billing

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

// =========== Bill Repository ===========

type billRepoPG struct{ pool *pgxpool.Pool }

func NewBillRepoPG(pool *pgxpool.Pool) BillRepository { return &billRepoPG{pool: pool} }

func (r *billRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const billCols = `id, patient_id, treatment_id, record_id, total_amount, paid_amount, remaining_amount,
	status, note, created_by, created_at, updated_at`

func scanBill(row pgx.Row) (*Bill, error) {
	var b Bill
	err := row.Scan(&b.ID, &b.PatientID, &b.TreatmentID, &b.RecordID, &b.TotalAmount, &b.PaidAmount,
		&b.RemainingAmount, &b.Status, &b.Note, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, apperr.FromPG(err)
	}
	return &b, nil
}

func (r *billRepoPG) Create(ctx context.Context, b *Bill) (bool, error) {
	b.ID = uuid.New()
	b.Recompute()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO bills (id, patient_id, treatment_id, record_id, total_amount, paid_amount,
			remaining_amount, status, note, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (treatment_id) DO NOTHING
		RETURNING created_at, updated_at`,
		b.ID, b.PatientID, b.TreatmentID, b.RecordID, b.TotalAmount, b.PaidAmount,
		b.RemainingAmount, b.Status, b.Note, b.CreatedBy,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		b.ID = uuid.Nil
		return false, nil
	}
	if err != nil {
		return false, apperr.FromPG(err)
	}
	return true, nil
}

func (r *billRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Bill, error) {
	return scanBill(r.conn(ctx).QueryRow(ctx, `SELECT `+billCols+` FROM bills WHERE id = $1`, id))
}

func (r *billRepoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Bill, error) {
	return scanBill(r.conn(ctx).QueryRow(ctx, `SELECT `+billCols+` FROM bills WHERE id = $1 FOR UPDATE`, id))
}

func (r *billRepoPG) GetByTreatment(ctx context.Context, treatmentID string) (*Bill, error) {
	return scanBill(r.conn(ctx).QueryRow(ctx, `SELECT `+billCols+` FROM bills WHERE treatment_id = $1`, treatmentID))
}

func (r *billRepoPG) GetByTreatmentForUpdate(ctx context.Context, treatmentID string) (*Bill, error) {
	return scanBill(r.conn(ctx).QueryRow(ctx,
		`SELECT `+billCols+` FROM bills WHERE treatment_id = $1 FOR UPDATE`, treatmentID))
}

func (r *billRepoPG) Update(ctx context.Context, b *Bill) error {
	b.Recompute()
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE bills SET total_amount=$2, paid_amount=$3, remaining_amount=$4, status=$5, note=$6, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		b.ID, b.TotalAmount, b.PaidAmount, b.RemainingAmount, b.Status, b.Note,
	).Scan(&b.UpdatedAt)
	return apperr.FromPG(err)
}

func (r *billRepoPG) List(ctx context.Context, search string, limit, offset int) ([]*Bill, int, error) {
	where := ""
	args := []interface{}{}
	if search != "" {
		where = ` WHERE treatment_id ILIKE $1`
		args = append(args, "%"+search+"%")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM bills`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		fmt.Sprintf(`SELECT %s FROM bills%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, billCols, where, n+1, n+2),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, b)
	}
	return items, total, rows.Err()
}

// =========== Receipt Repository ===========

type receiptRepoPG struct{ pool *pgxpool.Pool }

func NewReceiptRepoPG(pool *pgxpool.Pool) ReceiptRepository { return &receiptRepoPG{pool: pool} }

func (r *receiptRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const receiptCols = `id, bill_id, patient_id, treatment_id, amount, payment_method, note, receipt_date, created_by, created_at`

func scanReceipt(row pgx.Row) (*Receipt, error) {
	var rc Receipt
	err := row.Scan(&rc.ID, &rc.BillID, &rc.PatientID, &rc.TreatmentID, &rc.Amount, &rc.PaymentMethod,
		&rc.Note, &rc.ReceiptDate, &rc.CreatedBy, &rc.CreatedAt)
	if err != nil {
		return nil, apperr.FromPG(err)
	}
	return &rc, nil
}

func (r *receiptRepoPG) Create(ctx context.Context, rc *Receipt) error {
	rc.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO receipts (id, bill_id, patient_id, treatment_id, amount, payment_method, note, receipt_date, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at`,
		rc.ID, rc.BillID, rc.PatientID, rc.TreatmentID, rc.Amount, rc.PaymentMethod, rc.Note, rc.ReceiptDate, rc.CreatedBy,
	).Scan(&rc.CreatedAt)
}

func (r *receiptRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Receipt, error) {
	return scanReceipt(r.conn(ctx).QueryRow(ctx, `SELECT `+receiptCols+` FROM receipts WHERE id = $1`, id))
}

func (r *receiptRepoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*Receipt, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Receipt
	for rows.Next() {
		rc, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rc)
	}
	return items, rows.Err()
}

func (r *receiptRepoPG) ListByTreatment(ctx context.Context, treatmentID string) ([]*Receipt, error) {
	return r.query(ctx, `SELECT `+receiptCols+` FROM receipts WHERE treatment_id = $1 ORDER BY created_at DESC`, treatmentID)
}

func (r *receiptRepoPG) ListBetween(ctx context.Context, from, to time.Time) ([]*Receipt, error) {
	return r.query(ctx, `SELECT `+receiptCols+` FROM receipts
		WHERE receipt_date >= $1 AND receipt_date < $2 ORDER BY receipt_date`, from, to)
}
