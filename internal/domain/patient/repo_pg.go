package patient

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

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const cols = `id, full_name, phone, email, address, birthday, gender, identity_card,
	medical_history, allergies, note, is_active, created_at, updated_at`

func scan(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.FullName, &p.Phone, &p.Email, &p.Address, &p.Birthday, &p.Gender,
		&p.IdentityCard, &p.MedicalHistory, &p.Allergies, &p.Note, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, apperr.FromPG(err)
	}
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, full_name, phone, email, address, birthday, gender, identity_card,
			medical_history, allergies, note, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at, updated_at`,
		p.ID, p.FullName, p.Phone, p.Email, p.Address, p.Birthday, p.Gender, p.IdentityCard,
		p.MedicalHistory, p.Allergies, p.Note, p.IsActive,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scan(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM patients WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("patient %s: %w", id, err)
	}
	return p, nil
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patients SET full_name=$2, phone=$3, email=$4, address=$5, birthday=$6, gender=$7,
			identity_card=$8, medical_history=$9, allergies=$10, note=$11, is_active=$12, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.FullName, p.Phone, p.Email, p.Address, p.Birthday, p.Gender,
		p.IdentityCard, p.MedicalHistory, p.Allergies, p.Note, p.IsActive,
	).Scan(&p.UpdatedAt)
	return apperr.FromPG(err)
}

// Delete relies on the foreign keys from records, exports and bills as a last guard; a
// violation surfaces as ErrReferentialBlock.
func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if apperr.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: patient %s still has dependent records", apperr.ErrReferentialBlock, id)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("patient %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, search string, limit, offset int) ([]*Patient, int, error) {
	where := ""
	args := []interface{}{}
	if search != "" {
		where = ` WHERE full_name ILIKE $1 OR phone ILIKE $1 OR email ILIKE $1 OR identity_card ILIKE $1`
		args = append(args, "%"+search+"%")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		fmt.Sprintf(`SELECT %s FROM patients%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, cols, where, n+1, n+2),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}
