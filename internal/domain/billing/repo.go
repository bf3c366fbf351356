package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type BillRepository interface {
	// Create inserts b unless its treatment already has a bill, and reports
	// whether the row was inserted.
	Create(ctx context.Context, b *Bill) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Bill, error)
	// GetByIDForUpdate locks the bill row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Bill, error)
	GetByTreatment(ctx context.Context, treatmentID string) (*Bill, error)
	GetByTreatmentForUpdate(ctx context.Context, treatmentID string) (*Bill, error)
	Update(ctx context.Context, b *Bill) error
	List(ctx context.Context, search string, limit, offset int) ([]*Bill, int, error)
}

type ReceiptRepository interface {
	Create(ctx context.Context, r *Receipt) error
	GetByID(ctx context.Context, id uuid.UUID) (*Receipt, error)
	ListByTreatment(ctx context.Context, treatmentID string) ([]*Receipt, error)
	// ListBetween returns receipts dated in [from, to), oldest first.
	ListBetween(ctx context.Context, from, to time.Time) ([]*Receipt, error)
}

// PaidAmountPropagator mirrors a bill's paid amount onto every treatment
// record sharing its treatment_id.
type PaidAmountPropagator interface {
	SetPaidAmountByTreatment(ctx context.Context, treatmentID string, paid int64) error
}

// SpendSource totals material import spend over a period.
type SpendSource interface {
	SumImports(ctx context.Context, from, to time.Time) (int64, int, error)
}
