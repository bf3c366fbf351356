package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type MaterialRepository interface {
	Create(ctx context.Context, m *Material) error
	GetByID(ctx context.Context, id uuid.UUID) (*Material, error)
	// GetByIDForUpdate reads the row and holds a lock on it until the
	// surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Material, error)
	GetByName(ctx context.Context, name string) (*Material, error)
	Update(ctx context.Context, m *Material) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, search string, limit, offset int) ([]*Material, int, error)
	ListActive(ctx context.Context) ([]*Material, error)
	ListLowStock(ctx context.Context) ([]*Material, error)
	// AdjustQuantity adds delta to the stock in one conditional write. It
	// returns apperr.ErrInsufficientStock when the result would be negative.
	AdjustQuantity(ctx context.Context, id uuid.UUID, delta int64) (*Material, error)
	CountJournalEntries(ctx context.Context, id uuid.UUID) (int, error)
}

type ImportRepository interface {
	Create(ctx context.Context, i *Import) error
	GetByID(ctx context.Context, id uuid.UUID) (*Import, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Import, error)
	Update(ctx context.Context, i *Import) error
	// Delete returns apperr.ErrNotFound when no row was removed.
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Import, int, error)
	// SumBetween totals total_price of imports dated in [from, to).
	SumBetween(ctx context.Context, from, to time.Time) (int64, int, error)
}

type ExportRepository interface {
	Create(ctx context.Context, e *Export) error
	GetByID(ctx context.Context, id uuid.UUID) (*Export, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Export, error)
	Update(ctx context.Context, e *Export) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Export, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Export, error)
}
