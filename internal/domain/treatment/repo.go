package treatment

import (
	"context"

	"github.com/google/uuid"
)

type RecordRepository interface {
	Create(ctx context.Context, r *Record) error
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	// GetByIDForUpdate locks the record row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Record, error)
	// Update writes the editable fields and total_price. paid_amount is owned
	// by SetPaidAmountByTreatment.
	Update(ctx context.Context, r *Record) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Record, error)
	ListByTreatment(ctx context.Context, treatmentID string) ([]*Record, error)
	CountByPatient(ctx context.Context, patientID uuid.UUID) (int, error)
	// SetPaidAmountByTreatment assigns paid to every record of the treatment.
	SetPaidAmountByTreatment(ctx context.Context, treatmentID string, paid int64) error
}
