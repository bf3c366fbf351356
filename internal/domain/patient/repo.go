package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, search string, limit, offset int) ([]*Patient, int, error)
}

// RecordCounter reports how many treatment records reference a patient.
type RecordCounter interface {
	CountByPatient(ctx context.Context, patientID uuid.UUID) (int, error)
}
