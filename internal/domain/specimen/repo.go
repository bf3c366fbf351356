package specimen

import (
	"context"

	"github.com/google/uuid"
)

type LabRepository interface {
	Create(ctx context.Context, l *Lab) error
	GetByID(ctx context.Context, id uuid.UUID) (*Lab, error)
	Update(ctx context.Context, l *Lab) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, search string, limit, offset int) ([]*Lab, int, error)
	ListActive(ctx context.Context) ([]*Lab, error)
}

type SpecimenRepository interface {
	Create(ctx context.Context, s *Specimen) error
	GetByID(ctx context.Context, id uuid.UUID) (*Specimen, error)
	// GetByIDForUpdate locks the row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Specimen, error)
	Update(ctx context.Context, s *Specimen) error
	// Delete returns apperr.ErrNotFound when no row was removed.
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, search string, limit, offset int) ([]*Specimen, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Specimen, error)
	ListByLab(ctx context.Context, labID uuid.UUID, statuses []Status) ([]*Specimen, error)
	CountByLab(ctx context.Context, labID uuid.UUID) (int, error)
}
