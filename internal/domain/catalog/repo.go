package catalog

import (
	"context"

	"github.com/google/uuid"
)

type CategoryRepository interface {
	Create(ctx context.Context, c *Category) error
	GetByID(ctx context.Context, id uuid.UUID) (*Category, error)
	Update(ctx context.Context, c *Category) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, activeOnly bool) ([]*Category, error)
	// CountProcedures counts procedures filed under the category, active or not.
	CountProcedures(ctx context.Context, id uuid.UUID) (int, error)
}

type ProcedureRepository interface {
	Create(ctx context.Context, p *Procedure) error
	GetByID(ctx context.Context, id uuid.UUID) (*Procedure, error)
	Update(ctx context.Context, p *Procedure) error
	Delete(ctx context.Context, id uuid.UUID) error
	// List returns procedures ordered by name. A nil categoryID lists every
	// category.
	List(ctx context.Context, categoryID *uuid.UUID, activeOnly bool) ([]*Procedure, error)
}
