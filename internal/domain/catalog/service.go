package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
)

type Service struct {
	categories CategoryRepository
	procedures ProcedureRepository
	log        zerolog.Logger
}

func NewService(categories CategoryRepository, procedures ProcedureRepository, logger zerolog.Logger) *Service {
	return &Service{
		categories: categories,
		procedures: procedures,
		log:        logger.With().Str("component", "catalog").Logger(),
	}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", apperr.ErrValidation, fmt.Sprintf(format, args...))
}

// -- Categories --

func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (*Category, error) {
	c := &Category{Name: strings.TrimSpace(in.Name), IsActive: true}
	if c.Name == "" {
		return nil, invalid("name is required")
	}
	if in.Description != nil {
		c.Description = strings.TrimSpace(*in.Description)
	}
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}
	if err := s.categories.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) GetCategory(ctx context.Context, id uuid.UUID) (*Category, error) {
	return s.categories.GetByID(ctx, id)
}

// ListCategories returns every category, active or not.
func (s *Service) ListCategories(ctx context.Context) ([]*Category, error) {
	return s.categories.List(ctx, false)
}

// UpdateCategory changes only what in sets. An empty name keeps the current one.
func (s *Service) UpdateCategory(ctx context.Context, id uuid.UUID, in CategoryInput) (*Category, error) {
	c, err := s.categories.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		c.Name = name
	}
	if in.Description != nil {
		c.Description = strings.TrimSpace(*in.Description)
	}
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}
	if err := s.categories.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteCategory refuses while any procedure is filed under the category.
func (s *Service) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	if _, err := s.categories.GetByID(ctx, id); err != nil {
		return err
	}
	n, err := s.categories.CountProcedures(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: category has %d services", apperr.ErrReferentialBlock, n)
	}
	if err := s.categories.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("category_id", id.String()).Msg("category deleted")
	return nil
}

// PriceList groups the active procedures under their active categories.
func (s *Service) PriceList(ctx context.Context) ([]CategoryWithServices, error) {
	cats, err := s.categories.List(ctx, true)
	if err != nil {
		return nil, err
	}
	procs, err := s.procedures.List(ctx, nil, true)
	if err != nil {
		return nil, err
	}
	byCategory := make(map[uuid.UUID][]*Procedure, len(cats))
	for _, p := range procs {
		byCategory[p.CategoryID] = append(byCategory[p.CategoryID], p)
	}
	out := make([]CategoryWithServices, 0, len(cats))
	for _, c := range cats {
		services := byCategory[c.ID]
		if services == nil {
			services = []*Procedure{}
		}
		out = append(out, CategoryWithServices{Category: c, Services: services})
	}
	return out, nil
}

// -- Procedures --

func validateProcedure(p *Procedure) error {
	switch {
	case p.Name == "":
		return invalid("name is required")
	case p.CategoryID == uuid.Nil:
		return invalid("category_id is required")
	case p.Price < 0:
		return invalid("price must not be negative")
	case p.Duration <= 0:
		return invalid("duration must be positive")
	}
	return nil
}

func (s *Service) CreateProcedure(ctx context.Context, in CreateProcedureInput) (*Procedure, error) {
	p := &Procedure{
		CategoryID:  in.CategoryID,
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Price:       in.Price,
		Duration:    in.Duration,
		IsActive:    true,
	}
	if p.Duration == 0 {
		p.Duration = DefaultDuration
	}
	if err := validateProcedure(p); err != nil {
		return nil, err
	}
	cat, err := s.categories.GetByID(ctx, p.CategoryID)
	if err != nil {
		return nil, err
	}
	if err := s.procedures.Create(ctx, p); err != nil {
		return nil, err
	}
	p.Category = &CategoryRef{ID: cat.ID, Name: cat.Name}
	return p, nil
}

func (s *Service) GetProcedure(ctx context.Context, id uuid.UUID) (*Procedure, error) {
	return s.procedures.GetByID(ctx, id)
}

// ListProcedures returns the active procedures, optionally of one category.
func (s *Service) ListProcedures(ctx context.Context, categoryID *uuid.UUID) ([]*Procedure, error) {
	if categoryID != nil {
		if _, err := s.categories.GetByID(ctx, *categoryID); err != nil {
			return nil, err
		}
	}
	return s.procedures.List(ctx, categoryID, true)
}

func (s *Service) UpdateProcedure(ctx context.Context, id uuid.UUID, in UpdateProcedureInput) (*Procedure, error) {
	p, err := s.procedures.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.CategoryID != nil && *in.CategoryID != p.CategoryID {
		cat, err := s.categories.GetByID(ctx, *in.CategoryID)
		if err != nil {
			return nil, err
		}
		p.CategoryID = cat.ID
		p.Category = &CategoryRef{ID: cat.ID, Name: cat.Name}
	}
	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		p.Description = strings.TrimSpace(*in.Description)
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.Duration != nil {
		p.Duration = *in.Duration
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	if err := validateProcedure(p); err != nil {
		return nil, err
	}
	if err := s.procedures.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// DeleteProcedure removes a procedure. Treatment records keep their copied
// name and price, so past visits are unaffected.
func (s *Service) DeleteProcedure(ctx context.Context, id uuid.UUID) error {
	if err := s.procedures.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("service_id", id.String()).Msg("service deleted")
	return nil
}

// ServiceName resolves a treatment line item's service_id. It returns
// apperr.ErrNotFound for an unknown id.
func (s *Service) ServiceName(ctx context.Context, id uuid.UUID) (string, error) {
	p, err := s.procedures.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return p.Name, nil
}
