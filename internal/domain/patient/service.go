package patient

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/pkg/pagination"
)

type Service struct {
	repo    Repository
	records RecordCounter
	log     zerolog.Logger
}

func NewService(repo Repository, records RecordCounter, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		records: records,
		log:     logger.With().Str("component", "patient").Logger(),
	}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", apperr.ErrValidation, fmt.Sprintf(format, args...))
}

// apply copies in onto p after trimming and validation.
func apply(p *Patient, in Input) error {
	p.FullName = strings.TrimSpace(in.FullName)
	if p.FullName == "" {
		return invalid("full_name is required")
	}
	p.Phone = strings.TrimSpace(in.Phone)
	p.Email = strings.TrimSpace(in.Email)
	if p.Email != "" {
		if _, err := mail.ParseAddress(p.Email); err != nil {
			return invalid("email %q is malformed", p.Email)
		}
	}
	p.Address = strings.TrimSpace(in.Address)
	p.Birthday = nil
	if b := strings.TrimSpace(in.Birthday); b != "" {
		t, err := time.Parse("2006-01-02", b)
		if err != nil {
			return invalid("birthday must be YYYY-MM-DD")
		}
		p.Birthday = &t
	}
	p.Gender = in.Gender
	if p.Gender == "" {
		p.Gender = GenderOther
	}
	if !p.Gender.Valid() {
		return invalid("gender %q is unknown", p.Gender)
	}
	p.IdentityCard = strings.TrimSpace(in.IdentityCard)
	p.MedicalHistory = strings.TrimSpace(in.MedicalHistory)
	p.Allergies = strings.TrimSpace(in.Allergies)
	p.Note = strings.TrimSpace(in.Note)
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	return nil
}

func (s *Service) CreatePatient(ctx context.Context, in Input) (*Patient, error) {
	p := &Patient{IsActive: true}
	if err := apply(p, in); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, search string, p pagination.Params) ([]*Patient, int, error) {
	return s.repo.List(ctx, strings.TrimSpace(search), p.Size, p.Skip())
}

// UpdatePatient replaces the editable fields.
func (s *Service) UpdatePatient(ctx context.Context, id uuid.UUID, in Input) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := apply(p, in); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// DeletePatient refuses while treatment records still reference the patient.
func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}
	if s.records != nil {
		n, err := s.records.CountByPatient(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: patient has %d treatment records", apperr.ErrReferentialBlock, n)
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("patient_id", id.String()).Msg("patient deleted")
	return nil
}
