package specimen

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/clock"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/pkg/pagination"
)

type Service struct {
	labs      LabRepository
	specimens SpecimenRepository
	tx        db.TxRunner
	clock     clock.Clock
	log       zerolog.Logger
}

func NewService(labs LabRepository, specimens SpecimenRepository, tx db.TxRunner, clk clock.Clock, logger zerolog.Logger) *Service {
	return &Service{
		labs:      labs,
		specimens: specimens,
		tx:        tx,
		clock:     clk,
		log:       logger.With().Str("component", "specimen").Logger(),
	}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", apperr.ErrValidation, fmt.Sprintf(format, args...))
}

func trimmed(p *string) string {
	return strings.TrimSpace(*p)
}

// -- Labs --

func validateLab(l *Lab) error {
	if l.Name == "" {
		return invalid("name is required")
	}
	if l.Phone == "" {
		return invalid("phone is required")
	}
	if l.Email != "" {
		if _, err := mail.ParseAddress(l.Email); err != nil {
			return invalid("email %q is malformed", l.Email)
		}
	}
	return nil
}

func applyLabInput(l *Lab, in LabInput) {
	if name := strings.TrimSpace(in.Name); name != "" {
		l.Name = name
	}
	if phone := strings.TrimSpace(in.Phone); phone != "" {
		l.Phone = phone
	}
	if in.Email != nil {
		l.Email = trimmed(in.Email)
	}
	if in.Address != nil {
		l.Address = trimmed(in.Address)
	}
	if in.ContactPerson != nil {
		l.ContactPerson = trimmed(in.ContactPerson)
	}
	if in.Description != nil {
		l.Description = trimmed(in.Description)
	}
	if in.IsActive != nil {
		l.IsActive = *in.IsActive
	}
}

func (s *Service) CreateLab(ctx context.Context, in LabInput) (*Lab, error) {
	l := &Lab{IsActive: true}
	applyLabInput(l, in)
	if err := validateLab(l); err != nil {
		return nil, err
	}
	if err := s.labs.Create(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *Service) GetLab(ctx context.Context, id uuid.UUID) (*Lab, error) {
	return s.labs.GetByID(ctx, id)
}

// UpdateLab keeps the current name and phone when the input leaves them blank.
func (s *Service) UpdateLab(ctx context.Context, id uuid.UUID, in LabInput) (*Lab, error) {
	l, err := s.labs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	applyLabInput(l, in)
	if err := validateLab(l); err != nil {
		return nil, err
	}
	if err := s.labs.Update(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// DeleteLab refuses while any specimen names the lab. Deactivate it instead.
func (s *Service) DeleteLab(ctx context.Context, id uuid.UUID) error {
	if _, err := s.labs.GetByID(ctx, id); err != nil {
		return err
	}
	n, err := s.specimens.CountByLab(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: lab has %d specimens", apperr.ErrReferentialBlock, n)
	}
	return s.labs.Delete(ctx, id)
}

func (s *Service) ListLabs(ctx context.Context, search string, p pagination.Params) ([]*Lab, int, error) {
	return s.labs.List(ctx, strings.TrimSpace(search), p.Size, p.Skip())
}

func (s *Service) ListActiveLabs(ctx context.Context) ([]*Lab, error) {
	return s.labs.ListActive(ctx)
}

// LabQueue lists a lab's specimens that are still outgoing (QueuePrepare) or
// already taken in (QueueReceive).
func (s *Service) LabQueue(ctx context.Context, labID uuid.UUID, q Queue) ([]*Specimen, error) {
	statuses, err := q.Statuses()
	if err != nil {
		return nil, err
	}
	if _, err := s.labs.GetByID(ctx, labID); err != nil {
		return nil, err
	}
	return s.specimens.ListByLab(ctx, labID, statuses)
}

// -- Specimens --

func validateSpecimen(sp *Specimen) error {
	switch {
	case sp.Name == "":
		return invalid("name is required")
	case sp.Type == "":
		return invalid("type is required")
	case sp.Quantity < 1:
		return invalid("quantity must be at least 1")
	case sp.Price < 0:
		return invalid("price must not be negative")
	}
	return sp.Recompute()
}

// activeLab rejects unknown and deactivated labs.
func (s *Service) activeLab(ctx context.Context, id uuid.UUID) error {
	l, err := s.labs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !l.IsActive {
		return invalid("lab %s is inactive", l.Name)
	}
	return nil
}

func (s *Service) CreateSpecimen(ctx context.Context, actor uuid.UUID, in CreateInput) (*Specimen, error) {
	if in.PatientID == uuid.Nil {
		return nil, invalid("patient_id is required")
	}
	sp := &Specimen{
		PatientID:    in.PatientID,
		RecordID:     in.RecordID,
		LabID:        in.LabID,
		Name:         strings.TrimSpace(in.Name),
		Type:         strings.TrimSpace(in.Type),
		Description:  strings.TrimSpace(in.Description),
		ToothNumber:  strings.TrimSpace(in.ToothNumber),
		Quantity:     in.Quantity,
		Price:        in.Price,
		Status:       StatusPreparing,
		ExpectedDate: in.ExpectedDate,
		Images:       in.Images,
		Note:         strings.TrimSpace(in.Note),
	}
	if sp.Quantity == 0 {
		sp.Quantity = 1
	}
	if err := validateSpecimen(sp); err != nil {
		return nil, err
	}
	if sp.LabID != nil {
		if err := s.activeLab(ctx, *sp.LabID); err != nil {
			return nil, err
		}
	}
	if actor != uuid.Nil {
		sp.CreatedBy = &actor
	}
	if err := s.specimens.Create(ctx, sp); err != nil {
		return nil, err
	}
	s.log.Info().Str("specimen_id", sp.ID.String()).Str("patient_id", sp.PatientID.String()).
		Int64("total_price", sp.TotalPrice).Msg("specimen created")
	return sp, nil
}

func (s *Service) GetSpecimen(ctx context.Context, id uuid.UUID) (*Specimen, error) {
	return s.specimens.GetByID(ctx, id)
}

func (s *Service) ListSpecimens(ctx context.Context, search string, p pagination.Params) ([]*Specimen, int, error) {
	return s.specimens.List(ctx, strings.TrimSpace(search), p.Size, p.Skip())
}

func (s *Service) ListSpecimensByPatient(ctx context.Context, patientID uuid.UUID) ([]*Specimen, error) {
	return s.specimens.ListByPatient(ctx, patientID)
}

// UpdateSpecimen edits the descriptive fields and price. Status only moves
// through the lab transitions. The lab can change only before the specimen
// leaves the clinic, and a used specimen is frozen.
func (s *Service) UpdateSpecimen(ctx context.Context, id uuid.UUID, in UpdateInput) (*Specimen, error) {
	var out *Specimen
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		sp, err := s.specimens.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if sp.Status == StatusUsed {
			return invalid("specimen has already been used")
		}
		if in.LabID != nil && (sp.LabID == nil || *sp.LabID != *in.LabID) {
			if sp.Status != StatusPreparing {
				return invalid("lab cannot change once the specimen is %s", sp.Status)
			}
			if err := s.activeLab(ctx, *in.LabID); err != nil {
				return err
			}
			sp.LabID = in.LabID
		}
		if in.Name != nil {
			sp.Name = trimmed(in.Name)
		}
		if in.Type != nil {
			sp.Type = trimmed(in.Type)
		}
		if in.Description != nil {
			sp.Description = trimmed(in.Description)
		}
		if in.ToothNumber != nil {
			sp.ToothNumber = trimmed(in.ToothNumber)
		}
		if in.Quantity != nil {
			sp.Quantity = *in.Quantity
		}
		if in.Price != nil {
			sp.Price = *in.Price
		}
		if in.ExpectedDate != nil {
			sp.ExpectedDate = in.ExpectedDate
		}
		if in.Note != nil {
			sp.Note = trimmed(in.Note)
		}
		if in.Images != nil {
			sp.Images = *in.Images
		}
		if err := validateSpecimen(sp); err != nil {
			return err
		}
		if err := s.specimens.Update(ctx, sp); err != nil {
			return err
		}
		out = sp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteSpecimen removes a specimen that has not left the clinic yet.
func (s *Service) DeleteSpecimen(ctx context.Context, id uuid.UUID) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		sp, err := s.specimens.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if sp.Status != StatusPreparing {
			return invalid("specimen is %s and can no longer be deleted", sp.Status)
		}
		return s.specimens.Delete(ctx, id)
	})
}

// advance moves a specimen forward to status to. Moving sideways or back is
// rejected, so a replayed transition fails instead of overwriting its dates.
func (s *Service) advance(ctx context.Context, id uuid.UUID, to Status, apply func(sp *Specimen, now time.Time) error) (*Specimen, error) {
	var out *Specimen
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		sp, err := s.specimens.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !sp.Status.Before(to) {
			return invalid("specimen is %s and cannot move to %s", sp.Status, to)
		}
		if apply != nil {
			if err := apply(sp, s.clock.Now()); err != nil {
				return err
			}
		}
		from := sp.Status
		sp.Status = to
		if err := s.specimens.Update(ctx, sp); err != nil {
			return err
		}
		s.log.Info().Str("specimen_id", id.String()).Str("from", string(from)).Str("to", string(to)).
			Msg("specimen status changed")
		out = sp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Send hands the specimen to its lab.
func (s *Service) Send(ctx context.Context, id uuid.UUID) (*Specimen, error) {
	return s.advance(ctx, id, StatusSentToLab, func(sp *Specimen, now time.Time) error {
		if sp.LabID == nil {
			return invalid("specimen has no lab")
		}
		sp.SendDate = &now
		return nil
	})
}

// Receive records that the lab has taken the specimen in.
func (s *Service) Receive(ctx context.Context, id uuid.UUID) (*Specimen, error) {
	return s.advance(ctx, id, StatusLabReceived, func(sp *Specimen, now time.Time) error {
		if sp.LabID == nil {
			return invalid("specimen has no lab")
		}
		if sp.SendDate == nil {
			sp.SendDate = &now
		}
		sp.ReceiveDate = &now
		return nil
	})
}

// Report stores the lab's findings and marks its work complete.
func (s *Service) Report(ctx context.Context, id uuid.UUID, report string) (*Specimen, error) {
	report = strings.TrimSpace(report)
	if report == "" {
		return nil, invalid("report is required")
	}
	return s.advance(ctx, id, StatusLabCompleted, func(sp *Specimen, _ time.Time) error {
		if sp.Status.Before(StatusLabReceived) {
			return invalid("lab has not received the specimen")
		}
		sp.Report = report
		return nil
	})
}

// Deliver records the specimen coming back to the clinic.
func (s *Service) Deliver(ctx context.Context, id uuid.UUID) (*Specimen, error) {
	return s.advance(ctx, id, StatusReturned, func(sp *Specimen, _ time.Time) error {
		if sp.Status.Before(StatusLabReceived) {
			return invalid("lab has not received the specimen")
		}
		return nil
	})
}

// Use marks a returned specimen as fitted to the patient.
func (s *Service) Use(ctx context.Context, id uuid.UUID) (*Specimen, error) {
	return s.advance(ctx, id, StatusUsed, func(sp *Specimen, now time.Time) error {
		if sp.Status != StatusReturned {
			return invalid("specimen has not returned from the lab")
		}
		sp.UsedDate = &now
		return nil
	})
}
