package treatment

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/billing"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/clock"
	"github.com/clinic/clinic/internal/platform/db"
)

// Biller keeps the bill for a treatment_id in step with its records.
type Biller interface {
	Charge(ctx context.Context, actor uuid.UUID, in billing.ChargeInput) (*billing.Bill, error)
	Adjust(ctx context.Context, treatmentID string, delta int64) (*billing.Bill, error)
}

// Catalog names the procedures line items point at.
type Catalog interface {
	ServiceName(ctx context.Context, id uuid.UUID) (string, error)
}

type Service struct {
	records RecordRepository
	biller  Biller
	catalog Catalog
	tx      db.TxRunner
	clock   clock.Clock
	log     zerolog.Logger

	newTreatmentID func() string
}

func NewService(records RecordRepository, biller Biller, tx db.TxRunner, clk clock.Clock, logger zerolog.Logger) *Service {
	s := &Service{
		records: records,
		biller:  biller,
		tx:      tx,
		clock:   clk,
		log:     logger.With().Str("component", "treatment").Logger(),
	}
	s.newTreatmentID = s.generateTreatmentID
	return s
}

// SetCatalog enables service_id checks on line items. Without a catalog the
// item names are stored as sent.
func (s *Service) SetCatalog(c Catalog) {
	s.catalog = c
}

// nameServices rejects unknown service ids and fills blank item names from
// the catalog.
func (s *Service) nameServices(ctx context.Context, items []ServiceItem) error {
	if s.catalog == nil {
		return nil
	}
	for i := range items {
		name, err := s.catalog.ServiceName(ctx, items[i].ServiceID)
		if errors.Is(err, apperr.ErrNotFound) {
			return fmt.Errorf("%w: services[%d].service_id %s is unknown", apperr.ErrValidation, i, items[i].ServiceID)
		}
		if err != nil {
			return err
		}
		if items[i].Name == "" {
			items[i].Name = name
		}
	}
	return nil
}

// generateTreatmentID returns TRT followed by today's date and four random digits.
func (s *Service) generateTreatmentID() string {
	return fmt.Sprintf("TRT%s%04d", s.clock.Now().In(s.location()).Format("20060102"), rand.Intn(10000))
}

func (s *Service) location() *time.Location {
	if s.clock.Loc == nil {
		return time.UTC
	}
	return s.clock.Loc
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", apperr.ErrValidation, fmt.Sprintf(format, args...))
}

// CreateRecord stores a visit and charges its total to the treatment's bill,
// opening the bill on the first visit.
func (s *Service) CreateRecord(ctx context.Context, actor uuid.UUID, in CreateRecordInput) (*Record, error) {
	if in.PatientID == uuid.Nil {
		return nil, invalid("patient_id is required")
	}
	if in.DoctorID == uuid.Nil {
		in.DoctorID = actor
	}
	if in.DoctorID == uuid.Nil {
		return nil, invalid("doctor_id is required")
	}
	if err := normalizeServices(in.Services); err != nil {
		return nil, err
	}
	if err := s.nameServices(ctx, in.Services); err != nil {
		return nil, err
	}
	if in.Status == "" {
		in.Status = StatusInTreatment
	}
	if !in.Status.Valid() {
		return nil, invalid("status %q is unknown", in.Status)
	}

	rec := &Record{
		PatientID:     in.PatientID,
		DoctorID:      in.DoctorID,
		TreatmentID:   strings.TrimSpace(in.TreatmentID),
		Services:      in.Services,
		Diagnosis:     strings.TrimSpace(in.Diagnosis),
		TreatmentPlan: strings.TrimSpace(in.TreatmentPlan),
		Note:          strings.TrimSpace(in.Note),
		Images:        in.Images,
		Status:        in.Status,
		VisitDate:     s.clock.Now(),
		NextVisit:     in.NextVisit,
	}
	if rec.TreatmentID == "" {
		rec.TreatmentID = s.newTreatmentID()
	}
	if in.VisitDate != nil {
		rec.VisitDate = *in.VisitDate
	}
	if actor != uuid.Nil {
		rec.CreatedBy = &actor
	}
	if err := rec.Recompute(); err != nil {
		return nil, err
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.records.Create(ctx, rec); err != nil {
			return err
		}
		bill, err := s.biller.Charge(ctx, actor, billing.ChargeInput{
			PatientID:   rec.PatientID,
			TreatmentID: rec.TreatmentID,
			RecordID:    rec.ID,
			Amount:      rec.TotalPrice,
		})
		if err != nil {
			return err
		}
		if bill.PaidAmount != rec.PaidAmount {
			rec.PaidAmount = bill.PaidAmount
			return s.records.SetPaidAmountByTreatment(ctx, rec.TreatmentID, bill.PaidAmount)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("record_id", rec.ID.String()).Str("treatment_id", rec.TreatmentID).
		Int64("total_price", rec.TotalPrice).Msg("treatment record created")
	return rec, nil
}

// UpdateRecord applies field changes and moves the bill total by the change
// in price. The record row stays locked until commit, so a concurrent edit
// computes its delta from this one's total. PaidAmount is never written here;
// only receipts move it.
func (s *Service) UpdateRecord(ctx context.Context, id uuid.UUID, in UpdateRecordInput) (*Record, error) {
	var out *Record
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		rec, err := s.records.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		oldTotal := rec.TotalPrice

		if in.Services != nil {
			items := *in.Services
			if err := normalizeServices(items); err != nil {
				return err
			}
			if err := s.nameServices(ctx, items); err != nil {
				return err
			}
			rec.Services = items
		}
		if in.Diagnosis != nil {
			rec.Diagnosis = strings.TrimSpace(*in.Diagnosis)
		}
		if in.TreatmentPlan != nil {
			rec.TreatmentPlan = strings.TrimSpace(*in.TreatmentPlan)
		}
		if in.Note != nil {
			rec.Note = strings.TrimSpace(*in.Note)
		}
		if in.Images != nil {
			rec.Images = *in.Images
		}
		if in.Status != nil {
			if !in.Status.Valid() {
				return invalid("status %q is unknown", *in.Status)
			}
			rec.Status = *in.Status
		}
		if in.VisitDate != nil {
			rec.VisitDate = *in.VisitDate
		}
		if in.NextVisit != nil {
			rec.NextVisit = in.NextVisit
		}
		if err := rec.Recompute(); err != nil {
			return err
		}

		if _, err := s.biller.Adjust(ctx, rec.TreatmentID, rec.TotalPrice-oldTotal); err != nil {
			return err
		}
		if err := s.records.Update(ctx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteRecord removes a same-day record and takes its price off the bill.
func (s *Service) DeleteRecord(ctx context.Context, id uuid.UUID) error {
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		rec, err := s.records.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !s.clock.SameDay(rec.CreatedAt) {
			return fmt.Errorf("%w: record can only be deleted on the day it was created", apperr.ErrModificationWindowExpired)
		}
		if _, err := s.biller.Adjust(ctx, rec.TreatmentID, -rec.TotalPrice); err != nil {
			return err
		}
		return s.records.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("record_id", id.String()).Msg("treatment record deleted")
	return nil
}

func (s *Service) GetRecord(ctx context.Context, id uuid.UUID) (*Record, error) {
	return s.records.GetByID(ctx, id)
}

func (s *Service) ListRecordsByPatient(ctx context.Context, patientID uuid.UUID) ([]*Record, error) {
	return s.records.ListByPatient(ctx, patientID)
}

func (s *Service) ListRecordsByTreatment(ctx context.Context, treatmentID string) ([]*Record, error) {
	return s.records.ListByTreatment(ctx, treatmentID)
}

// CountByPatient reports how many records reference patientID.
func (s *Service) CountByPatient(ctx context.Context, patientID uuid.UUID) (int, error) {
	return s.records.CountByPatient(ctx, patientID)
}
