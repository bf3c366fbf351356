package treatment

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/pkg/money"
)

type Status string

const (
	StatusInTreatment Status = "in_treatment"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusInTreatment, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// ServiceItem is one billed line of a visit.
type ServiceItem struct {
	ServiceID   uuid.UUID `json:"service_id"`
	Name        string    `json:"name,omitempty"`
	Quantity    int64     `json:"quantity"`
	Price       int64     `json:"price"`
	ToothNumber string    `json:"tooth_number,omitempty"`
	Status      Status    `json:"status"`
}

// Amount is Price times Quantity. It fails with apperr.ErrValidation when the
// product does not fit in an int64.
func (i ServiceItem) Amount() (int64, error) {
	amount, err := money.Mul(i.Price, i.Quantity)
	if err != nil {
		return 0, fmt.Errorf("%w: service %s amount: %v", apperr.ErrValidation, i.ServiceID, err)
	}
	return amount, nil
}

// Record is one clinical visit within a treatment course.
type Record struct {
	ID            uuid.UUID     `json:"id"`
	PatientID     uuid.UUID     `json:"patient_id"`
	DoctorID      uuid.UUID     `json:"doctor_id"`
	TreatmentID   string        `json:"treatment_id"`
	Services      []ServiceItem `json:"services"`
	Diagnosis     string        `json:"diagnosis"`
	TreatmentPlan string        `json:"treatment_plan"`
	Note          string        `json:"note"`
	Images        []string      `json:"images"`
	TotalPrice    int64         `json:"total_price"`
	PaidAmount    int64         `json:"paid_amount"`
	Status        Status        `json:"status"`
	VisitDate     time.Time     `json:"visit_date"`
	NextVisit     *time.Time    `json:"next_visit,omitempty"`
	CreatedBy     *uuid.UUID    `json:"created_by,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Recompute sets TotalPrice to the sum of the line items. TotalPrice is left
// unchanged when any amount or the sum overflows.
func (r *Record) Recompute() error {
	var total int64
	for _, item := range r.Services {
		amount, err := item.Amount()
		if err != nil {
			return err
		}
		if total, err = money.Add(total, amount); err != nil {
			return fmt.Errorf("%w: record total price: %v", apperr.ErrValidation, err)
		}
	}
	r.TotalPrice = total
	return nil
}

// normalizeServices fills defaults and validates each line item in place.
func normalizeServices(items []ServiceItem) error {
	for i := range items {
		item := &items[i]
		if item.ServiceID == uuid.Nil {
			return fmt.Errorf("%w: services[%d].service_id is required", apperr.ErrValidation, i)
		}
		if item.Quantity == 0 {
			item.Quantity = 1
		}
		if item.Quantity < 1 {
			return fmt.Errorf("%w: services[%d].quantity must be at least 1", apperr.ErrValidation, i)
		}
		if item.Price < 0 {
			return fmt.Errorf("%w: services[%d].price must not be negative", apperr.ErrValidation, i)
		}
		if item.Status == "" {
			item.Status = StatusInTreatment
		}
		if !item.Status.Valid() {
			return fmt.Errorf("%w: services[%d].status %q is unknown", apperr.ErrValidation, i, item.Status)
		}
	}
	return nil
}

type CreateRecordInput struct {
	PatientID     uuid.UUID     `json:"patient_id"`
	DoctorID      uuid.UUID     `json:"doctor_id"`
	TreatmentID   string        `json:"treatment_id"`
	Services      []ServiceItem `json:"services"`
	Diagnosis     string        `json:"diagnosis"`
	TreatmentPlan string        `json:"treatment_plan"`
	Note          string        `json:"note"`
	Images        []string      `json:"images"`
	Status        Status        `json:"status"`
	VisitDate     *time.Time    `json:"visit_date"`
	NextVisit     *time.Time    `json:"next_visit"`
}

type UpdateRecordInput struct {
	Services      *[]ServiceItem `json:"services"`
	Diagnosis     *string        `json:"diagnosis"`
	TreatmentPlan *string        `json:"treatment_plan"`
	Note          *string        `json:"note"`
	Images        *[]string      `json:"images"`
	Status        *Status        `json:"status"`
	VisitDate     *time.Time     `json:"visit_date"`
	NextVisit     *time.Time     `json:"next_visit"`
}
