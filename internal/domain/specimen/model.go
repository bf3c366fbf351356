package specimen

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/pkg/money"
)

// Lab is an outside dental laboratory that specimens are sent to.
type Lab struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Phone         string    `json:"phone"`
	Email         string    `json:"email"`
	Address       string    `json:"address"`
	ContactPerson string    `json:"contact_person"`
	Description   string    `json:"description"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Status string

const (
	StatusPreparing    Status = "preparing"
	StatusSentToLab    Status = "sent_to_lab"
	StatusLabReceived  Status = "lab_received"
	StatusLabCompleted Status = "lab_completed"
	StatusReturned     Status = "returned"
	StatusUsed         Status = "used"
)

var statusRank = map[Status]int{
	StatusPreparing:    0,
	StatusSentToLab:    1,
	StatusLabReceived:  2,
	StatusLabCompleted: 3,
	StatusReturned:     4,
	StatusUsed:         5,
}

func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Before reports whether s comes earlier than o in the lab round trip.
func (s Status) Before(o Status) bool {
	return statusRank[s] < statusRank[o]
}

// Queue selects the specimens a lab works on.
type Queue string

const (
	// QueuePrepare holds specimens still on their way to the lab.
	QueuePrepare Queue = "prepare"
	// QueueReceive holds specimens the lab has taken in but the clinic has not used.
	QueueReceive Queue = "receive"
)

func (q Queue) Statuses() ([]Status, error) {
	switch q {
	case QueuePrepare:
		return []Status{StatusPreparing, StatusSentToLab}, nil
	case QueueReceive:
		return []Status{StatusLabReceived, StatusLabCompleted, StatusReturned}, nil
	}
	return nil, fmt.Errorf("%w: queue %q is unknown", apperr.ErrValidation, q)
}

// Specimen is a prosthesis or impression tracked through an outside lab.
type Specimen struct {
	ID           uuid.UUID  `json:"id"`
	PatientID    uuid.UUID  `json:"patient_id"`
	RecordID     *uuid.UUID `json:"record_id,omitempty"`
	LabID        *uuid.UUID `json:"lab_id,omitempty"`
	Name         string     `json:"name"`
	Type         string     `json:"type"`
	Description  string     `json:"description"`
	ToothNumber  string     `json:"tooth_number"`
	Quantity     int64      `json:"quantity"`
	Price        int64      `json:"price"`
	TotalPrice   int64      `json:"total_price"`
	Status       Status     `json:"status"`
	SendDate     *time.Time `json:"send_date,omitempty"`
	ReceiveDate  *time.Time `json:"receive_date,omitempty"`
	ExpectedDate *time.Time `json:"expected_date,omitempty"`
	UsedDate     *time.Time `json:"used_date,omitempty"`
	Report       string     `json:"report"`
	Images       []string   `json:"images"`
	Note         string     `json:"note"`
	CreatedBy    *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LabName      string     `json:"lab_name,omitempty"`
	PatientName  string     `json:"patient_name,omitempty"`
}

// Recompute sets TotalPrice to Quantity × Price.
func (s *Specimen) Recompute() error {
	total, err := money.Mul(s.Quantity, s.Price)
	if err != nil {
		return fmt.Errorf("%w: specimen total price: %v", apperr.ErrValidation, err)
	}
	s.TotalPrice = total
	return nil
}

type LabInput struct {
	Name          string  `json:"name"`
	Phone         string  `json:"phone"`
	Email         *string `json:"email"`
	Address       *string `json:"address"`
	ContactPerson *string `json:"contact_person"`
	Description   *string `json:"description"`
	IsActive      *bool   `json:"is_active"`
}

type CreateInput struct {
	PatientID    uuid.UUID  `json:"patient_id"`
	RecordID     *uuid.UUID `json:"record_id"`
	LabID        *uuid.UUID `json:"lab_id"`
	Name         string     `json:"name"`
	Type         string     `json:"type"`
	Description  string     `json:"description"`
	ToothNumber  string     `json:"tooth_number"`
	Quantity     int64      `json:"quantity"`
	Price        int64      `json:"price"`
	ExpectedDate *time.Time `json:"expected_date"`
	Note         string     `json:"note"`
	Images       []string   `json:"images"`
}

type UpdateInput struct {
	LabID        *uuid.UUID `json:"lab_id"`
	Name         *string    `json:"name"`
	Type         *string    `json:"type"`
	Description  *string    `json:"description"`
	ToothNumber  *string    `json:"tooth_number"`
	Quantity     *int64     `json:"quantity"`
	Price        *int64     `json:"price"`
	ExpectedDate *time.Time `json:"expected_date"`
	Note         *string    `json:"note"`
	Images       *[]string  `json:"images"`
}
