package billing

import (
	"time"

	"github.com/google/uuid"
)

type BillStatus string

const (
	StatusUnpaid        BillStatus = "unpaid"
	StatusPartiallyPaid BillStatus = "partially_paid"
	StatusPaid          BillStatus = "paid"
)

// DeriveStatus maps the paid amount onto a bill status. Paying exactly the
// total yields StatusPaid.
func DeriveStatus(total, paid int64) BillStatus {
	switch {
	case paid == 0:
		return StatusUnpaid
	case paid < total:
		return StatusPartiallyPaid
	default:
		return StatusPaid
	}
}

// Bill is the running account for one treatment_id.
type Bill struct {
	ID              uuid.UUID  `json:"id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	TreatmentID     string     `json:"treatment_id"`
	RecordID        uuid.UUID  `json:"record_id"`
	TotalAmount     int64      `json:"total_amount"`
	PaidAmount      int64      `json:"paid_amount"`
	RemainingAmount int64      `json:"remaining_amount"`
	Status          BillStatus `json:"status"`
	Note            string     `json:"note"`
	CreatedBy       *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Recompute derives RemainingAmount and Status from the totals. Repositories
// call it before every write so the stored values are never stale.
func (b *Bill) Recompute() {
	b.RemainingAmount = b.TotalAmount - b.PaidAmount
	b.Status = DeriveStatus(b.TotalAmount, b.PaidAmount)
}

type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentCard         PaymentMethod = "card"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentBankTransfer, PaymentCard:
		return true
	}
	return false
}

// Receipt is one immutable payment against a bill.
type Receipt struct {
	ID            uuid.UUID     `json:"id"`
	BillID        uuid.UUID     `json:"bill_id"`
	PatientID     uuid.UUID     `json:"patient_id"`
	TreatmentID   string        `json:"treatment_id"`
	Amount        int64         `json:"amount"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Note          string        `json:"note"`
	ReceiptDate   time.Time     `json:"receipt_date"`
	CreatedBy     *uuid.UUID    `json:"created_by,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

type CreateReceiptInput struct {
	BillID        uuid.UUID     `json:"bill_id"`
	PatientID     uuid.UUID     `json:"patient_id"`
	TreatmentID   string        `json:"treatment_id"`
	Amount        int64         `json:"amount"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Note          string        `json:"note"`
}

// ChargeInput adds a treatment record's price to the bill for its treatment_id.
type ChargeInput struct {
	PatientID   uuid.UUID
	TreatmentID string
	RecordID    uuid.UUID
	Amount      int64
}

// BillView is the "new receipt" read: the bill and what is still owed.
type BillView struct {
	Bill            *Bill `json:"bill"`
	RemainingAmount int64 `json:"remaining_amount"`
}

type DailyIncome struct {
	Date   string `json:"date"`
	Amount int64  `json:"amount"`
	Count  int    `json:"count"`
}

type IncomeReport struct {
	From         time.Time     `json:"from"`
	To           time.Time     `json:"to"`
	TotalIncome  int64         `json:"total_income"`
	ReceiptCount int           `json:"receipt_count"`
	Daily        []DailyIncome `json:"daily"`
}

type NetIncomeReport struct {
	From         time.Time `json:"from"`
	To           time.Time `json:"to"`
	TotalIncome  int64     `json:"total_income"`
	TotalExpense int64     `json:"total_expense"`
	NetIncome    int64     `json:"net_income"`
}

type SpendReport struct {
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
	TotalSpend  int64     `json:"total_spend"`
	ImportCount int       `json:"import_count"`
}
