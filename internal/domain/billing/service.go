package billing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/clock"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/telemetry"
	"github.com/clinic/clinic/pkg/money"
	"github.com/clinic/clinic/pkg/pagination"
	"github.com/clinic/clinic/pkg/sheet"
)

type Service struct {
	bills      BillRepository
	receipts   ReceiptRepository
	tx         db.TxRunner
	clock      clock.Clock
	propagator PaidAmountPropagator
	spend      SpendSource
	metrics    *telemetry.Metrics
	log        zerolog.Logger
}

func NewService(bills BillRepository, receipts ReceiptRepository, tx db.TxRunner, clk clock.Clock, logger zerolog.Logger) *Service {
	return &Service{
		bills:    bills,
		receipts: receipts,
		tx:       tx,
		clock:    clk,
		log:      logger.With().Str("component", "billing").Logger(),
	}
}

// SetPropagator attaches the treatment record store that mirrors paid amounts.
func (s *Service) SetPropagator(p PaidAmountPropagator) { s.propagator = p }

// SetSpendSource attaches the import journal used by expense reports.
func (s *Service) SetSpendSource(src SpendSource) { s.spend = src }

func (s *Service) SetMetrics(m *telemetry.Metrics) { s.metrics = m }

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", apperr.ErrValidation, fmt.Sprintf(format, args...))
}

func createdBy(actor uuid.UUID) *uuid.UUID {
	if actor == uuid.Nil {
		return nil
	}
	return &actor
}

// -- Bill cascades --

// Charge adds in.Amount to the bill for in.TreatmentID, creating the bill
// when the treatment has none yet.
func (s *Service) Charge(ctx context.Context, actor uuid.UUID, in ChargeInput) (*Bill, error) {
	if strings.TrimSpace(in.TreatmentID) == "" {
		return nil, invalid("treatment_id is required")
	}
	if in.Amount < 0 {
		return nil, invalid("amount must not be negative")
	}

	var out *Bill
	created := false
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		b, err := s.bills.GetByTreatmentForUpdate(ctx, in.TreatmentID)
		if errors.Is(err, apperr.ErrNotFound) {
			b = &Bill{
				PatientID:   in.PatientID,
				TreatmentID: in.TreatmentID,
				RecordID:    in.RecordID,
				TotalAmount: in.Amount,
				CreatedBy:   createdBy(actor),
			}
			created, err = s.bills.Create(ctx, b)
			if err != nil {
				return err
			}
			if created {
				out = b
				return nil
			}
			// Another first visit opened the bill since the read above.
			b, err = s.bills.GetByTreatmentForUpdate(ctx, in.TreatmentID)
		}
		if err != nil {
			return err
		}
		if in.PatientID != uuid.Nil && b.PatientID != in.PatientID {
			return invalid("treatment %s belongs to another patient", in.TreatmentID)
		}
		total, err := money.Add(b.TotalAmount, in.Amount)
		if err != nil {
			return invalid("bill total for %s: %v", in.TreatmentID, err)
		}
		b.TotalAmount = total
		if err := s.bills.Update(ctx, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.metrics.BillCreated()
		s.log.Info().Str("bill_id", out.ID.String()).Str("treatment_id", out.TreatmentID).
			Int64("total_amount", out.TotalAmount).Msg("bill created")
	} else {
		s.log.Info().Str("bill_id", out.ID.String()).Str("treatment_id", out.TreatmentID).
			Int64("charged", in.Amount).Int64("total_amount", out.TotalAmount).Msg("bill charged")
	}
	return out, nil
}

// Adjust moves the bill total for treatmentID by delta. A treatment without a
// bill is left alone. The total may not drop below zero or below what has
// already been paid.
func (s *Service) Adjust(ctx context.Context, treatmentID string, delta int64) (*Bill, error) {
	if delta == 0 {
		b, err := s.bills.GetByTreatment(ctx, treatmentID)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, nil
		}
		return b, err
	}

	var out *Bill
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		b, err := s.bills.GetByTreatmentForUpdate(ctx, treatmentID)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		total, err := money.Add(b.TotalAmount, delta)
		if err != nil {
			return invalid("bill total for %s: %v", treatmentID, err)
		}
		if total < 0 {
			return invalid("bill total for %s cannot go below zero", treatmentID)
		}
		if total < b.PaidAmount {
			return invalid("bill total for %s cannot go below the paid amount %d", treatmentID, b.PaidAmount)
		}
		b.TotalAmount = total
		if err := s.bills.Update(ctx, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		s.metrics.Rejected(err)
		return nil, err
	}
	if out != nil {
		s.log.Info().Str("bill_id", out.ID.String()).Str("treatment_id", treatmentID).
			Int64("delta", delta).Int64("total_amount", out.TotalAmount).Msg("bill adjusted")
	}
	return out, nil
}

// -- Receipts --

// CreateReceipt records a payment. The bill row is locked for the whole
// read-check-write so concurrent payments cannot overshoot the total.
func (s *Service) CreateReceipt(ctx context.Context, actor uuid.UUID, in CreateReceiptInput) (*Receipt, *Bill, error) {
	if in.BillID == uuid.Nil {
		return nil, nil, invalid("bill_id is required")
	}
	if in.Amount <= 0 {
		return nil, nil, invalid("amount must be positive")
	}
	if in.PaymentMethod == "" {
		in.PaymentMethod = PaymentCash
	}
	if !in.PaymentMethod.Valid() {
		return nil, nil, invalid("unknown payment_method %q", in.PaymentMethod)
	}

	var rc *Receipt
	var bill *Bill
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		b, err := s.bills.GetByIDForUpdate(ctx, in.BillID)
		if err != nil {
			return fmt.Errorf("bill %s: %w", in.BillID, err)
		}
		if in.TreatmentID != "" && in.TreatmentID != b.TreatmentID {
			return invalid("treatment_id %q does not match the bill", in.TreatmentID)
		}
		if in.PatientID != uuid.Nil && in.PatientID != b.PatientID {
			return invalid("patient_id does not match the bill")
		}
		if in.Amount > b.RemainingAmount {
			return fmt.Errorf("%w: amount %d, remaining %d", apperr.ErrOverpayment, in.Amount, b.RemainingAmount)
		}

		rc = &Receipt{
			BillID:        b.ID,
			PatientID:     b.PatientID,
			TreatmentID:   b.TreatmentID,
			Amount:        in.Amount,
			PaymentMethod: in.PaymentMethod,
			Note:          strings.TrimSpace(in.Note),
			ReceiptDate:   s.clock.Now(),
			CreatedBy:     createdBy(actor),
		}
		if err := s.receipts.Create(ctx, rc); err != nil {
			return err
		}

		b.PaidAmount += in.Amount
		if err := s.bills.Update(ctx, b); err != nil {
			return err
		}
		if s.propagator != nil {
			if err := s.propagator.SetPaidAmountByTreatment(ctx, b.TreatmentID, b.PaidAmount); err != nil {
				return fmt.Errorf("propagate paid amount: %w", err)
			}
		}
		bill = b
		return nil
	})
	if err != nil {
		s.metrics.Rejected(err)
		return nil, nil, err
	}

	s.metrics.Receipt(rc.Amount)
	s.log.Info().Str("receipt_id", rc.ID.String()).Str("bill_id", bill.ID.String()).
		Int64("amount", rc.Amount).Str("status", string(bill.Status)).Msg("payment received")
	return rc, bill, nil
}

func (s *Service) GetReceipt(ctx context.Context, id uuid.UUID) (*Receipt, error) {
	return s.receipts.GetByID(ctx, id)
}

func (s *Service) ListReceiptsByTreatment(ctx context.Context, treatmentID string) ([]*Receipt, error) {
	return s.receipts.ListByTreatment(ctx, treatmentID)
}

// -- Bill reads --

func (s *Service) GetBill(ctx context.Context, id uuid.UUID) (*Bill, error) {
	return s.bills.GetByID(ctx, id)
}

func (s *Service) GetBillByTreatment(ctx context.Context, treatmentID string) (*BillView, error) {
	b, err := s.bills.GetByTreatment(ctx, treatmentID)
	if err != nil {
		return nil, err
	}
	return &BillView{Bill: b, RemainingAmount: b.RemainingAmount}, nil
}

func (s *Service) ListBills(ctx context.Context, search string, p pagination.Params) ([]*Bill, int, error) {
	return s.bills.List(ctx, strings.TrimSpace(search), p.Size, p.Skip())
}

// -- Income reports --

// ParsePeriod resolves the report window from optional start and end query
// values. Both accept YYYY-MM-DD in the clinic time zone or RFC 3339; a bare
// end date is inclusive. Missing values default to the current month.
func (s *Service) ParsePeriod(startStr, endStr string) (time.Time, time.Time, error) {
	start, end := s.clock.MonthRange()
	if startStr != "" {
		t, _, err := s.parseDate(startStr)
		if err != nil {
			return time.Time{}, time.Time{}, invalid("invalid start %q", startStr)
		}
		start = t
	}
	if endStr != "" {
		t, dateOnly, err := s.parseDate(endStr)
		if err != nil {
			return time.Time{}, time.Time{}, invalid("invalid end %q", endStr)
		}
		if dateOnly {
			t = t.AddDate(0, 0, 1)
		}
		end = t
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, invalid("end must be after start")
	}
	return start, end, nil
}

func (s *Service) parseDate(v string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, false, nil
	}
	loc := s.clock.Loc
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation("2006-01-02", v, loc)
	return t, true, err
}

func (s *Service) Income(ctx context.Context, from, to time.Time) (*IncomeReport, error) {
	items, err := s.receipts.ListBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	report := &IncomeReport{From: from, To: to, Daily: []DailyIncome{}}
	byDay := map[string]*DailyIncome{}
	for _, rc := range items {
		day := s.clock.Day(rc.ReceiptDate)
		d, ok := byDay[day]
		if !ok {
			d = &DailyIncome{Date: day}
			byDay[day] = d
		}
		d.Amount += rc.Amount
		d.Count++
		report.TotalIncome += rc.Amount
		report.ReceiptCount++
	}
	for _, d := range byDay {
		report.Daily = append(report.Daily, *d)
	}
	sort.Slice(report.Daily, func(i, j int) bool { return report.Daily[i].Date < report.Daily[j].Date })
	return report, nil
}

func (s *Service) TotalSpend(ctx context.Context, from, to time.Time) (*SpendReport, error) {
	if s.spend == nil {
		return nil, errors.New("spend source not configured")
	}
	sum, n, err := s.spend.SumImports(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return &SpendReport{From: from, To: to, TotalSpend: sum, ImportCount: n}, nil
}

func (s *Service) NetIncome(ctx context.Context, from, to time.Time) (*NetIncomeReport, error) {
	income, err := s.Income(ctx, from, to)
	if err != nil {
		return nil, err
	}
	spend, err := s.TotalSpend(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return &NetIncomeReport{
		From:         from,
		To:           to,
		TotalIncome:  income.TotalIncome,
		TotalExpense: spend.TotalSpend,
		NetIncome:    income.TotalIncome - spend.TotalSpend,
	}, nil
}

// IncomeSheet writes the per-day income table as an xlsx workbook.
func (s *Service) IncomeSheet(ctx context.Context, w io.Writer, from, to time.Time) error {
	report, err := s.Income(ctx, from, to)
	if err != nil {
		return err
	}
	rows := make([][]interface{}, 0, len(report.Daily)+1)
	for _, d := range report.Daily {
		rows = append(rows, []interface{}{d.Date, d.Count, d.Amount})
	}
	rows = append(rows, []interface{}{"Total", report.ReceiptCount, report.TotalIncome})
	return sheet.Write(w, "Income", []interface{}{"Date", "Receipts", "Amount"}, rows)
}
