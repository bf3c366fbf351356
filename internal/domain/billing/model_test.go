package billing

import "testing"

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		total, paid int64
		want        BillStatus
	}{
		{1000, 0, StatusUnpaid},
		{1000, 1, StatusPartiallyPaid},
		{1000, 999, StatusPartiallyPaid},
		{1000, 1000, StatusPaid},
		{1000, 1200, StatusPaid},
		{0, 0, StatusUnpaid},
	}
	for _, tt := range tests {
		if got := DeriveStatus(tt.total, tt.paid); got != tt.want {
			t.Errorf("DeriveStatus(%d, %d) = %s, want %s", tt.total, tt.paid, got, tt.want)
		}
	}
}

func TestBill_Recompute(t *testing.T) {
	b := &Bill{TotalAmount: 1000, PaidAmount: 400, RemainingAmount: 123, Status: StatusPaid}
	b.Recompute()
	if b.RemainingAmount != 600 {
		t.Errorf("expected remaining 600, got %d", b.RemainingAmount)
	}
	if b.Status != StatusPartiallyPaid {
		t.Errorf("expected partially_paid, got %s", b.Status)
	}

	b.PaidAmount = 1000
	b.Recompute()
	if b.RemainingAmount != 0 || b.Status != StatusPaid {
		t.Errorf("expected paid with 0 remaining, got %s / %d", b.Status, b.RemainingAmount)
	}
}

func TestPaymentMethod_Valid(t *testing.T) {
	for _, m := range []PaymentMethod{PaymentCash, PaymentBankTransfer, PaymentCard} {
		if !m.Valid() {
			t.Errorf("expected %s to be valid", m)
		}
	}
	if PaymentMethod("cheque").Valid() {
		t.Error("expected cheque to be invalid")
	}
}
