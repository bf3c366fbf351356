package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/telemetry"
)

func TestLedger_IncreaseDecrease(t *testing.T) {
	repo := newMockMaterialRepo()
	m := &Material{Name: "Gloves", Unit: "box", Quantity: 5, IsActive: true}
	_ = repo.Create(context.Background(), m)
	l := NewLedger(repo)

	got, err := l.IncreaseStock(context.Background(), m.ID, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Quantity != 8 {
		t.Errorf("expected 8, got %d", got.Quantity)
	}
	got, err = l.DecreaseStock(context.Background(), m.ID, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Quantity != 0 {
		t.Errorf("expected 0, got %d", got.Quantity)
	}
	if _, err := l.DecreaseStock(context.Background(), m.ID, 1); !errors.Is(err, apperr.ErrInsufficientStock) {
		t.Errorf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestLedger_RejectsNonPositive(t *testing.T) {
	l := NewLedger(newMockMaterialRepo())
	for _, qty := range []int64{0, -1} {
		if _, err := l.IncreaseStock(context.Background(), uuid.New(), qty); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("increase %d: expected ErrValidation, got %v", qty, err)
		}
		if _, err := l.DecreaseStock(context.Background(), uuid.New(), qty); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("decrease %d: expected ErrValidation, got %v", qty, err)
		}
	}
}

func TestLedger_ApplyZeroReads(t *testing.T) {
	repo := newMockMaterialRepo()
	m := &Material{Name: "Gloves", Unit: "box", Quantity: 4}
	_ = repo.Create(context.Background(), m)
	got, err := NewLedger(repo).Apply(context.Background(), m.ID, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Quantity != 4 {
		t.Errorf("expected 4, got %d", got.Quantity)
	}
	if _, err := NewLedger(repo).Apply(context.Background(), uuid.New(), 0); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLedger_CountsUnits(t *testing.T) {
	repo := newMockMaterialRepo()
	m := &Material{Name: "Gloves", Unit: "box"}
	_ = repo.Create(context.Background(), m)
	l := NewLedger(repo)
	l.metrics = telemetry.New()

	_, _ = l.IncreaseStock(context.Background(), m.ID, 10)
	_, _ = l.DecreaseStock(context.Background(), m.ID, 4)
	_, _ = l.DecreaseStock(context.Background(), m.ID, 40)

	count, err := testutil.GatherAndCount(l.metrics.Registry(), "clinic_stock_units_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 2 {
		t.Errorf("expected in and out series, got %d", count)
	}
}
