package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/telemetry"
)

// Ledger is the only writer of Material.Quantity besides administrative edits.
// Each change is one conditional UPDATE so concurrent decrements cannot
// drive stock below zero.
type Ledger struct {
	materials MaterialRepository
	metrics   *telemetry.Metrics
}

func NewLedger(materials MaterialRepository) *Ledger {
	return &Ledger{materials: materials}
}

func (l *Ledger) IncreaseStock(ctx context.Context, materialID uuid.UUID, qty int64) (*Material, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", apperr.ErrValidation)
	}
	return l.Apply(ctx, materialID, qty)
}

func (l *Ledger) DecreaseStock(ctx context.Context, materialID uuid.UUID, qty int64) (*Material, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", apperr.ErrValidation)
	}
	return l.Apply(ctx, materialID, -qty)
}

// Apply moves stock by a signed delta. A zero delta only reads the material.
func (l *Ledger) Apply(ctx context.Context, materialID uuid.UUID, delta int64) (*Material, error) {
	if delta == 0 {
		return l.materials.GetByID(ctx, materialID)
	}
	m, err := l.materials.AdjustQuantity(ctx, materialID, delta)
	if err != nil {
		return nil, err
	}
	if delta > 0 {
		l.metrics.StockIn(delta)
	} else {
		l.metrics.StockOut(-delta)
	}
	return m, nil
}
