package inventory

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/clock"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/telemetry"
	"github.com/clinic/clinic/pkg/pagination"
)

// Notifier delivers an in-app notification to a staff user.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, title, message, kind, link string) error
}

type Service struct {
	materials MaterialRepository
	imports   ImportRepository
	exports   ExportRepository
	ledger    *Ledger
	tx        db.TxRunner
	clock     clock.Clock
	notifier  Notifier
	metrics   *telemetry.Metrics
	log       zerolog.Logger
}

func NewService(materials MaterialRepository, imports ImportRepository, exports ExportRepository,
	tx db.TxRunner, clk clock.Clock, logger zerolog.Logger) *Service {
	return &Service{
		materials: materials,
		imports:   imports,
		exports:   exports,
		ledger:    NewLedger(materials),
		tx:        tx,
		clock:     clk,
		log:       logger.With().Str("component", "inventory").Logger(),
	}
}

func (s *Service) SetNotifier(n Notifier) { s.notifier = n }

func (s *Service) SetMetrics(m *telemetry.Metrics) {
	s.metrics = m
	s.ledger.metrics = m
}

func (s *Service) Ledger() *Ledger { return s.ledger }

func createdBy(actor uuid.UUID) *uuid.UUID {
	if actor == uuid.Nil {
		return nil
	}
	return &actor
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", apperr.ErrValidation, fmt.Sprintf(format, args...))
}

func (s *Service) reject(err error) error {
	s.metrics.Rejected(err)
	return err
}

// -- Materials --

func (s *Service) CreateMaterial(ctx context.Context, in CreateMaterialInput) (*Material, error) {
	m := &Material{
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Unit:        strings.TrimSpace(in.Unit),
		Quantity:    in.Quantity,
		MinQuantity: DefaultMinQuantity,
		Price:       in.Price,
		Supplier:    strings.TrimSpace(in.Supplier),
		IsActive:    true,
	}
	if in.MinQuantity != nil {
		m.MinQuantity = *in.MinQuantity
	}
	if err := validateMaterial(m); err != nil {
		return nil, err
	}
	if existing, err := s.materials.GetByName(ctx, m.Name); err == nil && existing != nil {
		return nil, invalid("material %q already exists", m.Name)
	}
	if err := s.materials.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func validateMaterial(m *Material) error {
	switch {
	case m.Name == "":
		return invalid("name is required")
	case m.Unit == "":
		return invalid("unit is required")
	case m.Quantity < 0:
		return invalid("quantity must not be negative")
	case m.MinQuantity < 0:
		return invalid("min_quantity must not be negative")
	case m.Price < 0:
		return invalid("price must not be negative")
	}
	return nil
}

func (s *Service) GetMaterial(ctx context.Context, id uuid.UUID) (*Material, error) {
	return s.materials.GetByID(ctx, id)
}

func (s *Service) ListMaterials(ctx context.Context, search string, p pagination.Params) ([]*Material, int, error) {
	return s.materials.List(ctx, strings.TrimSpace(search), p.Size, p.Skip())
}

func (s *Service) ListActiveMaterials(ctx context.Context) ([]*Material, error) {
	return s.materials.ListActive(ctx)
}

func (s *Service) ListLowStock(ctx context.Context) ([]*Material, error) {
	items, err := s.materials.ListLowStock(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.SetLowStock(db.TenantFromContext(ctx), len(items))
	return items, nil
}

// UpdateMaterial is the administrative edit path. It may set quantity
// directly, so the row stays locked until the write commits and concurrent
// imports and exports queue behind it.
func (s *Service) UpdateMaterial(ctx context.Context, actor, id uuid.UUID, in UpdateMaterialInput) (*Material, error) {
	var out *Material
	var before int64
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		m, err := s.materials.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		before = m.Quantity

		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name != m.Name {
				if existing, err := s.materials.GetByName(ctx, name); err == nil && existing != nil && existing.ID != m.ID {
					return invalid("material %q already exists", name)
				}
			}
			m.Name = name
		}
		if in.Description != nil {
			m.Description = strings.TrimSpace(*in.Description)
		}
		if in.Unit != nil {
			m.Unit = strings.TrimSpace(*in.Unit)
		}
		if in.Quantity != nil {
			m.Quantity = *in.Quantity
		}
		if in.MinQuantity != nil {
			m.MinQuantity = *in.MinQuantity
		}
		if in.Price != nil {
			m.Price = *in.Price
		}
		if in.Supplier != nil {
			m.Supplier = strings.TrimSpace(*in.Supplier)
		}
		if in.IsActive != nil {
			m.IsActive = *in.IsActive
		}
		if err := validateMaterial(m); err != nil {
			return err
		}
		if err := s.materials.Update(ctx, m); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.Quantity < before {
		s.checkLowStock(ctx, actor, out)
	}
	return out, nil
}

// DeleteMaterial removes a material that no journal entry references.
// Deactivating via UpdateMaterial is the usual way to retire one.
func (s *Service) DeleteMaterial(ctx context.Context, id uuid.UUID) error {
	if _, err := s.materials.GetByID(ctx, id); err != nil {
		return err
	}
	n, err := s.materials.CountJournalEntries(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return s.reject(fmt.Errorf("%w: material has %d import/export entries", apperr.ErrReferentialBlock, n))
	}
	return s.materials.Delete(ctx, id)
}

// StockReport writes the active materials as an xlsx workbook.
func (s *Service) StockReport(ctx context.Context, w io.Writer) error {
	items, err := s.materials.ListActive(ctx)
	if err != nil {
		return err
	}
	return writeStockReport(w, items)
}

func (s *Service) checkLowStock(ctx context.Context, actor uuid.UUID, m *Material) {
	if !m.LowStock() {
		return
	}
	s.log.Warn().
		Str("material_id", m.ID.String()).
		Str("material", m.Name).
		Int64("quantity", m.Quantity).
		Int64("min_quantity", m.MinQuantity).
		Msg("material below reorder threshold")

	if s.notifier != nil && actor != uuid.Nil {
		msg := fmt.Sprintf("%s has %d %s left (minimum %d)", m.Name, m.Quantity, m.Unit, m.MinQuantity)
		if err := s.notifier.Notify(ctx, actor, "Low stock", msg, "warning", "/materials/"+m.ID.String()); err != nil {
			s.log.Error().Err(err).Str("material_id", m.ID.String()).Msg("low stock notification failed")
		}
	}
	if s.metrics != nil {
		if low, err := s.materials.ListLowStock(ctx); err == nil {
			s.metrics.SetLowStock(db.TenantFromContext(ctx), len(low))
		}
	}
}

// -- Imports --

func validateImport(in CreateImportInput) error {
	switch {
	case in.MaterialID == uuid.Nil:
		return invalid("material_id is required")
	case in.Quantity <= 0:
		return invalid("quantity must be positive")
	case in.Price < 0:
		return invalid("price must not be negative")
	}
	return nil
}

func (s *Service) CreateImport(ctx context.Context, actor uuid.UUID, in CreateImportInput) (*Import, error) {
	if err := validateImport(in); err != nil {
		return nil, err
	}
	var out *Import
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.createImport(ctx, actor, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("import_id", out.ID.String()).Str("material_id", in.MaterialID.String()).
		Int64("quantity", in.Quantity).Msg("stock imported")
	return out, nil
}

func (s *Service) createImport(ctx context.Context, actor uuid.UUID, in CreateImportInput) (*Import, error) {
	if _, err := s.materials.GetByID(ctx, in.MaterialID); err != nil {
		return nil, err
	}
	imp := &Import{
		MaterialID: in.MaterialID,
		Quantity:   in.Quantity,
		Price:      in.Price,
		Supplier:   strings.TrimSpace(in.Supplier),
		Note:       strings.TrimSpace(in.Note),
		ImportDate: s.clock.Now(),
		CreatedBy:  createdBy(actor),
	}
	if in.ImportDate != nil {
		imp.ImportDate = *in.ImportDate
	}
	if err := imp.Recompute(); err != nil {
		return nil, err
	}
	if err := s.imports.Create(ctx, imp); err != nil {
		return nil, err
	}
	m, err := s.ledger.IncreaseStock(ctx, in.MaterialID, in.Quantity)
	if err != nil {
		return nil, err
	}
	imp.Material = m.Ref()
	return imp, nil
}

// CreateBatchImport applies every entry in one transaction. Any failure rolls
// back the whole batch.
func (s *Service) CreateBatchImport(ctx context.Context, actor uuid.UUID, items []CreateImportInput) ([]*Import, error) {
	if len(items) == 0 {
		return nil, invalid("imports must not be empty")
	}
	for i, in := range items {
		if err := validateImport(in); err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
	}

	out := make([]*Import, 0, len(items))
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		for i, in := range items {
			imp, err := s.createImport(ctx, actor, in)
			if err != nil {
				return fmt.Errorf("item %d: %w", i+1, err)
			}
			out = append(out, imp)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Int("count", len(out)).Msg("batch import applied")
	return out, nil
}

// CreateBatchImportFromSheet parses an xlsx upload and applies it as one batch.
func (s *Service) CreateBatchImportFromSheet(ctx context.Context, actor uuid.UUID, r io.Reader) ([]*Import, error) {
	items, err := parseImportSheet(r)
	if err != nil {
		return nil, err
	}
	return s.CreateBatchImport(ctx, actor, items)
}

func (s *Service) GetImport(ctx context.Context, id uuid.UUID) (*Import, error) {
	return s.imports.GetByID(ctx, id)
}

func (s *Service) ListImports(ctx context.Context, p pagination.Params) ([]*Import, int, error) {
	return s.imports.List(ctx, p.Size, p.Skip())
}

func (s *Service) checkWindow(kind string, created time.Time) error {
	if !s.clock.SameDay(created) {
		return s.reject(fmt.Errorf("%w: %s can only be changed on the day it was created", apperr.ErrModificationWindowExpired, kind))
	}
	return nil
}

// UpdateImport edits a same-day import. A quantity change moves stock by the
// difference and fails if that would leave the material negative.
func (s *Service) UpdateImport(ctx context.Context, actor, id uuid.UUID, in UpdateImportInput) (*Import, error) {
	var out *Import
	var after *Material
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		imp, err := s.imports.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.checkWindow("import", imp.CreatedAt); err != nil {
			return err
		}

		if in.Quantity != nil {
			if *in.Quantity <= 0 {
				return invalid("quantity must be positive")
			}
			m, err := s.ledger.Apply(ctx, imp.MaterialID, *in.Quantity-imp.Quantity)
			if err != nil {
				return s.reject(err)
			}
			after = m
			imp.Quantity = *in.Quantity
		}
		if in.Price != nil {
			if *in.Price < 0 {
				return invalid("price must not be negative")
			}
			imp.Price = *in.Price
		}
		if in.Supplier != nil {
			imp.Supplier = strings.TrimSpace(*in.Supplier)
		}
		if in.Note != nil {
			imp.Note = strings.TrimSpace(*in.Note)
		}
		if in.ImportDate != nil {
			imp.ImportDate = *in.ImportDate
		}
		if err := imp.Recompute(); err != nil {
			return err
		}
		if err := s.imports.Update(ctx, imp); err != nil {
			return err
		}
		if after != nil {
			imp.Material = after.Ref()
		}
		out = imp
		return nil
	})
	if err != nil {
		return nil, err
	}
	if after != nil {
		s.checkLowStock(ctx, actor, after)
	}
	return out, nil
}

// DeleteImport reverses a same-day import's stock effect and removes it.
func (s *Service) DeleteImport(ctx context.Context, actor, id uuid.UUID) error {
	var after *Material
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		imp, err := s.imports.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.checkWindow("import", imp.CreatedAt); err != nil {
			return err
		}
		m, err := s.ledger.DecreaseStock(ctx, imp.MaterialID, imp.Quantity)
		if err != nil {
			return s.reject(err)
		}
		after = m
		return s.imports.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.checkLowStock(ctx, actor, after)
	return nil
}

// SumImports totals import spend in [from, to). Income reports use it as the expense side.
func (s *Service) SumImports(ctx context.Context, from, to time.Time) (int64, int, error) {
	return s.imports.SumBetween(ctx, from, to)
}

// -- Exports --

func (s *Service) CreateExport(ctx context.Context, actor uuid.UUID, in CreateExportInput) (*Export, error) {
	switch {
	case in.MaterialID == uuid.Nil:
		return nil, invalid("material_id is required")
	case in.PatientID == uuid.Nil:
		return nil, invalid("patient_id is required")
	case in.Quantity <= 0:
		return nil, invalid("quantity must be positive")
	case in.Price < 0:
		return nil, invalid("price must not be negative")
	}

	var out *Export
	var after *Material
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		m, err := s.materials.GetByID(ctx, in.MaterialID)
		if err != nil {
			return err
		}
		if m.Quantity < in.Quantity {
			return s.reject(fmt.Errorf("%w: %s has %d, requested %d", apperr.ErrInsufficientStock, m.Name, m.Quantity, in.Quantity))
		}

		exp := &Export{
			MaterialID: in.MaterialID,
			PatientID:  in.PatientID,
			RecordID:   in.RecordID,
			Quantity:   in.Quantity,
			Price:      in.Price,
			Note:       strings.TrimSpace(in.Note),
			ExportDate: s.clock.Now(),
			CreatedBy:  createdBy(actor),
		}
		if in.ExportDate != nil {
			exp.ExportDate = *in.ExportDate
		}
		if err := exp.Recompute(); err != nil {
			return err
		}
		if err := s.exports.Create(ctx, exp); err != nil {
			return err
		}
		// The conditional decrement is the real guard; the read above only
		// produces a clearer message in the common case.
		after, err = s.ledger.DecreaseStock(ctx, in.MaterialID, in.Quantity)
		if err != nil {
			return s.reject(err)
		}
		exp.Material = after.Ref()
		out = exp
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("export_id", out.ID.String()).Str("material_id", in.MaterialID.String()).
		Int64("quantity", in.Quantity).Int64("remaining", after.Quantity).Msg("stock exported")
	s.checkLowStock(ctx, actor, after)
	return out, nil
}

// UpdateExport edits a same-day export. A quantity change returns the old
// amount to stock and takes the new one, failing on insufficient stock.
func (s *Service) UpdateExport(ctx context.Context, actor, id uuid.UUID, in UpdateExportInput) (*Export, error) {
	var out *Export
	var after *Material
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		exp, err := s.exports.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.checkWindow("export", exp.CreatedAt); err != nil {
			return err
		}

		if in.Quantity != nil {
			if *in.Quantity <= 0 {
				return invalid("quantity must be positive")
			}
			m, err := s.ledger.Apply(ctx, exp.MaterialID, exp.Quantity-*in.Quantity)
			if err != nil {
				return s.reject(err)
			}
			after = m
			exp.Quantity = *in.Quantity
		}
		if in.Price != nil {
			if *in.Price < 0 {
				return invalid("price must not be negative")
			}
			exp.Price = *in.Price
		}
		if in.Note != nil {
			exp.Note = strings.TrimSpace(*in.Note)
		}
		if in.ExportDate != nil {
			exp.ExportDate = *in.ExportDate
		}
		if err := exp.Recompute(); err != nil {
			return err
		}
		if err := s.exports.Update(ctx, exp); err != nil {
			return err
		}
		if after != nil {
			exp.Material = after.Ref()
		}
		out = exp
		return nil
	})
	if err != nil {
		return nil, err
	}
	if after != nil {
		s.checkLowStock(ctx, actor, after)
	}
	return out, nil
}

// DeleteExport returns a same-day export's quantity to stock and removes it.
func (s *Service) DeleteExport(ctx context.Context, id uuid.UUID) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		exp, err := s.exports.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.checkWindow("export", exp.CreatedAt); err != nil {
			return err
		}
		if _, err := s.ledger.IncreaseStock(ctx, exp.MaterialID, exp.Quantity); err != nil {
			return err
		}
		return s.exports.Delete(ctx, id)
	})
}

func (s *Service) GetExport(ctx context.Context, id uuid.UUID) (*Export, error) {
	return s.exports.GetByID(ctx, id)
}

func (s *Service) ListExports(ctx context.Context, p pagination.Params) ([]*Export, int, error) {
	return s.exports.List(ctx, p.Size, p.Skip())
}

func (s *Service) ListExportsByPatient(ctx context.Context, patientID uuid.UUID) ([]*Export, error) {
	return s.exports.ListByPatient(ctx, patientID)
}
