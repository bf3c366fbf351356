package inventory

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/pkg/money"
)

// DefaultMinQuantity is the reorder threshold given to new materials.
const DefaultMinQuantity = 10

// Material is a consumable whose quantity is the on-hand stock. Quantity is
// only moved by imports, exports and explicit administrative edits.
type Material struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Unit        string    `json:"unit"`
	Quantity    int64     `json:"quantity"`
	MinQuantity int64     `json:"min_quantity"`
	Price       int64     `json:"price"`
	Supplier    string    `json:"supplier"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (m *Material) LowStock() bool {
	return m.IsActive && m.Quantity < m.MinQuantity
}

func (m *Material) Ref() *MaterialRef {
	return &MaterialRef{ID: m.ID, Name: m.Name, Unit: m.Unit}
}

// MaterialRef is the material summary embedded in journal reads.
type MaterialRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Unit string    `json:"unit"`
}

// Import records stock received.
type Import struct {
	ID         uuid.UUID    `json:"id"`
	MaterialID uuid.UUID    `json:"material_id"`
	Quantity   int64        `json:"quantity"`
	Price      int64        `json:"price"`
	TotalPrice int64        `json:"total_price"`
	Supplier   string       `json:"supplier"`
	Note       string       `json:"note"`
	ImportDate time.Time    `json:"import_date"`
	CreatedBy  *uuid.UUID   `json:"created_by,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
	Material   *MaterialRef `json:"material,omitempty"`
}

// Recompute derives TotalPrice. Every write path calls it before persisting.
func (i *Import) Recompute() error {
	total, err := money.Mul(i.Quantity, i.Price)
	if err != nil {
		return fmt.Errorf("%w: import total price: %v", apperr.ErrValidation, err)
	}
	i.TotalPrice = total
	return nil
}

// Export records stock consumed, usually for a patient's treatment.
type Export struct {
	ID         uuid.UUID    `json:"id"`
	MaterialID uuid.UUID    `json:"material_id"`
	PatientID  uuid.UUID    `json:"patient_id"`
	RecordID   *uuid.UUID   `json:"record_id,omitempty"`
	Quantity   int64        `json:"quantity"`
	Price      int64        `json:"price"`
	TotalPrice int64        `json:"total_price"`
	Note       string       `json:"note"`
	ExportDate time.Time    `json:"export_date"`
	CreatedBy  *uuid.UUID   `json:"created_by,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
	Material   *MaterialRef `json:"material,omitempty"`
}

func (e *Export) Recompute() error {
	total, err := money.Mul(e.Quantity, e.Price)
	if err != nil {
		return fmt.Errorf("%w: export total price: %v", apperr.ErrValidation, err)
	}
	e.TotalPrice = total
	return nil
}

type CreateMaterialInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Unit        string `json:"unit"`
	Quantity    int64  `json:"quantity"`
	MinQuantity *int64 `json:"min_quantity"`
	Price       int64  `json:"price"`
	Supplier    string `json:"supplier"`
}

type UpdateMaterialInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Unit        *string `json:"unit"`
	Quantity    *int64  `json:"quantity"`
	MinQuantity *int64  `json:"min_quantity"`
	Price       *int64  `json:"price"`
	Supplier    *string `json:"supplier"`
	IsActive    *bool   `json:"is_active"`
}

type CreateImportInput struct {
	MaterialID uuid.UUID  `json:"material_id"`
	Quantity   int64      `json:"quantity"`
	Price      int64      `json:"price"`
	Supplier   string     `json:"supplier"`
	Note       string     `json:"note"`
	ImportDate *time.Time `json:"import_date"`
}

type UpdateImportInput struct {
	Quantity   *int64     `json:"quantity"`
	Price      *int64     `json:"price"`
	Supplier   *string    `json:"supplier"`
	Note       *string    `json:"note"`
	ImportDate *time.Time `json:"import_date"`
}

type CreateExportInput struct {
	MaterialID uuid.UUID  `json:"material_id"`
	PatientID  uuid.UUID  `json:"patient_id"`
	RecordID   *uuid.UUID `json:"record_id"`
	Quantity   int64      `json:"quantity"`
	Price      int64      `json:"price"`
	Note       string     `json:"note"`
	ExportDate *time.Time `json:"export_date"`
}

type UpdateExportInput struct {
	Quantity   *int64     `json:"quantity"`
	Price      *int64     `json:"price"`
	Note       *string    `json:"note"`
	ExportDate *time.Time `json:"export_date"`
}
