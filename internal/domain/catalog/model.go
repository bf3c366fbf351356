package catalog

import (
	"time"

	"github.com/google/uuid"
)

// DefaultDuration is the chair time, in minutes, given to new procedures.
const DefaultDuration = 30

// Category groups the procedures offered by the clinic.
type Category struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Procedure is a billable service. Treatment line items reference it by
// service_id.
type Procedure struct {
	ID          uuid.UUID    `json:"id"`
	CategoryID  uuid.UUID    `json:"category_id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Price       int64        `json:"price"`
	Duration    int          `json:"duration"`
	IsActive    bool         `json:"is_active"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Category    *CategoryRef `json:"category,omitempty"`
}

type CategoryRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// CategoryWithServices is one group of the active price list.
type CategoryWithServices struct {
	*Category
	Services []*Procedure `json:"services"`
}

type CategoryInput struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"is_active"`
}

type CreateProcedureInput struct {
	CategoryID  uuid.UUID `json:"category_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       int64     `json:"price"`
	Duration    int       `json:"duration"`
}

type UpdateProcedureInput struct {
	CategoryID  *uuid.UUID `json:"category_id"`
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	Price       *int64     `json:"price"`
	Duration    *int       `json:"duration"`
	IsActive    *bool      `json:"is_active"`
}
