package notify

import (
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindInfo    Kind = "info"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
	KindSuccess Kind = "success"
)

func (k Kind) Valid() bool {
	switch k {
	case KindInfo, KindWarning, KindError, KindSuccess:
		return true
	}
	return false
}

// Notification is an in-app message for one staff user.
type Notification struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Type      Kind       `json:"type"`
	Link      string     `json:"link,omitempty"`
	IsRead    bool       `json:"is_read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Page is a page of notifications plus the user's unread total.
type Page struct {
	Items       []*Notification `json:"items"`
	TotalPages  int             `json:"totalPages"`
	CurrentPage int             `json:"currentPage"`
	Total       int             `json:"total"`
	Unread      int             `json:"unread"`
}
