package staff

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	// GetByLogin matches the username exactly or the email case-insensitively.
	GetByLogin(ctx context.Context, login string) (*User, error)
	List(ctx context.Context, limit, offset int) ([]*User, int, error)
}
