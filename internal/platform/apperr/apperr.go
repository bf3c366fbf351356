// Package apperr holds the business error taxonomy shared by every domain
// package and its mapping onto HTTP status codes.
package apperr

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound                  = errors.New("not found")
	ErrValidation                = errors.New("validation failed")
	ErrInsufficientStock         = errors.New("insufficient stock")
	ErrOverpayment               = errors.New("payment exceeds remaining balance")
	ErrModificationWindowExpired = errors.New("modification window expired")
	ErrReferentialBlock          = errors.New("referenced by dependent records")
	ErrUnauthorized              = errors.New("unauthorized")
)

// Kind returns the taxonomy name of err, or "Unexpected" when err does not
// wrap one of the sentinel errors.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrValidation):
		return "ValidationFailed"
	case errors.Is(err, ErrInsufficientStock):
		return "InsufficientStock"
	case errors.Is(err, ErrOverpayment):
		return "OverpaymentRejected"
	case errors.Is(err, ErrModificationWindowExpired):
		return "ModificationWindowExpired"
	case errors.Is(err, ErrReferentialBlock):
		return "ReferentialBlock"
	case errors.Is(err, ErrUnauthorized):
		return "Unauthorized"
	default:
		return "Unexpected"
	}
}

// HTTPStatus maps err onto the status code the API responds with.
func HTTPStatus(err error) int {
	switch Kind(err) {
	case "NotFound":
		return http.StatusNotFound
	case "ValidationFailed", "InsufficientStock", "OverpaymentRejected",
		"ModificationWindowExpired", "ReferentialBlock":
		return http.StatusBadRequest
	case "Unauthorized":
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// FromPG converts pgx.ErrNoRows into ErrNotFound and leaves other errors untouched.
func FromPG(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// IsUniqueViolation reports whether err is a Postgres unique_violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsForeignKeyViolation reports whether err is a Postgres foreign_key_violation.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
