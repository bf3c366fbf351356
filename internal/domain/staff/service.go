package staff

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
)

const minPasswordLen = 6

type Service struct {
	repo    Repository
	issuer  *auth.Issuer
	revoked auth.RevocationStore
	log     zerolog.Logger
}

func NewService(repo Repository, issuer *auth.Issuer, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		issuer: issuer,
		log:    logger.With().Str("component", "staff").Logger(),
	}
}

// SetRevocations enables Logout. The same store must be given to the JWT
// middleware for logouts to take effect.
func (s *Service) SetRevocations(store auth.RevocationStore) {
	s.revoked = store
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", apperr.ErrValidation, fmt.Sprintf(format, args...))
}

func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (*User, error) {
	u := &User{
		Username: strings.TrimSpace(in.Username),
		Email:    strings.ToLower(strings.TrimSpace(in.Email)),
		FullName: strings.TrimSpace(in.FullName),
		Phone:    strings.TrimSpace(in.Phone),
		Role:     strings.TrimSpace(in.Role),
		IsActive: true,
	}
	switch {
	case u.Username == "":
		return nil, invalid("username is required")
	case strings.ContainsAny(u.Username, " @"):
		return nil, invalid("username must not contain spaces or @")
	case u.FullName == "":
		return nil, invalid("full_name is required")
	case !auth.ValidRole(u.Role):
		return nil, invalid("role %q is unknown", u.Role)
	case len(in.Password) < minPasswordLen:
		return nil, invalid("password must be at least %d characters", minPasswordLen)
	}
	if u.Email != "" {
		if _, err := mail.ParseAddress(u.Email); err != nil {
			return nil, invalid("email %q is malformed", u.Email)
		}
	}
	if _, err := s.repo.GetByLogin(ctx, u.Username); err == nil {
		return nil, invalid("username %q is taken", u.Username)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = hash
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	s.log.Info().Str("user_id", u.ID.String()).Str("role", u.Role).Msg("staff user created")
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListUsers(ctx context.Context, p pagination.Params) ([]*User, int, error) {
	return s.repo.List(ctx, p.Size, p.Skip())
}

// Login checks the credentials and issues a bearer token for tenantID.
// Unknown users, wrong passwords and inactive accounts all fail the same way.
func (s *Service) Login(ctx context.Context, tenantID string, in LoginInput) (*LoginResult, error) {
	login := strings.TrimSpace(in.Login)
	if login == "" || in.Password == "" {
		return nil, invalid("login and password are required")
	}
	u, err := s.repo.GetByLogin(ctx, login)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("%w: invalid credentials", apperr.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive || !auth.CheckPassword(u.PasswordHash, in.Password) {
		s.log.Warn().Str("user_id", u.ID.String()).Bool("active", u.IsActive).Msg("login rejected")
		return nil, fmt.Errorf("%w: invalid credentials", apperr.ErrUnauthorized)
	}

	token, exp, err := s.issuer.Issue(u.ID.String(), u.Username, tenantID, []string{u.Role})
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: exp, User: u}, nil
}

// Logout revokes the token the current request was authenticated with.
func (s *Service) Logout(ctx context.Context) error {
	tok, ok := auth.TokenFromContext(ctx)
	if !ok {
		return fmt.Errorf("%w: request carries no session token", apperr.ErrValidation)
	}
	if s.revoked == nil {
		return fmt.Errorf("logout is not enabled")
	}
	if err := s.revoked.Revoke(ctx, tok.ID, tok.ExpiresAt); err != nil {
		return err
	}
	s.log.Info().Str("user_id", auth.UserIDFromContext(ctx)).Msg("staff user logged out")
	return nil
}
