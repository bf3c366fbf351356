package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/pkg/pagination"
)

type Service struct {
	repo Repository
	log  zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, log: logger.With().Str("component", "notify").Logger()}
}

// Notify records a notification for userID. An empty kind means info.
func (s *Service) Notify(ctx context.Context, userID uuid.UUID, title, message, kind, link string) error {
	if userID == uuid.Nil {
		return fmt.Errorf("%w: user_id is required", apperr.ErrValidation)
	}
	n := &Notification{
		UserID:  userID,
		Title:   strings.TrimSpace(title),
		Message: strings.TrimSpace(message),
		Type:    Kind(kind),
		Link:    link,
	}
	if n.Type == "" {
		n.Type = KindInfo
	}
	if !n.Type.Valid() {
		return fmt.Errorf("%w: notification type %q is unknown", apperr.ErrValidation, kind)
	}
	if n.Title == "" {
		return fmt.Errorf("%w: title is required", apperr.ErrValidation)
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return err
	}
	s.log.Debug().Str("user_id", userID.String()).Str("type", string(n.Type)).Msg("notification recorded")
	return nil
}

// List returns the caller's notifications newest first with the unread count.
func (s *Service) List(ctx context.Context, userID uuid.UUID, p pagination.Params) (*Page, error) {
	items, total, err := s.repo.ListByUser(ctx, userID, p.Size, p.Skip())
	if err != nil {
		return nil, err
	}
	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Notification{}
	}
	env := pagination.NewResponse(items, total, p)
	return &Page{
		Items:       items,
		TotalPages:  env.TotalPages,
		CurrentPage: env.CurrentPage,
		Total:       env.Total,
		Unread:      unread,
	}, nil
}

// MarkRead marks one of userID's notifications read. Another user's
// notification reads as not found.
func (s *Service) MarkRead(ctx context.Context, userID, id uuid.UUID) (*Notification, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.UserID != userID {
		return nil, fmt.Errorf("notification %s: %w", id, apperr.ErrNotFound)
	}
	return s.repo.MarkRead(ctx, id)
}
