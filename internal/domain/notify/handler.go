package notify

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the caller's own notifications. Any authenticated
// staff user may read theirs.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/notifications", h.List)
	api.PUT("/notifications/:id/read", h.MarkRead)
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	page, err := h.svc.List(ctx, auth.ActorFromContext(ctx), pagination.FromContext(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

func (h *Handler) MarkRead(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	n, err := h.svc.MarkRead(ctx, auth.ActorFromContext(ctx), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "notification marked as read", "notification": n})
}
