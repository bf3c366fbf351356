package treatment

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleReceptionist, auth.RoleAccountant))
	read.GET("/patient-records/:id", h.GetRecord)
	read.GET("/patients/:id/records", h.ListByPatient)
	read.GET("/treatments/:treatment_id/records", h.ListByTreatment)

	write := api.Group("", auth.RequireRole(auth.RoleDoctor))
	write.POST("/patient-records", h.CreateRecord)
	write.PUT("/patient-records/:id", h.UpdateRecord)
	write.DELETE("/patient-records/:id", h.DeleteRecord)
}

func (h *Handler) CreateRecord(c echo.Context) error {
	var in CreateRecordInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	rec, err := h.svc.CreateRecord(ctx, auth.ActorFromContext(ctx), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"message": "record created", "record": rec})
}

func (h *Handler) GetRecord(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rec, err := h.svc.GetRecord(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	items, err := h.svc.ListRecordsByPatient(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Record{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListByTreatment(c echo.Context) error {
	items, err := h.svc.ListRecordsByTreatment(c.Request().Context(), c.Param("treatment_id"))
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Record{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) UpdateRecord(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in UpdateRecordInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rec, err := h.svc.UpdateRecord(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "record updated", "record": rec})
}

func (h *Handler) DeleteRecord(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteRecord(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "record deleted"})
}
