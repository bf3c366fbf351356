package catalog

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
	// Read endpoints – any clinic role
	read := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleReceptionist, auth.RoleAccountant))
	read.GET("/categories", h.ListCategories)
	read.GET("/categories/price-list", h.PriceList)
	read.GET("/categories/:id", h.GetCategory)
	read.GET("/categories/:id/services", h.ListCategoryServices)
	read.GET("/services", h.ListServices)
	read.GET("/services/:id", h.GetService)

	// Write endpoints – admin only
	write := api.Group("", auth.RequireRole(auth.RoleAdmin))
	write.POST("/categories", h.CreateCategory)
	write.PUT("/categories/:id", h.UpdateCategory)
	write.DELETE("/categories/:id", h.DeleteCategory)
	write.POST("/services", h.CreateService)
	write.PUT("/services/:id", h.UpdateService)
	write.DELETE("/services/:id", h.DeleteService)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Category Handlers --

func (h *Handler) CreateCategory(c echo.Context) error {
	var in CategoryInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cat, err := h.svc.CreateCategory(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"message": "category created", "category": cat})
}

func (h *Handler) GetCategory(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	cat, err := h.svc.GetCategory(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cat)
}

func (h *Handler) ListCategories(c echo.Context) error {
	items, err := h.svc.ListCategories(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) PriceList(c echo.Context) error {
	items, err := h.svc.PriceList(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) UpdateCategory(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in CategoryInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cat, err := h.svc.UpdateCategory(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "category updated", "category": cat})
}

func (h *Handler) DeleteCategory(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteCategory(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "category deleted"})
}

// -- Service Handlers --

func (h *Handler) CreateService(c echo.Context) error {
	var in CreateProcedureInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.CreateProcedure(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"message": "service created", "service": p})
}

func (h *Handler) GetService(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetProcedure(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListServices(c echo.Context) error {
	items, err := h.svc.ListProcedures(c.Request().Context(), nil)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListCategoryServices(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListProcedures(c.Request().Context(), &id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) UpdateService(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in UpdateProcedureInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.UpdateProcedure(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "service updated", "service": p})
}

func (h *Handler) DeleteService(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteProcedure(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "service deleted"})
}
