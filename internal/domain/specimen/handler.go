package specimen

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

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – any clinic role
	read := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleReceptionist, auth.RoleAccountant))
	read.GET("/labs", h.ListLabs)
	read.GET("/labs/active", h.ListActiveLabs)
	read.GET("/labs/:id", h.GetLab)
	read.GET("/labs/:id/specimens", h.LabQueue)
	read.GET("/specimens", h.ListSpecimens)
	read.GET("/specimens/:id", h.GetSpecimen)
	read.GET("/patients/:id/specimens", h.ListSpecimensByPatient)

	// Specimen workflow – admin, doctor, receptionist
	work := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleReceptionist))
	work.POST("/specimens", h.CreateSpecimen)
	work.PUT("/specimens/:id", h.UpdateSpecimen)
	work.DELETE("/specimens/:id", h.DeleteSpecimen)
	work.POST("/specimens/:id/send", h.Send)
	work.POST("/specimens/:id/receive", h.Receive)
	work.POST("/specimens/:id/report", h.Report)
	work.POST("/specimens/:id/deliver", h.Deliver)
	work.POST("/specimens/:id/use", h.Use)

	// Lab directory – admin only
	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/labs", h.CreateLab)
	admin.PUT("/labs/:id", h.UpdateLab)
	admin.DELETE("/labs/:id", h.DeleteLab)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Lab Handlers --

func (h *Handler) CreateLab(c echo.Context) error {
	var in LabInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	l, err := h.svc.CreateLab(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"message": "lab created", "lab": l})
}

func (h *Handler) GetLab(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	l, err := h.svc.GetLab(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, l)
}

func (h *Handler) ListLabs(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListLabs(c.Request().Context(), c.QueryParam("search"), pg)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) ListActiveLabs(c echo.Context) error {
	items, err := h.svc.ListActiveLabs(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

// LabQueue serves ?queue=prepare (the default) or ?queue=receive.
func (h *Handler) LabQueue(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	q := Queue(c.QueryParam("queue"))
	if q == "" {
		q = QueuePrepare
	}
	items, err := h.svc.LabQueue(c.Request().Context(), id, q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) UpdateLab(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in LabInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	l, err := h.svc.UpdateLab(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "lab updated", "lab": l})
}

func (h *Handler) DeleteLab(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteLab(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "lab deleted"})
}

// -- Specimen Handlers --

func (h *Handler) CreateSpecimen(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	sp, err := h.svc.CreateSpecimen(ctx, auth.ActorFromContext(ctx), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"message": "specimen created", "specimen": sp})
}

func (h *Handler) GetSpecimen(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	sp, err := h.svc.GetSpecimen(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sp)
}

func (h *Handler) ListSpecimens(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListSpecimens(c.Request().Context(), c.QueryParam("search"), pg)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) ListSpecimensByPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListSpecimensByPatient(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) UpdateSpecimen(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in UpdateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sp, err := h.svc.UpdateSpecimen(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "specimen updated", "specimen": sp})
}

func (h *Handler) DeleteSpecimen(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteSpecimen(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "specimen deleted"})
}

func (h *Handler) transition(c echo.Context, message string, fn func(id uuid.UUID) (*Specimen, error)) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	sp, err := fn(id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": message, "specimen": sp})
}

func (h *Handler) Send(c echo.Context) error {
	return h.transition(c, "specimen sent to lab", func(id uuid.UUID) (*Specimen, error) {
		return h.svc.Send(c.Request().Context(), id)
	})
}

func (h *Handler) Receive(c echo.Context) error {
	return h.transition(c, "lab received specimen", func(id uuid.UUID) (*Specimen, error) {
		return h.svc.Receive(c.Request().Context(), id)
	})
}

type reportRequest struct {
	Report string `json:"report"`
}

func (h *Handler) Report(c echo.Context) error {
	var req reportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return h.transition(c, "specimen reported", func(id uuid.UUID) (*Specimen, error) {
		return h.svc.Report(c.Request().Context(), id, req.Report)
	})
}

func (h *Handler) Deliver(c echo.Context) error {
	return h.transition(c, "specimen returned from lab", func(id uuid.UUID) (*Specimen, error) {
		return h.svc.Deliver(c.Request().Context(), id)
	})
}

func (h *Handler) Use(c echo.Context) error {
	return h.transition(c, "specimen used", func(id uuid.UUID) (*Specimen, error) {
		return h.svc.Use(c.Request().Context(), id)
	})
}
