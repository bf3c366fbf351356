package inventory

import (
	"bytes"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
	"github.com/clinic/clinic/pkg/sheet"
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
	read.GET("/materials", h.ListMaterials)
	read.GET("/materials/active", h.ListActiveMaterials)
	read.GET("/materials/low-stock", h.ListLowStock)
	read.GET("/materials/report.xlsx", h.StockReport)
	read.GET("/materials/:id", h.GetMaterial)
	read.GET("/material-imports", h.ListImports)
	read.GET("/material-imports/template.xlsx", h.ImportTemplate)
	read.GET("/material-imports/:id", h.GetImport)
	read.GET("/material-exports", h.ListExports)
	read.GET("/material-exports/:id", h.GetExport)
	read.GET("/patients/:id/material-exports", h.ListExportsByPatient)

	// Write endpoints – admin, receptionist
	write := api.Group("", auth.RequireRole(auth.RoleReceptionist))
	write.POST("/materials", h.CreateMaterial)
	write.PUT("/materials/:id", h.UpdateMaterial)
	write.DELETE("/materials/:id", h.DeleteMaterial)
	write.POST("/material-imports", h.CreateImport)
	write.POST("/material-imports/batch", h.CreateBatchImport)
	write.POST("/material-imports/batch.xlsx", h.CreateBatchImportFromSheet)
	write.PUT("/material-imports/:id", h.UpdateImport)
	write.DELETE("/material-imports/:id", h.DeleteImport)
	write.POST("/material-exports", h.CreateExport)
	write.PUT("/material-exports/:id", h.UpdateExport)
	write.DELETE("/material-exports/:id", h.DeleteExport)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Material Handlers --

func (h *Handler) CreateMaterial(c echo.Context) error {
	var in CreateMaterialInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m, err := h.svc.CreateMaterial(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"message": "material created", "material": m})
}

func (h *Handler) GetMaterial(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	m, err := h.svc.GetMaterial(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) ListMaterials(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListMaterials(c.Request().Context(), c.QueryParam("search"), pg)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) ListActiveMaterials(c echo.Context) error {
	items, err := h.svc.ListActiveMaterials(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListLowStock(c echo.Context) error {
	items, err := h.svc.ListLowStock(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) UpdateMaterial(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in UpdateMaterialInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	m, err := h.svc.UpdateMaterial(ctx, auth.ActorFromContext(ctx), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "material updated", "material": m})
}

func (h *Handler) DeleteMaterial(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteMaterial(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "material deleted"})
}

func (h *Handler) StockReport(c echo.Context) error {
	var buf bytes.Buffer
	if err := h.svc.StockReport(c.Request().Context(), &buf); err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="stock.xlsx"`)
	return c.Blob(http.StatusOK, sheet.ContentType, buf.Bytes())
}

// -- Import Handlers --

func (h *Handler) CreateImport(c echo.Context) error {
	var in CreateImportInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	imp, err := h.svc.CreateImport(ctx, auth.ActorFromContext(ctx), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"message": "import created", "import": imp})
}

type batchImportRequest struct {
	Imports []CreateImportInput `json:"imports"`
}

func (h *Handler) CreateBatchImport(c echo.Context) error {
	var req batchImportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	items, err := h.svc.CreateBatchImport(ctx, auth.ActorFromContext(ctx), req.Imports)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"message": "imports created", "imports": items})
}

func (h *Handler) CreateBatchImportFromSheet(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer f.Close()

	ctx := c.Request().Context()
	items, err := h.svc.CreateBatchImportFromSheet(ctx, auth.ActorFromContext(ctx), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"message": "imports created", "imports": items})
}

func (h *Handler) ImportTemplate(c echo.Context) error {
	var buf bytes.Buffer
	if err := ImportTemplate(&buf); err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="imports.xlsx"`)
	return c.Blob(http.StatusOK, sheet.ContentType, buf.Bytes())
}

func (h *Handler) GetImport(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	imp, err := h.svc.GetImport(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, imp)
}

func (h *Handler) ListImports(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListImports(c.Request().Context(), pg)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) UpdateImport(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in UpdateImportInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	imp, err := h.svc.UpdateImport(ctx, auth.ActorFromContext(ctx), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "import updated", "import": imp})
}

func (h *Handler) DeleteImport(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.svc.DeleteImport(ctx, auth.ActorFromContext(ctx), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "import deleted"})
}

// -- Export Handlers --

func (h *Handler) CreateExport(c echo.Context) error {
	var in CreateExportInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	exp, err := h.svc.CreateExport(ctx, auth.ActorFromContext(ctx), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"message": "export created", "export": exp})
}

func (h *Handler) GetExport(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	exp, err := h.svc.GetExport(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, exp)
}

func (h *Handler) ListExports(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListExports(c.Request().Context(), pg)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) ListExportsByPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListExportsByPatient(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) UpdateExport(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in UpdateExportInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	exp, err := h.svc.UpdateExport(ctx, auth.ActorFromContext(ctx), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "export updated", "export": exp})
}

func (h *Handler) DeleteExport(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteExport(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "export deleted"})
}
