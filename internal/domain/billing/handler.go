package billing

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
	// Bills and receipts – admin, accountant, receptionist
	g := api.Group("", auth.RequireRole(auth.RoleAccountant, auth.RoleReceptionist))
	g.GET("/bills", h.ListBills)
	g.GET("/bills/:id", h.GetBill)
	g.GET("/treatments/:treatment_id/bill", h.GetBillByTreatment)
	g.GET("/receipts/:id", h.GetReceipt)
	g.GET("/treatments/:treatment_id/receipts", h.ListReceiptsByTreatment)
	g.POST("/receipts", h.CreateReceipt)

	// Income reports – admin, accountant
	income := api.Group("/income", auth.RequireRole(auth.RoleAccountant))
	income.GET("", h.Income)
	income.GET("/net", h.NetIncome)
	income.GET("/spend", h.TotalSpend)
	income.GET("/report.xlsx", h.IncomeReport)
}

// -- Bill Handlers --

func (h *Handler) GetBill(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	b, err := h.svc.GetBill(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) ListBills(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListBills(c.Request().Context(), c.QueryParam("search"), pg)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) GetBillByTreatment(c echo.Context) error {
	view, err := h.svc.GetBillByTreatment(c.Request().Context(), c.Param("treatment_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// -- Receipt Handlers --

func (h *Handler) CreateReceipt(c echo.Context) error {
	var in CreateReceiptInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	rc, bill, err := h.svc.CreateReceipt(ctx, auth.ActorFromContext(ctx), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"message": "payment recorded", "receipt": rc, "bill": bill})
}

func (h *Handler) GetReceipt(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rc, err := h.svc.GetReceipt(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rc)
}

func (h *Handler) ListReceiptsByTreatment(c echo.Context) error {
	items, err := h.svc.ListReceiptsByTreatment(c.Request().Context(), c.Param("treatment_id"))
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Receipt{}
	}
	return c.JSON(http.StatusOK, items)
}

// -- Income Handlers --

func (h *Handler) Income(c echo.Context) error {
	from, to, err := h.svc.ParsePeriod(c.QueryParam("start"), c.QueryParam("end"))
	if err != nil {
		return err
	}
	report, err := h.svc.Income(c.Request().Context(), from, to)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) NetIncome(c echo.Context) error {
	from, to, err := h.svc.ParsePeriod(c.QueryParam("start"), c.QueryParam("end"))
	if err != nil {
		return err
	}
	report, err := h.svc.NetIncome(c.Request().Context(), from, to)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) TotalSpend(c echo.Context) error {
	from, to, err := h.svc.ParsePeriod(c.QueryParam("start"), c.QueryParam("end"))
	if err != nil {
		return err
	}
	report, err := h.svc.TotalSpend(c.Request().Context(), from, to)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) IncomeReport(c echo.Context) error {
	from, to, err := h.svc.ParsePeriod(c.QueryParam("start"), c.QueryParam("end"))
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := h.svc.IncomeSheet(c.Request().Context(), &buf, from, to); err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="income.xlsx"`)
	return c.Blob(http.StatusOK, sheet.ContentType, buf.Bytes())
}
