package billing

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/sheet"
)

func newTestHandler() (*Handler, *testEnv, *echo.Echo) {
	env := newTestEnv()
	return NewHandler(env.svc), env, echo.New()
}

func TestHandler_CreateReceipt(t *testing.T) {
	h, env, e := newTestHandler()
	b := env.bill(t, "TRT1", 500)
	actor := uuid.New()

	body := `{"bill_id":"` + b.ID.String() + `","amount":200,"payment_method":"card"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithUser(req.Context(), actor.String(), []string{auth.RoleAccountant}))
	rec := httptest.NewRecorder()

	if err := h.CreateReceipt(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var resp struct {
		Message string  `json:"message"`
		Receipt Receipt `json:"receipt"`
		Bill    Bill    `json:"bill"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Receipt.PaymentMethod != PaymentCard || resp.Receipt.CreatedBy == nil || *resp.Receipt.CreatedBy != actor {
		t.Errorf("unexpected receipt: %+v", resp.Receipt)
	}
	if resp.Bill.Status != StatusPartiallyPaid || resp.Bill.RemainingAmount != 300 {
		t.Errorf("unexpected bill: %+v", resp.Bill)
	}
}

func TestHandler_CreateReceipt_Overpayment(t *testing.T) {
	h, env, e := newTestHandler()
	b := env.bill(t, "TRT1", 500)
	body := `{"bill_id":"` + b.ID.String() + `","amount":501}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	err := h.CreateReceipt(e.NewContext(req, httptest.NewRecorder()))
	if !errors.Is(err, apperr.ErrOverpayment) {
		t.Errorf("expected ErrOverpayment, got %v", err)
	}
	if apperr.HTTPStatus(err) != http.StatusBadRequest {
		t.Errorf("expected 400 mapping, got %d", apperr.HTTPStatus(err))
	}
}

func TestHandler_GetBill(t *testing.T) {
	h, env, e := newTestHandler()
	b := env.bill(t, "TRT1", 500)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(b.ID.String())
	if err := h.GetBill(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("bad")
	err := h.GetBill(c)
	if httpErr, ok := err.(*echo.HTTPError); !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_GetBillByTreatment(t *testing.T) {
	h, env, e := newTestHandler()
	env.bill(t, "TRT1", 500)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("treatment_id")
	c.SetParamValues("TRT1")
	if err := h.GetBillByTreatment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var view BillView
	_ = json.Unmarshal(rec.Body.Bytes(), &view)
	if view.RemainingAmount != 500 || view.Bill == nil {
		t.Errorf("unexpected view: %+v", view)
	}
}

func TestHandler_ListReceiptsByTreatment_Empty(t *testing.T) {
	h, _, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("treatment_id")
	c.SetParamValues("none")
	if err := h.ListReceiptsByTreatment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty array, got %s", rec.Body.String())
	}
}

func TestHandler_Income(t *testing.T) {
	h, env, e := newTestHandler()
	b := env.bill(t, "TRT1", 1000)
	env.pay(t, b.ID, 400)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/?start=2024-03-15&end=2024-03-15", nil)
	if err := h.Income(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var report IncomeReport
	_ = json.Unmarshal(rec.Body.Bytes(), &report)
	if report.TotalIncome != 400 || report.ReceiptCount != 1 {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestHandler_Income_BadRange(t *testing.T) {
	h, _, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/?start=nope", nil)
	if err := h.Income(e.NewContext(req, httptest.NewRecorder())); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestHandler_IncomeReport(t *testing.T) {
	h, _, e := newTestHandler()
	rec := httptest.NewRecorder()
	if err := h.IncomeReport(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(echo.HeaderContentType) != sheet.ContentType {
		t.Errorf("unexpected content type %q", rec.Header().Get(echo.HeaderContentType))
	}
}
