package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
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

func jsonRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestHandler_CreateMaterial(t *testing.T) {
	h, _, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"name":"Gloves","unit":"box","price":100}`), rec)

	if err := h.CreateMaterial(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var body struct {
		Message  string   `json:"message"`
		Material Material `json:"material"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Material.Name != "Gloves" || body.Material.MinQuantity != DefaultMinQuantity {
		t.Errorf("unexpected material: %+v", body.Material)
	}
}

func TestHandler_CreateMaterial_Invalid(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"unit":"box"}`), httptest.NewRecorder())
	err := h.CreateMaterial(c)
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestHandler_GetMaterial_InvalidID(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	err := h.GetMaterial(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 HTTPError, got %v", err)
	}
}

func TestHandler_GetMaterial_NotFound(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	if err := h.GetMaterial(c); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestHandler_ListMaterials(t *testing.T) {
	h, env, e := newTestHandler()
	env.material(t, "Gloves", 0)
	env.material(t, "Masks", 0)
	env.material(t, "Gauze", 0)

	req := httptest.NewRequest(http.MethodGet, "/?page=2&size=2", nil)
	rec := httptest.NewRecorder()
	if err := h.ListMaterials(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Items       []Material `json:"items"`
		TotalPages  int        `json:"totalPages"`
		CurrentPage int        `json:"currentPage"`
		Total       int        `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 3 || body.TotalPages != 2 || body.CurrentPage != 2 || len(body.Items) != 1 {
		t.Errorf("unexpected envelope: %+v", body)
	}
}

func TestHandler_CreateExport_RecordsActor(t *testing.T) {
	h, env, e := newTestHandler()
	m := env.material(t, "Gloves", 10)
	actor := uuid.New()

	body := `{"material_id":"` + m.ID.String() + `","patient_id":"` + uuid.New().String() + `","quantity":3,"price":50}`
	req := jsonRequest(http.MethodPost, body)
	req = req.WithContext(auth.WithUser(req.Context(), actor.String(), []string{auth.RoleReceptionist}))
	rec := httptest.NewRecorder()

	if err := h.CreateExport(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var resp struct {
		Export Export `json:"export"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Export.TotalPrice != 150 {
		t.Errorf("expected total 150, got %d", resp.Export.TotalPrice)
	}
	if resp.Export.CreatedBy == nil || *resp.Export.CreatedBy != actor {
		t.Errorf("expected created_by %s, got %v", actor, resp.Export.CreatedBy)
	}
	if q := env.quantity(t, m.ID); q != 7 {
		t.Errorf("expected quantity 7, got %d", q)
	}
}

func TestHandler_CreateExport_InsufficientStock(t *testing.T) {
	h, env, e := newTestHandler()
	m := env.material(t, "Gloves", 1)
	body := `{"material_id":"` + m.ID.String() + `","patient_id":"` + uuid.New().String() + `","quantity":3}`
	err := h.CreateExport(e.NewContext(jsonRequest(http.MethodPost, body), httptest.NewRecorder()))
	if !errors.Is(err, apperr.ErrInsufficientStock) {
		t.Errorf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestHandler_CreateBatchImport(t *testing.T) {
	h, env, e := newTestHandler()
	m := env.material(t, "Gloves", 0)
	body := `{"imports":[{"material_id":"` + m.ID.String() + `","quantity":2,"price":5},{"material_id":"` + m.ID.String() + `","quantity":3,"price":5}]}`
	rec := httptest.NewRecorder()
	if err := h.CreateBatchImport(e.NewContext(jsonRequest(http.MethodPost, body), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if q := env.quantity(t, m.ID); q != 5 {
		t.Errorf("expected quantity 5, got %d", q)
	}
}

func TestHandler_CreateBatchImportFromSheet(t *testing.T) {
	h, env, e := newTestHandler()
	m := env.material(t, "Gloves", 0)

	var xlsx bytes.Buffer
	if err := sheet.Write(&xlsx, "Imports", []interface{}{"material_id", "quantity", "price"},
		[][]interface{}{{m.ID.String(), 4, 25}}); err != nil {
		t.Fatalf("write sheet: %v", err)
	}
	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	part, _ := mw.CreateFormFile("file", "imports.xlsx")
	_, _ = part.Write(xlsx.Bytes())
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/", &form)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	rec := httptest.NewRecorder()
	if err := h.CreateBatchImportFromSheet(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if q := env.quantity(t, m.ID); q != 4 {
		t.Errorf("expected quantity 4, got %d", q)
	}
}

func TestHandler_CreateBatchImportFromSheet_MissingFile(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(jsonRequest(http.MethodPost, `{}`), httptest.NewRecorder())
	err := h.CreateBatchImportFromSheet(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 HTTPError, got %v", err)
	}
}

func TestHandler_DeleteImport_WindowExpired(t *testing.T) {
	h, env, e := newTestHandler()
	m := env.material(t, "Gloves", 0)
	imp, _ := env.svc.CreateImport(context.Background(), uuid.Nil, CreateImportInput{MaterialID: m.ID, Quantity: 1})
	env.imports.items[imp.ID].CreatedAt = testNow.AddDate(0, 0, -1)

	c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(imp.ID.String())
	if err := h.DeleteImport(c); !errors.Is(err, apperr.ErrModificationWindowExpired) {
		t.Errorf("expected ErrModificationWindowExpired, got %v", err)
	}
}

func TestHandler_StockReport(t *testing.T) {
	h, env, e := newTestHandler()
	env.material(t, "Gloves", 3)
	rec := httptest.NewRecorder()
	if err := h.StockReport(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != sheet.ContentType {
		t.Errorf("unexpected content type %q", ct)
	}
	rows, err := sheet.ReadRows(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("expected 2 rows, got %d", len(rows))
	}
}

func TestHandler_ListExportsByPatient(t *testing.T) {
	h, env, e := newTestHandler()
	m := env.material(t, "Gloves", 10)
	patient := uuid.New()
	_, _ = env.svc.CreateExport(context.Background(), uuid.Nil, CreateExportInput{MaterialID: m.ID, PatientID: patient, Quantity: 1})
	_, _ = env.svc.CreateExport(context.Background(), uuid.Nil, CreateExportInput{MaterialID: m.ID, PatientID: uuid.New(), Quantity: 1})

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(patient.String())
	if err := h.ListExportsByPatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var items []Export
	_ = json.Unmarshal(rec.Body.Bytes(), &items)
	if len(items) != 1 {
		t.Errorf("expected 1 export, got %d", len(items))
	}
}
