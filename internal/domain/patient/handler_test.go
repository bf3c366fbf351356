package patient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
)

func newTestHandler() (*Handler, *mockRepo, mockRecordCounter, *echo.Echo) {
	svc, repo, records := newTestService()
	return NewHandler(svc), repo, records, echo.New()
}

func TestHandler_Create(t *testing.T) {
	h, _, _, e := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"full_name":"Tran Thi B","gender":"female"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	if err := h.Create(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var body struct {
		Patient Patient `json:"patient"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Patient.FullName != "Tran Thi B" || body.Patient.Gender != GenderFemale {
		t.Errorf("unexpected patient: %+v", body.Patient)
	}
}

func TestHandler_List(t *testing.T) {
	h, _, _, e := newTestHandler()
	_, _ = h.svc.CreatePatient(context.Background(), Input{FullName: "A"})
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?page=1&size=5", nil), rec)

	if err := h.List(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["total"] != float64(1) || body["currentPage"] != float64(1) {
		t.Errorf("unexpected envelope: %v", body)
	}
}

func TestHandler_Delete_Blocked(t *testing.T) {
	h, _, records, e := newTestHandler()
	p, _ := h.svc.CreatePatient(context.Background(), Input{FullName: "A"})
	records[p.ID] = 1

	c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())
	if err := h.Delete(c); !errors.Is(err, apperr.ErrReferentialBlock) {
		t.Errorf("expected ErrReferentialBlock, got %v", err)
	}
}

func TestHandler_Get_InvalidID(t *testing.T) {
	h, _, _, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("nope")
	httpErr, ok := h.Get(c).(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 HTTPError, got %v", httpErr)
	}
}
