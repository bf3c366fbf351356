package telemetry

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/clinic/clinic/internal/platform/apperr"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.StockIn(5)
	m.StockOut(5)
	m.Receipt(100)
	m.BillCreated()
	m.Rejected(apperr.ErrOverpayment)
	m.SetLowStock("t", 3)
}

func TestCounters(t *testing.T) {
	m := New()
	m.StockIn(10)
	m.StockOut(4)
	m.StockOut(0)
	m.Receipt(400)
	m.Receipt(600)

	if got := testutil.ToFloat64(m.stockUnits.WithLabelValues("in")); got != 10 {
		t.Errorf("stock in = %v, want 10", got)
	}
	if got := testutil.ToFloat64(m.stockUnits.WithLabelValues("out")); got != 4 {
		t.Errorf("stock out = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.receipts); got != 2 {
		t.Errorf("receipts = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.receiptAmount); got != 1000 {
		t.Errorf("receipt amount = %v, want 1000", got)
	}
}

func TestRejected_OnlyBusinessRules(t *testing.T) {
	m := New()
	m.Rejected(fmt.Errorf("%w: need 10", apperr.ErrInsufficientStock))
	m.Rejected(apperr.ErrNotFound)
	m.Rejected(errors.New("db down"))

	if got := testutil.ToFloat64(m.rejections.WithLabelValues("InsufficientStock")); got != 1 {
		t.Errorf("InsufficientStock = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.rejections); got != 1 {
		t.Errorf("expected a single rejection series, got %d", got)
	}
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := New()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/v1/bills/:id", func(c echo.Context) error {
		return apperr.ErrNotFound
	})
	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/bills/abc", nil))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `clinic_http_requests_total{method="GET",route="/api/v1/bills/:id",status="404"} 1`) {
		t.Errorf("expected request counter in exposition, got:\n%s", body)
	}
}
