// Package telemetry exposes Prometheus metrics for HTTP traffic and for the
// money and stock movements the clinic records.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clinic/clinic/internal/platform/apperr"
)

// Metrics methods are safe on a nil receiver so services can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	stockUnits    *prometheus.CounterVec
	receipts      prometheus.Counter
	receiptAmount prometheus.Counter
	billsCreated  prometheus.Counter
	rejections    *prometheus.CounterVec
	lowStock      *prometheus.GaugeVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		stockUnits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Name:      "stock_units_total",
			Help:      "Material units moved, by direction (in/out).",
		}, []string{"direction"}),
		receipts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Name:      "receipts_total",
			Help:      "Receipts recorded.",
		}),
		receiptAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Name:      "receipt_amount_total",
			Help:      "Sum of receipt amounts in minor currency units.",
		}),
		billsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Name:      "bills_created_total",
			Help:      "Bills opened for a new treatment.",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Name:      "business_rejections_total",
			Help:      "Writes rejected by a business rule, by kind.",
		}, []string{"kind"}),
		lowStock: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "clinic",
			Name:      "materials_low_stock",
			Help:      "Active materials below their reorder threshold.",
		}, []string{"tenant"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpDuration, m.stockUnits, m.receipts,
		m.receiptAmount, m.billsCreated, m.rejections, m.lowStock,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request count and latency keyed by the matched route
// template so ids do not explode label cardinality.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					status = apperr.HTTPStatus(err)
				}
			}
			method := c.Request().Method
			m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func (m *Metrics) StockIn(qty int64) {
	if m == nil || qty <= 0 {
		return
	}
	m.stockUnits.WithLabelValues("in").Add(float64(qty))
}

func (m *Metrics) StockOut(qty int64) {
	if m == nil || qty <= 0 {
		return
	}
	m.stockUnits.WithLabelValues("out").Add(float64(qty))
}

func (m *Metrics) Receipt(amount int64) {
	if m == nil {
		return
	}
	m.receipts.Inc()
	m.receiptAmount.Add(float64(amount))
}

func (m *Metrics) BillCreated() {
	if m == nil {
		return
	}
	m.billsCreated.Inc()
}

// Rejected counts err when it is a business-rule rejection.
func (m *Metrics) Rejected(err error) {
	if m == nil || err == nil {
		return
	}
	kind := apperr.Kind(err)
	if kind == "Unexpected" || kind == "NotFound" {
		return
	}
	m.rejections.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetLowStock(tenant string, n int) {
	if m == nil {
		return
	}
	if tenant == "" {
		tenant = "default"
	}
	m.lowStock.WithLabelValues(tenant).Set(float64(n))
}
