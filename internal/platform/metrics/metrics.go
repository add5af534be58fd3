// Package metrics exposes Prometheus collectors for the portal: inbound HTTP
// traffic, outbound backend calls and poll/notification activity.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pharmacy_portal"

// Collector holds every metric the portal records. Each Collector owns its
// registry, so several can coexist in one process.
type Collector struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlightGauge   prometheus.Gauge

	BackendCallsTotal   *prometheus.CounterVec
	BackendCallDuration *prometheus.HistogramVec

	PollsTotal         *prometheus.CounterVec
	StatusChangesTotal *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec
}

// NewCollector registers the portal metrics plus the Go runtime and process
// collectors on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Collector{
		registry: reg,

		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "route", "status"}),

		InFlightGauge: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),

		BackendCallsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "calls_total",
			Help:      "Calls made to the marketplace API by method, route, and status code.",
		}, []string{"method", "route", "status"}),

		BackendCallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "call_duration_seconds",
			Help:      "Marketplace API call latency distribution.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"method", "route"}),

		PollsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "polls_total",
			Help:      "Background list refreshes by outcome (ok, error, skipped).",
		}, []string{"list", "outcome"}),

		StatusChangesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "status_changes_total",
			Help:      "Order status transitions applied, by target status.",
		}, []string{"kind", "status"}),

		NotificationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "recorded_total",
			Help:      "Patient notifications recorded, by template.",
		}, []string{"template"}),
	}
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveCall records one outbound backend call. Status 0 means the request
// never got a response.
func (c *Collector) ObserveCall(method, route string, status int, elapsed time.Duration) {
	c.BackendCallsTotal.WithLabelValues(method, route, statusLabel(status)).Inc()
	c.BackendCallDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObservePoll records the outcome of one background refresh.
func (c *Collector) ObservePoll(list, outcome string) {
	c.PollsTotal.WithLabelValues(list, outcome).Inc()
}

// ObserveStatusChange records an applied order status transition.
func (c *Collector) ObserveStatusChange(kind, status string) {
	c.StatusChangesTotal.WithLabelValues(kind, status).Inc()
}

// ObserveNotification records a rendered patient notification.
func (c *Collector) ObserveNotification(template string) {
	c.NotificationsTotal.WithLabelValues(template).Inc()
}

// Middleware records request count, latency and in-flight gauge for every
// request. The route label is the echo route pattern, not the raw path.
func (c *Collector) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if ctx.Path() == "/metrics" {
				return next(ctx)
			}
			c.InFlightGauge.Inc()
			defer c.InFlightGauge.Dec()

			start := time.Now()
			err := next(ctx)

			status := ctx.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if status < 400 {
					status = http.StatusInternalServerError
				}
			}
			route := ctx.Path()
			if route == "" {
				route = "unmatched"
			}
			method := ctx.Request().Method
			code := strconv.Itoa(status)
			c.RequestsTotal.WithLabelValues(method, route, code).Inc()
			c.RequestDuration.WithLabelValues(method, route, code).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func statusLabel(status int) string {
	if status == 0 {
		return "error"
	}
	return strconv.Itoa(status)
}
