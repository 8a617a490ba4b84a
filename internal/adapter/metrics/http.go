package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// routeUnmatched labels requests that hit no registered route, keeping the
// route label bounded no matter what paths clients request.
const routeUnmatched = "unmatched"

// HTTPMetrics holds Prometheus metrics for the request/response API.
// Websocket upgrades are long-lived and tracked by WebSocketMetrics instead.
type HTTPMetrics struct {
	Requests    *prometheus.CounterVec
	Duration    *prometheus.HistogramVec
	InFlight    prometheus.Gauge
	RateLimited *prometheus.CounterVec

	skip map[string]bool
}

// NewHTTPMetrics creates and registers HTTP metrics on the given registry.
// Requests to skipRoutes (echo route patterns) are not recorded.
func NewHTTPMetrics(reg prometheus.Registerer, skipRoutes ...string) *HTTPMetrics {
	m := &HTTPMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests by route, method and status class.",
		}, []string{"route", "method", "status"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"route", "method"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "HTTP requests currently being served.",
		}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-client rate limiter, by route.",
		}, []string{"route"}),
		skip: map[string]bool{"/metrics": true},
	}
	for _, route := range skipRoutes {
		m.skip[route] = true
	}

	reg.MustRegister(m.Requests, m.Duration, m.InFlight, m.RateLimited)
	return m
}

// Middleware records every request except health checks, the metrics
// endpoint and the configured skip routes.
func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if m.skip[route] || strings.HasPrefix(route, "/health/") {
				return next(c)
			}
			if route == "" {
				route = routeUnmatched
			}

			m.InFlight.Inc()
			defer m.InFlight.Dec()

			method := c.Request().Method
			timer := prometheus.NewTimer(m.Duration.WithLabelValues(route, method))
			err := next(c)
			timer.ObserveDuration()

			m.Requests.WithLabelValues(route, method, statusClass(responseStatus(c, err))).Inc()
			return err
		}
	}
}

// responseStatus is the status the client will see. An error that has not
// been rendered yet is turned into a response by echo after this middleware.
func responseStatus(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code
	}
	return http.StatusInternalServerError
}

// RecordRateLimited counts a request the rate limiter turned away.
func (m *HTTPMetrics) RecordRateLimited(route string) {
	m.RateLimited.WithLabelValues(route).Inc()
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}
