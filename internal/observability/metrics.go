// Package observability aggregates the Prometheus metrics of the service:
// HTTP traffic, authorization decisions and saga outcomes.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keyfold/keyfold/internal/gate"
	"github.com/keyfold/keyfold/internal/saga"
)

// Metrics collects the application's Prometheus metrics.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	decisionsTotal      *prometheus.CounterVec
	sagaExecutionsTotal *prometheus.CounterVec
	compensationsFailed *prometheus.CounterVec
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "keyfold_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "keyfold_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "keyfold_authz_decisions_total",
		Help: "Permission gate decisions by reason.",
	}, []string{"reason"})
	executions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "keyfold_saga_executions_total",
		Help: "Saga executions by name and terminal state.",
	}, []string{"saga", "state"})
	compensations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "keyfold_saga_compensation_failures_total",
		Help: "Failed saga compensations by name and step.",
	}, []string{"saga", "step"})
	registry.MustRegister(requests, duration, decisions, executions, compensations)
	return &Metrics{
		registry:            registry,
		handler:             promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:       requests,
		requestDuration:     duration,
		decisionsTotal:      decisions,
		sagaExecutionsTotal: executions,
		compensationsFailed: compensations,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for each HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Decision implements gate.Monitor.
func (m *Metrics) Decision(d gate.Decision) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(string(d.Reason)).Inc()
}

// ExecutionFinished implements saga.Monitor.
func (m *Metrics) ExecutionFinished(name string, state saga.State) {
	if m == nil {
		return
	}
	m.sagaExecutionsTotal.WithLabelValues(name, string(state)).Inc()
}

// CompensationFailed implements saga.Monitor.
func (m *Metrics) CompensationFailed(name, step string) {
	if m == nil {
		return
	}
	m.compensationsFailed.WithLabelValues(name, step).Inc()
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
