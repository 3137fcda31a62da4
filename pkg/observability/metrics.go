package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Access control
	RateLimitRejectionsTotal  *prometheus.CounterVec
	RateLimitStoreErrorsTotal prometheus.Counter
	CSRFFailuresTotal         *prometheus.CounterVec
	PermissionDenialsTotal    *prometheus.CounterVec

	// Audit
	AuditEntriesTotal       *prometheus.CounterVec
	AuditWriteFailuresTotal prometheus.Counter
	AuditPrunedTotal        prometheus.Counter

	// Background jobs
	SweepRemovedTotal  *prometheus.CounterVec
	ClockOffsetSeconds prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edugate_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "edugate_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		RateLimitRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edugate_rate_limit_rejections_total",
				Help: "Requests rejected by the rate limiter",
			},
			[]string{"scope"},
		),
		RateLimitStoreErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "edugate_rate_limit_store_errors_total",
				Help: "Rate limit checks that failed open because the store errored",
			},
		),
		CSRFFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edugate_csrf_failures_total",
				Help: "Requests rejected by CSRF validation",
			},
			[]string{"reason"},
		),
		PermissionDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edugate_permission_denials_total",
				Help: "Requests denied by the permission matrix or record rules",
			},
			[]string{"resource", "reason"},
		),
		AuditEntriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edugate_audit_entries_total",
				Help: "Audit entries written",
			},
			[]string{"action", "entity_type"},
		),
		AuditWriteFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "edugate_audit_write_failures_total",
				Help: "Audit entries that could not be persisted",
			},
		),
		AuditPrunedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "edugate_audit_pruned_total",
				Help: "Audit entries removed by retention",
			},
		),
		SweepRemovedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edugate_statestore_swept_total",
				Help: "Expired state entries removed by background sweeps",
			},
			[]string{"store"},
		),
		ClockOffsetSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "edugate_clock_offset_seconds",
				Help: "Offset between the local clock and the database clock",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.RateLimitRejectionsTotal,
		m.RateLimitStoreErrorsTotal,
		m.CSRFFailuresTotal,
		m.PermissionDenialsTotal,
		m.AuditEntriesTotal,
		m.AuditWriteFailuresTotal,
		m.AuditPrunedTotal,
		m.SweepRemovedTotal,
		m.ClockOffsetSeconds,
	)

	return m
}

func (m *Metrics) RateLimitRejected(scope string) {
	if m != nil {
		m.RateLimitRejectionsTotal.WithLabelValues(scope).Inc()
	}
}

func (m *Metrics) RateLimitStoreError() {
	if m != nil {
		m.RateLimitStoreErrorsTotal.Inc()
	}
}

func (m *Metrics) CSRFFailed(reason string) {
	if m != nil {
		m.CSRFFailuresTotal.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) PermissionDenied(resource, reason string) {
	if m != nil {
		m.PermissionDenialsTotal.WithLabelValues(resource, reason).Inc()
	}
}

func (m *Metrics) AuditWritten(action, entityType string) {
	if m != nil {
		m.AuditEntriesTotal.WithLabelValues(action, entityType).Inc()
	}
}

func (m *Metrics) AuditWriteFailed() {
	if m != nil {
		m.AuditWriteFailuresTotal.Inc()
	}
}

func (m *Metrics) AuditPruned(n int64) {
	if m != nil && n > 0 {
		m.AuditPrunedTotal.Add(float64(n))
	}
}

func (m *Metrics) SweepRemoved(store string, n int) {
	if m != nil && n > 0 {
		m.SweepRemovedTotal.WithLabelValues(store).Add(float64(n))
	}
}

func (m *Metrics) ClockOffset(d time.Duration) {
	if m != nil {
		m.ClockOffsetSeconds.Set(d.Seconds())
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// routeLabel uses the mux route template so IDs do not explode cardinality
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if metrics == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in Prometheus text format
func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
