package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks total number of HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collections_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "code"},
	)

	// RequestDuration tracks request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "collections_http_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// ActiveRequests tracks currently active requests
	ActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "collections_http_active_requests",
			Help: "Number of in-flight HTTP requests",
		},
	)

	// ImportsTotal counts import attempts by outcome (success, invalid, failed).
	ImportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collections_imports_total",
			Help: "Account imports by outcome",
		},
		[]string{"outcome"},
	)

	// AccountsImported counts accounts created by imports.
	AccountsImported = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collections_accounts_imported_total",
			Help: "Accounts created by imports",
		},
	)

	// RollbacksTotal counts import rollbacks by outcome.
	RollbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collections_import_rollbacks_total",
			Help: "Import rollbacks by outcome",
		},
		[]string{"outcome"},
	)

	// FieldSuggestions counts AI mapping requests by outcome.
	FieldSuggestions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collections_ai_field_suggestions_total",
			Help: "AI field-mapping requests by outcome",
		},
		[]string{"outcome"},
	)

	// PaymentsTotal counts payments recorded by channel (crm, portal).
	PaymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collections_payments_total",
			Help: "Payments recorded by channel",
		},
		[]string{"channel"},
	)
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Metrics collects Prometheus request metrics. The route label is chi's
// pattern so path parameters do not explode cardinality.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ActiveRequests.Inc()
		defer ActiveRequests.Dec()

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
	})
}
