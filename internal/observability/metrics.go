package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus metrics for the service.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	batchesTotal    *prometheus.CounterVec
	hookDenials     *prometheus.CounterVec
	shareOpsTotal   *prometheus.CounterVec
	feeValueCounter prometheus.Counter
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultgate_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vaultgate_http_request_duration_seconds",
		Help:    "HTTP request duration by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	batches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultgate_dispatch_batches_total",
		Help: "Dispatched batches by outcome.",
	}, []string{"outcome"})
	denials := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultgate_hook_denials_total",
		Help: "Hook rejections by validator phase.",
	}, []string{"phase"})
	shareOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultgate_share_operations_total",
		Help: "Share ledger mutations by kind.",
	}, []string{"kind"})
	feeValue := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vaultgate_fee_collections_total",
		Help: "Completed epoch fee collection runs.",
	})
	registry.MustRegister(requests, duration, batches, denials, shareOps, feeValue)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		batchesTotal:    batches,
		hookDenials:     denials,
		shareOpsTotal:   shareOps,
		feeValueCounter: feeValue,
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

// Middleware records metrics for every HTTP request.
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

// BatchExecuted counts one dispatched batch with its outcome label.
func (m *Metrics) BatchExecuted(outcome string) {
	if m == nil {
		return
	}
	m.batchesTotal.WithLabelValues(outcome).Inc()
}

// HookDenied counts a validator rejection in the given phase.
func (m *Metrics) HookDenied(phase string) {
	if m == nil {
		return
	}
	m.hookDenials.WithLabelValues(phase).Inc()
}

// ShareOperation counts one ledger mutation (mint/burn kinds).
func (m *Metrics) ShareOperation(kind string) {
	if m == nil {
		return
	}
	m.shareOpsTotal.WithLabelValues(kind).Inc()
}

// FeeCollectionCompleted counts a finished epoch fee collection run.
func (m *Metrics) FeeCollectionCompleted() {
	if m == nil {
		return
	}
	m.feeValueCounter.Inc()
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
