package observability

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// unmatchedRoute labels requests that matched no route pattern.
const unmatchedRoute = "unmatched"

// Admission outcomes used as metric label values.
const (
	OutcomeAllowed  = "allowed"
	OutcomeDenied   = "denied"
	OutcomeDegraded = "degraded"
)

// Metrics holds the gateway Prometheus metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	activeRequests  prometheus.Gauge
	buildInfo       *prometheus.GaugeVec

	decisions     *prometheus.CounterVec
	checkDuration *prometheus.HistogramVec
	storeErrors   prometheus.Counter
	degraded      *prometheus.CounterVec
	breakerState  prometheus.Gauge

	authResults *prometheus.CounterVec
}

// NewMetrics creates the gateway metrics under namespace ("gateway" when empty).
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "gateway"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{registry: reg}

	m.requestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	m.requestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"method", "route", "status"})

	m.activeRequests = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_requests",
		Help:      "Number of HTTP requests being served",
	})

	m.buildInfo = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build information",
	}, []string{"version", "commit", "build_time"})

	m.decisions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "admission_decisions_total",
		Help:      "Admission decisions by tier and outcome",
	}, []string{"tier", "outcome"})

	m.checkDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "admission_check_duration_seconds",
		Help:      "Time spent deciding admission, including the counter store call",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5},
	}, []string{"tier"})

	m.storeErrors = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "admission_store_errors_total",
		Help:      "Counter store calls that failed or timed out",
	})

	m.degraded = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "admission_degraded_total",
		Help:      "Decisions taken without the counter store, by failure mode",
	}, []string{"mode"})

	m.breakerState = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "store_breaker_state",
		Help:      "Counter store circuit breaker state (0=closed, 1=half-open, 2=open)",
	})

	m.authResults = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_results_total",
		Help:      "Bearer token verification results",
	}, []string{"result"})

	return m
}

// RecordRequest records a completed HTTP request. route must be a route
// pattern, never a raw path.
func (m *Metrics) RecordRequest(method, route string, status int, duration time.Duration) {
	statusStr := strconv.Itoa(status)
	m.requestsTotal.WithLabelValues(method, route, statusStr).Inc()
	m.requestDuration.WithLabelValues(method, route, statusStr).Observe(duration.Seconds())
}

// RecordDecision records one admission decision.
func (m *Metrics) RecordDecision(tier, outcome string, duration time.Duration) {
	m.decisions.WithLabelValues(tier, outcome).Inc()
	m.checkDuration.WithLabelValues(tier).Observe(duration.Seconds())
}

// RecordStoreError counts a failed counter store call.
func (m *Metrics) RecordStoreError() {
	m.storeErrors.Inc()
}

// RecordDegraded counts a decision taken under the given failure mode.
func (m *Metrics) RecordDegraded(mode string) {
	m.degraded.WithLabelValues(mode).Inc()
}

// SetBreakerState exports the store breaker state.
func (m *Metrics) SetBreakerState(state int) {
	m.breakerState.Set(float64(state))
}

// RecordAuthResult counts one auth stage result (authenticated, absent,
// invalid).
func (m *Metrics) RecordAuthResult(result string) {
	m.authResults.WithLabelValues(result).Inc()
}

// SetBuildInfo sets the build information metric.
func (m *Metrics) SetBuildInfo(version, commit, buildTime string) {
	m.buildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}

// Registry returns the Prometheus registry, for collectors owned by
// other packages such as the counter store.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// MetricsMiddleware records request count and latency. It must be mounted
// on a chi router so the matched route pattern is available as a label.
func MetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

			metrics.activeRequests.Inc()
			defer metrics.activeRequests.Dec()

			next.ServeHTTP(rw, r)

			metrics.RecordRequest(r.Method, routePattern(r), rw.status, time.Since(start))
		})
	}
}

func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return unmatchedRoute
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return unmatchedRoute
}

type metricsResponseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *metricsResponseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// Flush implements http.Flusher for streamed upstream responses.
func (rw *metricsResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack implements http.Hijacker for upgraded connections.
func (rw *metricsResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}
