package proxy

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks forwarded traffic per route. A nil *Metrics records
// nothing.
type Metrics struct {
	inFlight         *prometheus.GaugeVec
	upstreamDuration *prometheus.HistogramVec
	errorsTotal      *prometheus.CounterVec
}

// NewMetrics registers the gateway_proxy_* collectors on reg, falling
// back to the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	const ns, sub = "gateway", "proxy"
	return &Metrics{
		inFlight: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub,
			Name: "in_flight_requests",
			Help: "Requests currently being forwarded upstream",
		}, []string{"route"}),
		upstreamDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: sub,
			Name:    "upstream_duration_seconds",
			Help:    "Time spent waiting on the upstream, including failed attempts",
			Buckets: prometheus.ExponentialBucketsRange(0.001, 10, 12),
		}, []string{"route"}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "errors_total",
			Help: "Upstream calls that produced no response, by cause",
		}, []string{"route", "error_type"}),
	}
}

// begin marks a request in flight and returns the func that settles it.
func (m *Metrics) begin(route string) func() {
	if m == nil {
		return func() {}
	}
	started := time.Now()
	gauge := m.inFlight.WithLabelValues(route)
	gauge.Inc()
	return func() {
		gauge.Dec()
		m.upstreamDuration.WithLabelValues(route).Observe(time.Since(started).Seconds())
	}
}

func (m *Metrics) recordError(route, errorType string) {
	if m != nil {
		m.errorsTotal.WithLabelValues(route, errorType).Inc()
	}
}
