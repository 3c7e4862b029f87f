package main

import (
	"net/http"
	"time"

	"github.com/orderflow/gateway/internal/config"
	"github.com/orderflow/gateway/internal/health"
	"github.com/orderflow/gateway/internal/observability"
	"github.com/orderflow/gateway/internal/proxy"
)

const (
	defaultMetricsPath    = "/metrics"
	metricsServerDeadline = 10 * time.Second
)

// newMetricsServer serves the Prometheus scrape endpoint on its own
// listener. The probes are mounted there as well, so an orchestrator can
// still reach them while the public listener drains.
func newMetricsServer(cfg config.MetricsConfig, metrics *observability.Metrics, checker *health.Checker) *http.Server {
	path := cfg.Path
	if path == "" {
		path = defaultMetricsPath
	}

	mux := http.NewServeMux()
	mux.Handle(path, metrics.Handler())
	mux.Handle(proxy.HealthPath, checker.LivenessHandler())
	mux.Handle(proxy.ReadyPath, checker.ReadinessHandler())

	return &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: metricsServerDeadline / 2,
		ReadTimeout:       metricsServerDeadline,
		WriteTimeout:      metricsServerDeadline,
	}
}
