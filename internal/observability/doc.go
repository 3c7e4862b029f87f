// Package observability provides logging, metrics and tracing for the
// gateway.
//
// # Logging
//
//	logger, err := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	if err != nil {
//	    return err
//	}
//	defer func() { _ = logger.Sync() }()
//
//	logger.Info("admission denied", observability.String("tier", "anonymous"))
//
// # Metrics
//
// Metrics live on a private registry served by Handler. Besides HTTP
// request metrics it carries the admission metrics: decisions by tier and
// outcome, check latency, store errors, degraded decisions and the store
// breaker state.
//
// # Tracing
//
// NewTracer configures an OTLP gRPC exporter when enabled; otherwise spans
// are no-ops. TracingMiddleware opens a server span per request.
package observability
