package main

import (
	"net/http"

	"github.com/orderflow/gateway/internal/auth"
	"github.com/orderflow/gateway/internal/config"
	"github.com/orderflow/gateway/internal/middleware"
	"github.com/orderflow/gateway/internal/observability"
)

// buildMiddleware returns the global chain, outermost first:
// RequestID -> Recovery -> Tracing -> Logging -> Metrics -> CORS -> Auth.
// Route metadata and admission run inside the router, so preflights
// answered by CORS are never charged.
func buildMiddleware(
	cfg *config.Config,
	logger observability.Logger,
	metrics *observability.Metrics,
	tracer *observability.Tracer,
	authenticator *auth.Authenticator,
) []func(http.Handler) http.Handler {
	chain := []func(http.Handler) http.Handler{
		middleware.RequestID(),
		middleware.Recovery(logger),
		observability.TracingMiddleware(tracer),
		middleware.Logging(logger),
		observability.MetricsMiddleware(metrics),
	}

	if cfg.CORS.Enabled {
		chain = append(chain, middleware.CORSFromConfig(cfg.CORS))
	}

	if authenticator != nil {
		chain = append(chain, authenticator.HTTPMiddleware())
	}

	return chain
}
