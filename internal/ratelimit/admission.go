package ratelimit

import (
	"context"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/orderflow/gateway/internal/auth"
	"github.com/orderflow/gateway/internal/observability"
)

const tracerName = "github.com/orderflow/gateway/internal/ratelimit"

// Route is the route metadata admission needs.
type Route struct {
	Name string
	// Anonymous marks routes open to callers without credentials.
	Anonymous bool
}

type routeContextKey struct{}

// ContextWithRoute adds route metadata to the context.
func ContextWithRoute(ctx context.Context, route Route) context.Context {
	return context.WithValue(ctx, routeContextKey{}, route)
}

// RouteFromContext extracts route metadata from the context.
func RouteFromContext(ctx context.Context) (Route, bool) {
	route, ok := ctx.Value(routeContextKey{}).(Route)
	return route, ok
}

// Controller sequences identity resolution, tier selection and the
// limiter. A request without route metadata is treated as a protected
// route.
type Controller struct {
	resolver *Resolver
	selector *Selector
	limiter  *FixedWindowLimiter
	tracer   trace.Tracer
	logger   observability.Logger
}

// ControllerOption is a functional option for the controller.
type ControllerOption func(*Controller)

// WithTracer sets the tracer for admission spans.
func WithTracer(tracer trace.Tracer) ControllerOption {
	return func(c *Controller) {
		c.tracer = tracer
	}
}

// WithControllerLogger sets the logger.
func WithControllerLogger(logger observability.Logger) ControllerOption {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewController creates a Controller.
func NewController(selector *Selector, limiter *FixedWindowLimiter, opts ...ControllerOption) (*Controller, error) {
	if selector == nil {
		return nil, errors.New("policy selector is required")
	}
	if limiter == nil {
		return nil, errors.New("limiter is required")
	}

	c := &Controller{
		resolver: NewResolver(),
		selector: selector,
		limiter:  limiter,
		tracer:   otel.Tracer(tracerName),
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Admit decides whether r may proceed.
func (c *Controller) Admit(r *http.Request) Decision {
	ctx, span := c.tracer.Start(r.Context(), "admission.check")
	defer span.End()

	identity := c.resolver.Resolve(r)
	caller, _ := auth.IdentityFromContext(ctx)
	route, _ := RouteFromContext(ctx)

	policy, key := c.selector.Select(identity, caller, route.Anonymous)
	decision := c.limiter.Check(ctx, key, policy)

	span.SetAttributes(
		attribute.String("admission.identity_kind", ChargedIdentity(identity, caller).Kind.String()),
		attribute.String("admission.tier", string(policy.Tier)),
		attribute.String("admission.scope", string(policy.Scope)),
		attribute.String("admission.outcome", decision.Outcome()),
		attribute.Int64("admission.count", decision.Count),
	)

	return decision
}

// Handler returns middleware that rejects denied requests with a 429 and
// passes the rest to next.
func (c *Controller) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision := c.Admit(r)
		if decision.Allowed {
			next.ServeHTTP(w, r)
			return
		}

		logger := c.logger.WithContext(r.Context())
		logger.Debug("request rejected by rate limit",
			observability.String("tier", string(decision.Tier)),
			observability.String("key", decision.Key.String()),
			observability.Duration("retry_after", decision.RetryAfter),
			observability.Bool("degraded", decision.Degraded),
		)
		if err := WriteRejection(w, decision); err != nil {
			logger.Debug("failed to write rejection", observability.Error(err))
		}
	})
}
