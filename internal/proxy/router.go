package proxy

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/orderflow/gateway/internal/health"
	"github.com/orderflow/gateway/internal/observability"
	"github.com/orderflow/gateway/internal/ratelimit"
)

// Paths served by the gateway itself.
const (
	HealthPath = "/healthz"
	ReadyPath  = "/readyz"
)

type routerOptions struct {
	middleware []func(http.Handler) http.Handler
	admission  func(http.Handler) http.Handler
	checker    *health.Checker
	logger     observability.Logger
	proxyOpts  []ProxyOption
}

// RouterOption configures NewRouter.
type RouterOption func(*routerOptions)

// WithMiddleware appends middleware applied to every request, in order.
func WithMiddleware(mw ...func(http.Handler) http.Handler) RouterOption {
	return func(o *routerOptions) {
		o.middleware = append(o.middleware, mw...)
	}
}

// WithAdmission sets the admission stage run on every routed request
// after its route metadata is known.
func WithAdmission(admission func(http.Handler) http.Handler) RouterOption {
	return func(o *routerOptions) {
		o.admission = admission
	}
}

// WithHealth serves liveness and readiness from checker.
func WithHealth(checker *health.Checker) RouterOption {
	return func(o *routerOptions) {
		o.checker = checker
	}
}

// WithRouterLogger sets the logger for the router and its proxies.
func WithRouterLogger(logger observability.Logger) RouterOption {
	return func(o *routerOptions) {
		o.logger = logger
	}
}

// WithProxyOptions passes options to every upstream proxy.
func WithProxyOptions(opts ...ProxyOption) RouterOption {
	return func(o *routerOptions) {
		o.proxyOpts = append(o.proxyOpts, opts...)
	}
}

// NewRouter builds the gateway handler: global middleware, health
// endpoints and one mounted subtree per route. Health endpoints bypass
// admission.
func NewRouter(routes []Route, opts ...RouterOption) (http.Handler, error) {
	o := &routerOptions{logger: observability.NopLogger()}
	for _, opt := range opts {
		opt(o)
	}

	if err := validateRoutes(routes); err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(o.middleware...)
	r.NotFound(notFoundHandler(o.logger))

	if o.checker != nil {
		r.Get(HealthPath, o.checker.LivenessHandler())
		r.Get(ReadyPath, o.checker.ReadinessHandler())
	}

	proxyOpts := append([]ProxyOption{WithProxyLogger(o.logger)}, o.proxyOpts...)

	for _, route := range routes {
		upstream := NewUpstreamProxy(route, proxyOpts...)

		r.Route(normalizePrefix(route.PathPrefix), func(sub chi.Router) {
			sub.Use(routeContext(route))
			if o.admission != nil {
				sub.Use(o.admission)
			}
			sub.Handle("/", upstream)
			sub.Handle("/*", upstream)
		})

		o.logger.Info("route mounted",
			observability.String("route", route.Name),
			observability.String("prefix", route.PathPrefix),
			observability.String("upstream", route.Upstream.String()),
			observability.Bool("anonymous", route.Anonymous),
		)
	}

	return r, nil
}

// routeContext tags the request with the route's admission metadata.
func routeContext(route Route) func(http.Handler) http.Handler {
	meta := ratelimit.Route{Name: route.Name, Anonymous: route.Anonymous}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(ratelimit.ContextWithRoute(r.Context(), meta)))
		})
	}
}

func notFoundHandler(logger observability.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger.WithContext(r.Context()).Debug("route not found",
			observability.String("path", r.URL.Path),
			observability.String("method", r.Method),
		)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"not found","message":"no matching route"}`)
	}
}
