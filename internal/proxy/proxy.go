package proxy

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/orderflow/gateway/internal/config"
	"github.com/orderflow/gateway/internal/observability"
)

// Route is one entry of the route table.
type Route struct {
	Name       string
	PathPrefix string
	Upstream   *url.URL
	Anonymous  bool
}

// RoutesFromConfig converts and validates the configured routes.
func RoutesFromConfig(cfgs []config.RouteConfig) ([]Route, error) {
	routes := make([]Route, 0, len(cfgs))
	for _, rc := range cfgs {
		target, err := parseUpstream(rc.Upstream)
		if err != nil {
			return nil, NewInvalidTargetError(rc.Name, rc.Upstream, err)
		}
		routes = append(routes, Route{
			Name:       rc.Name,
			PathPrefix: normalizePrefix(rc.PathPrefix),
			Upstream:   target,
			Anonymous:  rc.Anonymous,
		})
	}

	if err := validateRoutes(routes); err != nil {
		return nil, err
	}
	return routes, nil
}

func parseUpstream(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("missing host")
	}
	return u, nil
}

// normalizePrefix drops a trailing slash so "/api" and "/api/" mount
// the same subtree.
func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if len(prefix) > 1 {
		prefix = strings.TrimRight(prefix, "/")
		if prefix == "" {
			prefix = "/"
		}
	}
	return prefix
}

func validateRoutes(routes []Route) error {
	names := make(map[string]struct{}, len(routes))
	prefixes := make(map[string]string, len(routes))

	for _, route := range routes {
		prefix := normalizePrefix(route.PathPrefix)

		switch {
		case route.Name == "":
			return &ProxyError{Op: "validate_routes", Cause: errors.New("route name is required")}
		case !strings.HasPrefix(prefix, "/"):
			return &ProxyError{Op: "validate_routes", Route: route.Name,
				Cause: fmt.Errorf("path prefix %q must start with /", route.PathPrefix)}
		case prefix == HealthPath || prefix == ReadyPath:
			return &ProxyError{Op: "validate_routes", Route: route.Name,
				Cause: fmt.Errorf("path prefix %q is reserved", prefix)}
		case route.Upstream == nil:
			return &ProxyError{Op: "validate_routes", Route: route.Name,
				Cause: fmt.Errorf("%w: upstream is required", ErrInvalidTargetURL)}
		}

		if _, ok := names[route.Name]; ok {
			return &ProxyError{Op: "validate_routes", Route: route.Name,
				Cause: fmt.Errorf("%w: name %q", ErrDuplicateRoute, route.Name)}
		}
		names[route.Name] = struct{}{}

		if other, ok := prefixes[prefix]; ok {
			return &ProxyError{Op: "validate_routes", Route: route.Name,
				Cause: fmt.Errorf("%w: prefix %s already used by %s", ErrDuplicateRoute, prefix, other)}
		}
		prefixes[prefix] = route.Name
	}

	return nil
}

// UpstreamProxy forwards requests of one route to its upstream.
type UpstreamProxy struct {
	route         Route
	logger        observability.Logger
	metrics       *Metrics
	transport     http.RoundTripper
	flushInterval time.Duration
	proxy         *httputil.ReverseProxy
}

// ProxyOption is a functional option for configuring the proxy.
type ProxyOption func(*UpstreamProxy)

// WithProxyLogger sets the logger for the proxy.
func WithProxyLogger(logger observability.Logger) ProxyOption {
	return func(p *UpstreamProxy) {
		p.logger = logger
	}
}

// WithTransport sets the transport for the proxy.
func WithTransport(transport http.RoundTripper) ProxyOption {
	return func(p *UpstreamProxy) {
		p.transport = transport
	}
}

// WithProxyMetrics sets the upstream metrics.
func WithProxyMetrics(metrics *Metrics) ProxyOption {
	return func(p *UpstreamProxy) {
		p.metrics = metrics
	}
}

// WithFlushInterval sets the flush interval for streaming responses.
func WithFlushInterval(interval time.Duration) ProxyOption {
	return func(p *UpstreamProxy) {
		p.flushInterval = interval
	}
}

// NewUpstreamProxy creates a reverse proxy for route.
func NewUpstreamProxy(route Route, opts ...ProxyOption) *UpstreamProxy {
	p := &UpstreamProxy{
		route:         route,
		logger:        observability.NopLogger(),
		flushInterval: -1, // Immediate flush
	}

	for _, opt := range opts {
		opt(p)
	}

	p.proxy = &httputil.ReverseProxy{
		Rewrite:       p.rewrite,
		Transport:     p.transport,
		FlushInterval: p.flushInterval,
		ErrorHandler:  p.handleError,
	}

	return p
}

// ServeHTTP implements http.Handler.
func (p *UpstreamProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	done := p.metrics.begin(p.route.Name)
	defer done()

	p.proxy.ServeHTTP(w, r)
}

// rewrite points the outbound request at the upstream. The inbound path
// is kept as is and joined to the upstream's base path.
func (p *UpstreamProxy) rewrite(pr *httputil.ProxyRequest) {
	pr.SetURL(p.route.Upstream)

	// Append the peer to the chain the client sent.
	pr.Out.Header["X-Forwarded-For"] = pr.In.Header["X-Forwarded-For"]
	pr.SetXForwarded()

	observability.InjectTraceContext(pr.Out.Context(), pr.Out.Header)
}

func (p *UpstreamProxy) handleError(w http.ResponseWriter, r *http.Request, err error) {
	errorType, sentinel := classifyUpstreamError(err)
	p.metrics.recordError(p.route.Name, errorType)

	cause := err
	if sentinel != err {
		cause = fmt.Errorf("%w: %w", sentinel, err)
	}
	proxyErr := &ProxyError{
		Op:     "round_trip",
		Route:  p.route.Name,
		Target: p.route.Upstream.String(),
		Cause:  cause,
	}

	logger := p.logger.WithContext(r.Context())
	if errorType == "canceled" {
		logger.Debug("client went away before upstream answered", observability.Error(proxyErr))
	} else {
		logger.Error("proxy error",
			observability.String("path", r.URL.Path),
			observability.String("method", r.Method),
			observability.Error(proxyErr),
		)
	}

	w.Header().Set("Content-Type", "application/json")
	if errors.Is(sentinel, ErrUpstreamTimeout) {
		w.WriteHeader(http.StatusGatewayTimeout)
		_, _ = io.WriteString(w, `{"error":"gateway timeout","message":"upstream request timed out"}`)
		return
	}
	w.WriteHeader(http.StatusBadGateway)
	_, _ = io.WriteString(w, `{"error":"bad gateway","message":"failed to proxy request"}`)
}
