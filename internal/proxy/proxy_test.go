package proxy

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/gateway/internal/config"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()

	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestRoutesFromConfig(t *testing.T) {
	t.Parallel()

	routes, err := RoutesFromConfig([]config.RouteConfig{
		{Name: "catalog", PathPrefix: "/api/catalog/", Upstream: "http://catalog:8080", Anonymous: true},
		{Name: "orders", PathPrefix: "/api/orders", Upstream: "https://orders.internal/base"},
	})
	require.NoError(t, err)
	require.Len(t, routes, 2)

	assert.Equal(t, "catalog", routes[0].Name)
	assert.Equal(t, "/api/catalog", routes[0].PathPrefix)
	assert.Equal(t, "catalog:8080", routes[0].Upstream.Host)
	assert.True(t, routes[0].Anonymous)

	assert.Equal(t, "/api/orders", routes[1].PathPrefix)
	assert.Equal(t, "/base", routes[1].Upstream.Path)
	assert.False(t, routes[1].Anonymous)
}

func TestRoutesFromConfig_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		routes  []config.RouteConfig
		wantErr error
		wantMsg string
	}{
		{
			name:    "unsupported scheme",
			routes:  []config.RouteConfig{{Name: "a", PathPrefix: "/a", Upstream: "ftp://files"}},
			wantErr: ErrInvalidTargetURL,
		},
		{
			name:    "missing host",
			routes:  []config.RouteConfig{{Name: "a", PathPrefix: "/a", Upstream: "http://"}},
			wantErr: ErrInvalidTargetURL,
		},
		{
			name: "duplicate name",
			routes: []config.RouteConfig{
				{Name: "a", PathPrefix: "/a", Upstream: "http://a"},
				{Name: "a", PathPrefix: "/b", Upstream: "http://b"},
			},
			wantErr: ErrDuplicateRoute,
		},
		{
			name: "duplicate prefix after trailing slash",
			routes: []config.RouteConfig{
				{Name: "a", PathPrefix: "/api", Upstream: "http://a"},
				{Name: "b", PathPrefix: "/api/", Upstream: "http://b"},
			},
			wantErr: ErrDuplicateRoute,
		},
		{
			name:    "reserved prefix",
			routes:  []config.RouteConfig{{Name: "a", PathPrefix: "/healthz", Upstream: "http://a"}},
			wantMsg: "reserved",
		},
		{
			name:    "relative prefix",
			routes:  []config.RouteConfig{{Name: "a", PathPrefix: "api", Upstream: "http://a"}},
			wantMsg: "must start with /",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			routes, err := RoutesFromConfig(tt.routes)
			require.Error(t, err)
			assert.Nil(t, routes)

			var proxyErr *ProxyError
			assert.True(t, errors.As(err, &proxyErr))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestNormalizePrefix(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"/":         "/",
		"//":        "/",
		"/api":      "/api",
		"/api/":     "/api",
		" /api/v1/": "/api/v1",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizePrefix(in), "input %q", in)
	}
}

func TestUpstreamProxy_Forward(t *testing.T) {
	t.Parallel()

	seenCh := make(chan *http.Request, 1)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenCh <- r.Clone(r.Context())
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	}))
	t.Cleanup(upstream.Close)

	target := mustURL(t, upstream.URL+"/base")
	p := NewUpstreamProxy(Route{Name: "orders", PathPrefix: "/api/orders", Upstream: target})

	gateway := httptest.NewServer(p)
	t.Cleanup(gateway.Close)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, gateway.URL+"/api/orders/42?expand=lines", nil)
	require.NoError(t, err)
	req.Header.Set("X-Forwarded-For", "198.51.100.1")
	req.Header.Set("Connection", "keep-alive, X-Secret")
	req.Header.Set("X-Secret", "hop")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "yes", resp.Header.Get("X-Upstream"))

	seen := <-seenCh
	assert.Equal(t, http.MethodPost, seen.Method)
	assert.Equal(t, "/base/api/orders/42", seen.URL.Path)
	assert.Equal(t, "expand=lines", seen.URL.RawQuery)
	assert.Equal(t, target.Host, seen.Host)
	assert.Equal(t, "198.51.100.1, 127.0.0.1", seen.Header.Get("X-Forwarded-For"))
	assert.Equal(t, "http", seen.Header.Get("X-Forwarded-Proto"))
	assert.Equal(t, mustURL(t, gateway.URL).Host, seen.Header.Get("X-Forwarded-Host"))
	assert.Empty(t, seen.Header.Get("X-Secret"))
}

func TestUpstreamProxy_UpstreamDown(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.NotFoundHandler())
	target := mustURL(t, upstream.URL)
	upstream.Close()

	metrics := NewMetrics(prometheus.NewRegistry())
	p := NewUpstreamProxy(Route{Name: "orders", PathPrefix: "/api/orders", Upstream: target},
		WithProxyMetrics(metrics))

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"bad gateway","message":"failed to proxy request"}`, rec.Body.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.errorsTotal.WithLabelValues("orders", "unavailable")))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.upstreamDuration))
	assert.Zero(t, testutil.ToFloat64(metrics.inFlight.WithLabelValues("orders")))
}

func TestClassifyUpstreamError(t *testing.T) {
	t.Parallel()

	label, sentinel := classifyUpstreamError(errors.New("dial tcp: connection refused"))
	assert.Equal(t, "unavailable", label)
	assert.Equal(t, ErrUpstreamUnavailable, sentinel)

	label, sentinel = classifyUpstreamError(&url.Error{Op: "Get", URL: "http://x", Err: timeoutError{}})
	assert.Equal(t, "timeout", label)
	assert.Equal(t, ErrUpstreamTimeout, sentinel)
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
