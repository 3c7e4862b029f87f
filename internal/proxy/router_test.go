package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/gateway/internal/auth"
	"github.com/orderflow/gateway/internal/health"
	"github.com/orderflow/gateway/internal/ratelimit"
	"github.com/orderflow/gateway/internal/ratelimit/store"
)

const rejectionJSON = `{"error":"Too many requests","message":"Rate limit exceeded. Please try again later.","retryAfter":"60 seconds"}`

type testUpstream struct {
	server *httptest.Server
	hits   atomic.Int64
}

func newTestUpstream(t *testing.T) *testUpstream {
	t.Helper()

	u := &testUpstream{}
	u.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.hits.Add(1)
		_, _ = io.WriteString(w, r.URL.Path)
	}))
	t.Cleanup(u.server.Close)
	return u
}

// fakeIdentity marks the caller as authenticated when X-Test-User is set.
func fakeIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := r.Header.Get("X-Test-User"); user != "" {
			r = r.WithContext(auth.ContextWithIdentity(r.Context(), &auth.AuthenticatedIdentity{Subject: user}))
		}
		next.ServeHTTP(w, r)
	})
}

func newTestController(t *testing.T, s store.CounterStore) *ratelimit.Controller {
	t.Helper()

	selector, err := ratelimit.NewSelector("Production", ratelimit.Policies{
		Anonymous:       ratelimit.AnonymousPolicy(3, time.Minute),
		Authenticated:   ratelimit.AuthenticatedPolicy(4, time.Minute),
		Unauthenticated: ratelimit.UnauthenticatedPolicy(1, time.Minute),
	})
	require.NoError(t, err)
	limiter, err := ratelimit.NewFixedWindowLimiter(s)
	require.NoError(t, err)
	controller, err := ratelimit.NewController(selector, limiter)
	require.NoError(t, err)
	return controller
}

type gatewayFixture struct {
	server  *httptest.Server
	catalog *testUpstream
	orders  *testUpstream
}

func newGateway(t *testing.T) *gatewayFixture {
	t.Helper()

	counters := store.NewMemoryStore()
	t.Cleanup(func() { _ = counters.Close() })

	f := &gatewayFixture{catalog: newTestUpstream(t), orders: newTestUpstream(t)}
	routes := []Route{
		{Name: "catalog", PathPrefix: "/api/catalog", Upstream: mustURL(t, f.catalog.server.URL), Anonymous: true},
		{Name: "orders", PathPrefix: "/api/orders/", Upstream: mustURL(t, f.orders.server.URL)},
	}

	checker := health.NewChecker("test", nil)
	checker.RegisterCheck("counter_store", health.StoreCheck(counters, true))

	handler, err := NewRouter(routes,
		WithMiddleware(fakeIdentity),
		WithAdmission(newTestController(t, counters).Handler),
		WithHealth(checker),
	)
	require.NoError(t, err)

	f.server = httptest.NewServer(handler)
	t.Cleanup(f.server.Close)
	return f
}

func (f *gatewayFixture) get(t *testing.T, path, user string) (*http.Response, string) {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, f.server.URL+path, nil)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestRouter_ForwardsByPrefix(t *testing.T) {
	t.Parallel()

	f := newGateway(t)

	tests := []struct {
		path     string
		wantCode int
		wantBody string
	}{
		{path: "/api/catalog", wantCode: http.StatusOK, wantBody: "/api/catalog"},
		{path: "/api/catalog/items/7", wantCode: http.StatusOK, wantBody: "/api/catalog/items/7"},
		{path: "/api/orders/", wantCode: http.StatusOK, wantBody: "/api/orders/"},
		{path: "/api/catalogue", wantCode: http.StatusNotFound},
		{path: "/unknown", wantCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		resp, body := f.get(t, tt.path, "user-"+tt.path)
		assert.Equal(t, tt.wantCode, resp.StatusCode, tt.path)
		if tt.wantBody != "" {
			assert.Equal(t, tt.wantBody, body, tt.path)
		} else {
			assert.JSONEq(t, `{"error":"not found","message":"no matching route"}`, body, tt.path)
		}
	}
}

func TestRouter_AnonymousRouteUsesIPTier(t *testing.T) {
	t.Parallel()

	f := newGateway(t)

	for i := 0; i < 3; i++ {
		resp, _ := f.get(t, "/api/catalog/items", "")
		require.Equal(t, http.StatusOK, resp.StatusCode, "request %d", i+1)
	}

	resp, body := f.get(t, "/api/catalog/items", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
	assert.Equal(t, rejectionJSON, body)
	assert.Equal(t, int64(3), f.catalog.hits.Load())
}

func TestRouter_ProtectedRouteUsesUnauthTier(t *testing.T) {
	t.Parallel()

	f := newGateway(t)

	resp, _ := f.get(t, "/api/orders/1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := f.get(t, "/api/orders/1", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, rejectionJSON, body)
	assert.Equal(t, int64(1), f.orders.hits.Load())

	// The anonymous tier keeps its own counter for the same address.
	resp, _ = f.get(t, "/api/catalog", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_AuthenticatedUserSharesBudgetAcrossRoutes(t *testing.T) {
	t.Parallel()

	f := newGateway(t)

	for _, path := range []string{"/api/catalog", "/api/orders/1", "/api/catalog/x", "/api/orders/2"} {
		resp, _ := f.get(t, path, "alice")
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	resp, _ := f.get(t, "/api/orders/3", "alice")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp, _ = f.get(t, "/api/orders/3", "bob")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_HealthBypassesAdmission(t *testing.T) {
	t.Parallel()

	f := newGateway(t)

	for i := 0; i < 10; i++ {
		resp, _ := f.get(t, HealthPath, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, body := f.get(t, ReadyPath, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"counter_store"`)
	assert.Zero(t, f.catalog.hits.Load()+f.orders.hits.Load())
}

func TestRouter_WithoutHealth(t *testing.T) {
	t.Parallel()

	handler, err := NewRouter(nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, HealthPath, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_RouteMetadata(t *testing.T) {
	t.Parallel()

	var got ratelimit.Route
	var ok bool
	capture := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok = ratelimit.RouteFromContext(r.Context())
			w.WriteHeader(http.StatusNoContent)
		})
	}

	handler, err := NewRouter(
		[]Route{{Name: "catalog", PathPrefix: "/api/catalog", Upstream: mustURL(t, "http://catalog"), Anonymous: true}},
		WithAdmission(capture),
	)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/catalog/items", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.True(t, ok)
	assert.Equal(t, ratelimit.Route{Name: "catalog", Anonymous: true}, got)
}

func TestNewRouter_InvalidRoutes(t *testing.T) {
	t.Parallel()

	_, err := NewRouter([]Route{
		{Name: "a", PathPrefix: "/a", Upstream: mustURL(t, "http://a")},
		{Name: "b", PathPrefix: "/a/", Upstream: mustURL(t, "http://b")},
	})
	assert.ErrorIs(t, err, ErrDuplicateRoute)

	_, err = NewRouter([]Route{{Name: "a", PathPrefix: "/a"}})
	assert.ErrorIs(t, err, ErrInvalidTargetURL)
}
