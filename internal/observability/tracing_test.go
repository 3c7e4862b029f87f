package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewTracer_Disabled(t *testing.T) {
	t.Parallel()

	tracer, err := NewTracer(context.Background(), TracerConfig{ServiceName: "test", Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, tracer)
	assert.Nil(t, tracer.provider)
	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestNewTracer_EnabledWithoutEndpoint(t *testing.T) {
	tracer, err := NewTracer(context.Background(), TracerConfig{
		ServiceName:  "test",
		Enabled:      true,
		SamplingRate: 1.0,
	})
	require.NoError(t, err)
	require.NotNil(t, tracer.provider)

	_, span := tracer.StartSpan(context.Background(), "op")
	assert.True(t, span.SpanContext().IsValid())

	ro, ok := span.(sdktrace.ReadOnlySpan)
	require.True(t, ok)
	name, found := ro.Resource().Set().Value("service.name")
	require.True(t, found)
	assert.Equal(t, "test", name.AsString())
	span.End()

	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestSamplerFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		rate     float64
		expected string
	}{
		{name: "always", rate: 1.0, expected: "AlwaysOnSampler"},
		{name: "above one", rate: 2.0, expected: "AlwaysOnSampler"},
		{name: "never", rate: 0, expected: "AlwaysOffSampler"},
		{name: "ratio", rate: 0.5, expected: "TraceIDRatioBased{0.5}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, samplerFor(tt.rate).Description())
		})
	}
}

func newRecordingTracer(t *testing.T) (*Tracer, *tracetest.SpanRecorder) {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	return &Tracer{provider: provider, tracer: provider.Tracer("test")}, recorder
}

func TestTracingMiddleware(t *testing.T) {
	t.Parallel()

	tracer, recorder := newRecordingTracer(t)

	var traceID, spanID string
	handler := TracingMiddleware(tracer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = TraceIDFromContext(r.Context())
		spanID = SpanIDFromContext(r.Context())
		w.WriteHeader(http.StatusBadGateway)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotEmpty(t, traceID)
	assert.NotEmpty(t, spanID)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /api/orders", spans[0].Name())
	assert.Equal(t, traceID, spans[0].SpanContext().TraceID().String())
}

func TestInjectTraceContext(t *testing.T) {
	t.Parallel()

	header := http.Header{}
	InjectTraceContext(context.Background(), header)
	assert.Empty(t, header.Get("traceparent"))
}
