package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/gateway/internal/observability"
)

func serveWithRequestID(t *testing.T, mw func(http.Handler) http.Handler, incoming string) (header, seen string) {
	t.Helper()

	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = observability.RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/catalog", nil)
	if incoming != "" {
		req.Header.Set(RequestIDHeader, incoming)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec.Header().Get(RequestIDHeader), seen
}

func TestRequestID_MintsUUID(t *testing.T) {
	t.Parallel()

	for _, incoming := range []string{"", strings.Repeat("x", maxRequestIDLength+1), "has space", "tab\tid"} {
		header, seen := serveWithRequestID(t, RequestID(), incoming)

		_, err := uuid.Parse(header)
		require.NoError(t, err, "incoming %q", incoming)
		assert.Equal(t, header, seen)
	}
}

func TestRequestID_KeepsClientValue(t *testing.T) {
	t.Parallel()

	id := strings.Repeat("r", maxRequestIDLength)
	header, seen := serveWithRequestID(t, RequestID(), id)

	assert.Equal(t, id, header)
	assert.Equal(t, id, seen)
}

func TestRequestIDWithGenerator(t *testing.T) {
	t.Parallel()

	fixed := RequestIDWithGenerator(func() string { return "gen-1" })

	tests := []struct {
		incoming string
		want     string
	}{
		{incoming: "", want: "gen-1"},
		{incoming: "trace-abc", want: "trace-abc"},
		{incoming: "bad\x01id", want: "gen-1"},
		{incoming: "café", want: "gen-1"},
	}

	for _, tt := range tests {
		header, seen := serveWithRequestID(t, fixed, tt.incoming)
		assert.Equal(t, tt.want, header, "incoming %q", tt.incoming)
		assert.Equal(t, tt.want, seen, "incoming %q", tt.incoming)
	}
}
