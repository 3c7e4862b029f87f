package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/orderflow/gateway/internal/observability"
)

// RequestIDHeader carries the correlation id in both directions.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLength bounds ids supplied by clients.
const maxRequestIDLength = 128

// RequestID tags every request with a correlation id, minting a UUID when
// the client did not send a usable one.
func RequestID() func(http.Handler) http.Handler {
	return RequestIDWithGenerator(uuid.NewString)
}

// RequestIDWithGenerator is RequestID with a caller supplied id source.
// An incoming id survives unless it is too long or holds bytes outside
// printable ASCII.
func RequestIDWithGenerator(next func() string) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if !acceptableRequestID(id) {
				id = next()
			}

			w.Header().Set(RequestIDHeader, id)
			h.ServeHTTP(w, r.WithContext(observability.ContextWithRequestID(r.Context(), id)))
		})
	}
}

func acceptableRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for _, c := range []byte(id) {
		if c <= ' ' || c > '~' {
			return false
		}
	}
	return true
}
