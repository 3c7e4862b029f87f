package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/orderflow/gateway/internal/observability"
)

// panicResponse is written when a handler panics before responding.
const panicResponse = `{"error":"internal server error"}`

// Recovery turns handler panics into a logged 500. http.ErrAbortHandler
// propagates so the server still tears the connection down.
func Recovery(logger observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if err, isErr := v.(error); isErr && errors.Is(err, http.ErrAbortHandler) {
					panic(v)
				}

				logger.WithContext(r.Context()).Error("handler panicked",
					observability.String("method", r.Method),
					observability.String("path", r.URL.Path),
					observability.Any("panic", v),
					observability.String("stack", string(debug.Stack())),
				)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(panicResponse))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
