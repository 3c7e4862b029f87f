package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/orderflow/gateway/internal/observability"
)

// statusRecorder remembers the first status code and the body size
// written through it.
type statusRecorder struct {
	http.ResponseWriter
	code    int
	bytes   int
	written bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, code: http.StatusOK}
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.written {
		s.code = code
		s.written = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	s.written = true
	n, err := s.ResponseWriter.Write(p)
	s.bytes += n
	return n, err
}

// Flush forwards to the wrapped writer so streamed upstream responses
// are not buffered.
func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the wrapped writer to http.ResponseController.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Logging emits one access log entry per request. Server errors are
// logged at error level, rejected and otherwise failed requests at warn.
func Logging(logger observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			began := time.Now()
			rec := newStatusRecorder(w)

			next.ServeHTTP(rec, r)

			fields := []observability.Field{
				observability.String("method", r.Method),
				observability.String("path", r.URL.Path),
				observability.Int("status", rec.code),
				observability.Int("bytes", rec.bytes),
				observability.Duration("elapsed", time.Since(began)),
				observability.String("peer", r.RemoteAddr),
			}
			if r.URL.RawQuery != "" {
				fields = append(fields, observability.String("query", r.URL.RawQuery))
			}
			if ua := r.UserAgent(); ua != "" {
				fields = append(fields, observability.String("user_agent", ua))
			}
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					fields = append(fields, observability.String("route", pattern))
				}
			}

			log := logger.WithContext(r.Context())
			switch {
			case rec.code >= http.StatusInternalServerError:
				log.Error("request served", fields...)
			case rec.code >= http.StatusBadRequest:
				log.Warn("request served", fields...)
			default:
				log.Info("request served", fields...)
			}
		})
	}
}
