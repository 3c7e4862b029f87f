// Package middleware provides the generic HTTP middleware of the gateway.
//
//   - RequestID: request id propagation and generation
//   - Recovery: panic recovery with stack trace logging
//   - Logging: one structured access log line per request
//   - CORS: browser cross-origin headers, preflights answered in place
//
// Middleware functions follow the standard Go pattern and are mounted on
// the chi router ahead of authentication and admission:
//
//	r := chi.NewRouter()
//	r.Use(
//	    middleware.RequestID(),
//	    middleware.Recovery(logger),
//	    middleware.Logging(logger),
//	)
package middleware
