// Package health provides the liveness and readiness endpoints of the
// gateway.
//
// Liveness (/healthz) only reports that the process serves HTTP.
// Readiness (/readyz) runs the registered checks, typically a ping of the
// counter store, and answers 503 when a check reports unhealthy.
//
// # Usage
//
//	checker := health.NewChecker(version, logger)
//	checker.RegisterCheck("counter_store", health.StoreCheck(store, true))
//
//	r.Get("/healthz", checker.LivenessHandler())
//	r.Get("/readyz", checker.ReadinessHandler())
package health
