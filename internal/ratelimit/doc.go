// Package ratelimit implements admission control for the gateway.
//
// Every request is charged against exactly one fixed-window counter held
// in a shared store, so all gateway instances enforce the same budget.
// The decision pipeline is:
//
//	Resolver.Resolve      caller address from proxy headers or the peer
//	Selector.Select       tier and counter key from identity and route
//	FixedWindowLimiter    atomic increment and compare against the limit
//	WriteRejection        429 with Retry-After when denied
//
// Controller wires these together and exposes the result as HTTP
// middleware.
//
// # Tiers
//
// Three tiers exist. A request carrying an authenticated subject is
// always charged to the authenticated tier under scope "user". Otherwise
// anonymous-eligible routes charge the anonymous tier under scope "ip"
// and protected routes charge the stricter unauthenticated tier under
// scope "unauth". Keys have the form "{environment}:{scope}:{identity}".
//
// # Windows
//
// A window starts with the first request for a key and ends when the
// store expires the counter. Windows of different keys are not aligned,
// and a client straddling a window boundary can send up to twice the
// limit in a short burst.
//
// # Store failures
//
// When the store errors or does not answer within the store timeout the
// limiter applies its failure mode to every request alike: fail_open
// admits and marks the decision degraded, fail_closed denies with the
// window as Retry-After. Store calls are detached from request
// cancellation, so a cancelled request may still be charged.
package ratelimit
