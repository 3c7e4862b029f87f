package health

import (
	"context"
)

// Pinger is the part of the counter store a readiness check needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreCheck reports the reachability of the counter store. When the
// limiter fails open an unreachable store only degrades the instance,
// since requests are still admitted; when it fails closed the instance
// rejects everything and is reported unhealthy.
func StoreCheck(store Pinger, failOpen bool) CheckFunc {
	return func(ctx context.Context) Check {
		if store == nil {
			return Check{Status: StatusUnhealthy, Message: "counter store not configured"}
		}

		if err := store.Ping(ctx); err != nil {
			status := StatusUnhealthy
			if failOpen {
				status = StatusDegraded
			}
			return Check{Status: status, Message: err.Error()}
		}

		return Check{Status: StatusHealthy}
	}
}
