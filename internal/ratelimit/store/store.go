// Package store provides the shared counter backends used by the
// admission limiter.
//
// A counter is created by the first increment of a key and lives for
// exactly one window: its expiry is set when it is created and is never
// extended, so the count resets only when the key expires. Stores never
// delete counters themselves.
package store

import (
	"context"
	"time"
)

// CounterStore is the single capability the limiter needs from a backend.
type CounterStore interface {
	// IncrementWithTTL atomically increments the counter at key and
	// returns the new count with the time left before it expires. A new
	// counter (or one found without an expiry) gets ttl as its lifetime.
	// ttlRemaining is zero when the store cannot report it.
	IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (count int64, ttlRemaining time.Duration, err error)
}

// Store is a CounterStore that can be health checked and released.
type Store interface {
	CounterStore

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend. It is safe to call more than once.
	Close() error
}
