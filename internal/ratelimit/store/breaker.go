package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/orderflow/gateway/internal/observability"
	"github.com/orderflow/gateway/internal/util"
)

var errStoreClosed = errors.New("store closed")

// BreakerConfig configures a BreakerStore.
type BreakerConfig struct {
	Name string
	// FailureThreshold is the number of consecutive failures that opens
	// the breaker.
	FailureThreshold int
	// OpenTimeout is how long the breaker stays open before letting probe
	// calls through.
	OpenTimeout time.Duration
	// HalfOpenRequests is the number of probe calls allowed while half-open.
	HalfOpenRequests int
	Logger           observability.Logger
	// OnStateChange receives the new state (0=closed, 1=half-open, 2=open).
	OnStateChange func(state int)
}

// BreakerStore wraps a Store with a circuit breaker. While open, calls
// fail at once with util.ErrStoreUnavailable instead of waiting for the
// store timeout on every request.
type BreakerStore struct {
	next   Store
	cb     *gobreaker.CircuitBreaker
	logger observability.Logger
}

// NewBreakerStore wraps next.
func NewBreakerStore(next Store, cfg BreakerConfig) *BreakerStore {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	if cfg.Name == "" {
		cfg.Name = "counter-store"
	}

	threshold := safeIntToUint32(cfg.FailureThreshold)
	if threshold == 0 {
		threshold = 5
	}

	b := &BreakerStore{next: next, logger: logger}

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: max(safeIntToUint32(cfg.HalfOpenRequests), 1),
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("counter store breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(int(to))
			}
		},
	})

	return b
}

func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n) //nolint:gosec // bounds checked above
}

type incrementResult struct {
	count     int64
	remaining time.Duration
}

// IncrementWithTTL implements CounterStore.
func (b *BreakerStore) IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		count, remaining, err := b.next.IncrementWithTTL(ctx, key, ttl)
		if err != nil {
			return nil, err
		}
		return incrementResult{count: count, remaining: remaining}, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return 0, 0, util.NewStoreError("increment", key, 0, fmt.Errorf("breaker %s: %w", b.cb.Name(), err))
		}
		return 0, 0, err
	}

	r := res.(incrementResult)
	return r.count, r.remaining, nil
}

// Ping implements Store. It bypasses the breaker so readiness reflects
// the backend itself.
func (b *BreakerStore) Ping(ctx context.Context) error {
	return b.next.Ping(ctx)
}

// Close implements Store.
func (b *BreakerStore) Close() error {
	return b.next.Close()
}

// State returns the current breaker state.
func (b *BreakerStore) State() gobreaker.State {
	return b.cb.State()
}
