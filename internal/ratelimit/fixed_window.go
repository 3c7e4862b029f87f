package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/orderflow/gateway/internal/observability"
	"github.com/orderflow/gateway/internal/ratelimit/store"
)

// FailureMode is what the limiter does when the store cannot answer.
type FailureMode string

// Failure modes.
const (
	// FailOpen admits the request and marks the decision degraded.
	FailOpen FailureMode = "fail_open"
	// FailClosed denies the request with the window as Retry-After.
	FailClosed FailureMode = "fail_closed"
)

// ParseFailureMode parses a configured failure mode.
func ParseFailureMode(s string) (FailureMode, error) {
	switch mode := FailureMode(s); mode {
	case FailOpen, FailClosed:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown failure mode %q (want %q or %q)", s, FailOpen, FailClosed)
	}
}

// Limiter defaults.
const (
	DefaultStoreTimeout     = 250 * time.Millisecond
	DefaultDegradedLogEvery = 10 * time.Second
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed bool
	// RetryAfter is set on denials: the time left in the window.
	RetryAfter time.Duration
	Limit      uint
	Remaining  uint
	// Count is the counter value after this request's increment, zero
	// when degraded.
	Count    int64
	Tier     Tier
	Key      Key
	Degraded bool
}

// Outcome returns the metric label of the decision.
func (d Decision) Outcome() string {
	switch {
	case d.Degraded:
		return observability.OutcomeDegraded
	case d.Allowed:
		return observability.OutcomeAllowed
	default:
		return observability.OutcomeDenied
	}
}

// Recorder receives limiter measurements. *observability.Metrics
// satisfies it.
type Recorder interface {
	RecordDecision(tier, outcome string, duration time.Duration)
	RecordStoreError()
	RecordDegraded(mode string)
}

type nopRecorder struct{}

func (nopRecorder) RecordDecision(string, string, time.Duration) {}
func (nopRecorder) RecordStoreError()                            {}
func (nopRecorder) RecordDegraded(string)                        {}

// FixedWindowLimiter charges each request to a fixed-window counter in the
// shared store.
type FixedWindowLimiter struct {
	store        store.CounterStore
	storeTimeout time.Duration
	failureMode  FailureMode
	logger       observability.Logger
	recorder     Recorder
	degradedLog  *rate.Sometimes
}

// LimiterOption is a functional option for the limiter.
type LimiterOption func(*FixedWindowLimiter)

// WithStoreTimeout bounds every store call.
func WithStoreTimeout(timeout time.Duration) LimiterOption {
	return func(l *FixedWindowLimiter) {
		l.storeTimeout = timeout
	}
}

// WithFailureMode sets the failure mode.
func WithFailureMode(mode FailureMode) LimiterOption {
	return func(l *FixedWindowLimiter) {
		l.failureMode = mode
	}
}

// WithLimiterLogger sets the logger.
func WithLimiterLogger(logger observability.Logger) LimiterOption {
	return func(l *FixedWindowLimiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(recorder Recorder) LimiterOption {
	return func(l *FixedWindowLimiter) {
		if recorder != nil {
			l.recorder = recorder
		}
	}
}

// WithDegradedLogInterval sets how often store failures are logged at
// warn level. Every failure is still logged at debug level.
func WithDegradedLogInterval(interval time.Duration) LimiterOption {
	return func(l *FixedWindowLimiter) {
		l.degradedLog = &rate.Sometimes{First: 1, Interval: interval}
	}
}

// NewFixedWindowLimiter creates a limiter over s.
func NewFixedWindowLimiter(s store.CounterStore, opts ...LimiterOption) (*FixedWindowLimiter, error) {
	if s == nil {
		return nil, errors.New("counter store is required")
	}

	l := &FixedWindowLimiter{
		store:        s,
		storeTimeout: DefaultStoreTimeout,
		failureMode:  FailOpen,
		logger:       observability.NopLogger(),
		recorder:     nopRecorder{},
		degradedLog:  &rate.Sometimes{First: 1, Interval: DefaultDegradedLogEvery},
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.storeTimeout <= 0 {
		return nil, fmt.Errorf("store timeout must be positive, got %s", l.storeTimeout)
	}
	if _, err := ParseFailureMode(string(l.failureMode)); err != nil {
		return nil, err
	}

	return l, nil
}

// FailureMode returns the configured failure mode.
func (l *FixedWindowLimiter) FailureMode() FailureMode {
	return l.failureMode
}

// Check charges one request to key and decides admission. It never
// returns an error: store failures are resolved by the failure mode.
func (l *FixedWindowLimiter) Check(ctx context.Context, key Key, policy TierPolicy) Decision {
	start := time.Now()
	decision := l.check(ctx, key, policy)
	l.recorder.RecordDecision(string(policy.Tier), decision.Outcome(), time.Since(start))
	return decision
}

func (l *FixedWindowLimiter) check(ctx context.Context, key Key, policy TierPolicy) Decision {
	// The increment must land even if the client goes away, so it only
	// inherits the request's values and is bounded by the store timeout.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.storeTimeout)
	defer cancel()

	count, ttl, err := l.store.IncrementWithTTL(storeCtx, key.String(), policy.Window)
	if err != nil {
		return l.degrade(ctx, key, policy, err)
	}

	decision := Decision{
		Limit: policy.PermitLimit,
		Count: count,
		Tier:  policy.Tier,
		Key:   key,
	}

	if count <= 0 || uint64(count) <= uint64(policy.PermitLimit) {
		decision.Allowed = true
		decision.Remaining = policy.PermitLimit - uint(max(count, 0))
		return decision
	}

	decision.RetryAfter = ttl
	if decision.RetryAfter <= 0 {
		decision.RetryAfter = policy.Window
	}
	return decision
}

func (l *FixedWindowLimiter) degrade(ctx context.Context, key Key, policy TierPolicy, err error) Decision {
	l.recorder.RecordStoreError()
	l.recorder.RecordDegraded(string(l.failureMode))

	logger := l.logger.WithContext(ctx)
	fields := []observability.Field{
		observability.String("failure_mode", string(l.failureMode)),
		observability.String("tier", string(policy.Tier)),
		observability.Bool("timeout", errors.Is(err, context.DeadlineExceeded)),
		observability.Error(err),
	}
	logger.Debug("counter store call failed", append(fields, observability.String("key", key.String()))...)
	l.degradedLog.Do(func() {
		logger.Warn("counter store unavailable, admission degraded", fields...)
	})

	decision := Decision{
		Limit:    policy.PermitLimit,
		Tier:     policy.Tier,
		Key:      key,
		Degraded: true,
	}
	if l.failureMode == FailOpen {
		decision.Allowed = true
		return decision
	}
	decision.RetryAfter = policy.Window
	return decision
}
