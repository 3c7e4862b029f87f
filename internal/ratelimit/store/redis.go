package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/orderflow/gateway/internal/observability"
	"github.com/orderflow/gateway/internal/util"
)

// incrementWithTTLScript increments KEYS[1] and arms its expiry when the
// counter is new or was left without one.
// ARGV[1] = window in milliseconds
// Returns {count, pttl}.
var incrementWithTTLScript = redis.NewScript(`
	local count = redis.call('INCR', KEYS[1])
	local ttl = redis.call('PTTL', KEYS[1])
	if count == 1 or ttl < 0 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
		ttl = tonumber(ARGV[1])
	end
	return {count, ttl}
`)

// redisMetrics are the per-operation metrics of a RedisStore.
type redisMetrics struct {
	operations      *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	connectRetries  prometheus.Counter
	connectFailures prometheus.Counter
}

func newRedisMetrics(reg prometheus.Registerer) *redisMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &redisMetrics{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "redis_store_operations_total",
			Help: "Total number of Redis counter store operations",
		}, []string{"operation", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "redis_store_operation_duration_seconds",
			Help:    "Duration of Redis counter store operations in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
		connectRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "redis_store_connection_retries_total",
			Help: "Total number of Redis connection retry attempts",
		}),
		connectFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "redis_store_connection_errors_total",
			Help: "Total number of failed Redis connection attempts",
		}),
	}
}

func (m *redisMetrics) observe(operation string, start time.Time, err error) {
	m.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	status := "success"
	if err != nil {
		status = "error"
	}
	m.operations.WithLabelValues(operation, status).Inc()
}

// RedisConfig holds configuration for the Redis counter store.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	// Prefix is prepended to every key. Keys already carry the
	// environment, so it is normally empty.
	Prefix string

	PoolSize     int
	MinIdleConns int
	MaxRetries   int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// ConnectionRetries is the number of extra ping attempts at startup.
	ConnectionRetries int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration

	Logger     observability.Logger
	Registerer prometheus.Registerer
}

// DefaultRedisConfig returns a RedisConfig with default values.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Address:           "localhost:6379",
		PoolSize:          10,
		MinIdleConns:      2,
		MaxRetries:        1,
		DialTimeout:       5 * time.Second,
		ReadTimeout:       time.Second,
		WriteTimeout:      time.Second,
		ConnectionRetries: 3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
	}
}

// RedisStore implements Store on a shared Redis deployment. Every
// increment is one EVALSHA round trip.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	logger  observability.Logger
	metrics *redisMetrics

	mu     sync.Mutex
	closed bool
}

// NewRedisStore connects to addr with default settings.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	cfg := DefaultRedisConfig()
	cfg.Address = addr
	cfg.Password = password
	cfg.DB = db
	return NewRedisStoreWithConfig(context.Background(), cfg)
}

// NewRedisStoreWithConfig creates the client and pings it until it answers
// or the retries run out, backing off with decorrelated jitter between
// attempts.
func NewRedisStoreWithConfig(ctx context.Context, cfg *RedisConfig) (*RedisStore, error) {
	if cfg == nil {
		cfg = DefaultRedisConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	s := &RedisStore{
		client:  client,
		prefix:  cfg.Prefix,
		logger:  logger.With(observability.String("component", "redis_store")),
		metrics: newRedisMetrics(cfg.Registerer),
	}

	if err := s.connectWithRetry(ctx, cfg); err != nil {
		_ = client.Close()
		return nil, err
	}

	return s, nil
}

func (s *RedisStore) connectWithRetry(ctx context.Context, cfg *RedisConfig) error {
	retries := max(cfg.ConnectionRetries, 0)
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	backoff := newDecorrelatedJitterBackoff(cfg.InitialBackoff, cfg.MaxBackoff)

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		lastErr = s.client.Ping(pingCtx).Err()
		cancel()

		if lastErr == nil {
			if attempt > 0 {
				s.logger.Info("redis connection established after retry",
					observability.String("address", cfg.Address),
					observability.Int("attempt", attempt+1),
				)
			}
			return nil
		}

		s.metrics.connectFailures.Inc()
		if attempt == retries {
			break
		}

		wait := backoff.next(attempt)
		s.logger.Warn("redis connection failed, retrying",
			observability.String("address", cfg.Address),
			observability.Int("attempt", attempt+1),
			observability.Duration("backoff", wait),
			observability.Error(lastErr),
		)
		s.metrics.connectRetries.Inc()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("redis connection aborted: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("failed to connect to redis at %s after %d attempts: %w", cfg.Address, retries+1, lastErr)
}

// decorrelatedJitterBackoff computes sleep = min(cap, rand(base, prev*3)).
type decorrelatedJitterBackoff struct {
	base    time.Duration
	cap     time.Duration
	current time.Duration
}

func newDecorrelatedJitterBackoff(base, capDuration time.Duration) *decorrelatedJitterBackoff {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	if capDuration < base {
		capDuration = base
	}
	return &decorrelatedJitterBackoff{base: base, cap: capDuration, current: base}
}

func (b *decorrelatedJitterBackoff) next(attempt int) time.Duration {
	if attempt == 0 {
		b.current = b.base
		return b.current
	}

	upper := b.current * 3
	wait := b.base
	if span := int64(upper - b.base); span > 0 {
		wait += time.Duration(rand.Int64N(span)) //nolint:gosec // jitter only
	}
	b.current = min(wait, b.cap)
	return b.current
}

// IncrementWithTTL implements CounterStore.
func (s *RedisStore) IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, util.NewStoreError("increment", key, 0, err)
	}

	start := time.Now()
	ttlMillis := max(ttl.Milliseconds(), 1)

	result, err := incrementWithTTLScript.Run(ctx, s.client, []string{s.prefix + key}, ttlMillis).Result()
	if err == nil {
		var count, remaining int64
		count, remaining, err = parseIncrementResult(result)
		if err == nil {
			s.metrics.observe("increment", start, nil)
			return count, time.Duration(max(remaining, 0)) * time.Millisecond, nil
		}
	}

	s.metrics.observe("increment", start, err)
	return 0, 0, util.NewStoreError("increment", key, time.Since(start), err)
}

func parseIncrementResult(result interface{}) (count, ttlMillis int64, err error) {
	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("redis script returned unexpected result: %v", result)
	}
	count, ok = values[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("redis script returned unexpected count type: %T", values[0])
	}
	ttlMillis, ok = values[1].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("redis script returned unexpected ttl type: %T", values[1])
	}
	return count, ttlMillis, nil
}

// Ping implements Store.
func (s *RedisStore) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.client.Ping(ctx).Err()
	s.metrics.observe("ping", start, err)
	if err != nil {
		return util.NewStoreError("ping", "", time.Since(start), err)
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}

// Client returns the underlying Redis client.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}
