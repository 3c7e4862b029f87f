package main

import (
	"context"
	"fmt"

	"github.com/orderflow/gateway/internal/config"
	"github.com/orderflow/gateway/internal/observability"
	"github.com/orderflow/gateway/internal/ratelimit/store"
)

// newCounterStore connects the configured counter store and wraps it in a
// circuit breaker when enabled.
func newCounterStore(
	ctx context.Context,
	cfg *config.Config,
	logger observability.Logger,
	metrics *observability.Metrics,
) (store.Store, error) {
	var counters store.Store

	switch cfg.Admission.Backend {
	case config.BackendMemory:
		logger.Warn("using in-memory counter store, limits are per instance")
		counters = store.NewMemoryStore()
	default:
		redisStore, err := store.NewRedisStoreWithConfig(ctx, redisConfigFor(cfg, logger, metrics))
		if err != nil {
			return nil, fmt.Errorf("failed to connect counter store: %w", err)
		}
		logger.Info("connected to redis counter store",
			observability.String("address", cfg.Redis.Address),
			observability.Int("db", cfg.Redis.DB),
		)
		counters = redisStore
	}

	if b := cfg.Admission.Breaker; b.Enabled {
		counters = store.NewBreakerStore(counters, store.BreakerConfig{
			Name:             "counter_store",
			FailureThreshold: b.FailureThreshold,
			OpenTimeout:      b.OpenTimeout.Duration(),
			HalfOpenRequests: b.HalfOpenRequests,
			Logger:           logger,
			OnStateChange:    metrics.SetBreakerState,
		})
	}

	return counters, nil
}

func redisConfigFor(cfg *config.Config, logger observability.Logger, metrics *observability.Metrics) *store.RedisConfig {
	rc := store.DefaultRedisConfig()
	rc.Address = cfg.Redis.Address
	rc.Password = cfg.Redis.Password
	rc.DB = cfg.Redis.DB
	rc.PoolSize = cfg.Redis.PoolSize
	rc.MinIdleConns = cfg.Redis.MinIdleConns
	rc.MaxRetries = cfg.Redis.MaxRetries
	rc.DialTimeout = cfg.Redis.DialTimeout.Duration()
	rc.ReadTimeout = cfg.Redis.ReadTimeout.Duration()
	rc.WriteTimeout = cfg.Redis.WriteTimeout.Duration()
	rc.ConnectionRetries = cfg.Redis.ConnectionRetries
	rc.Logger = logger
	rc.Registerer = metrics.Registry()
	return rc
}
