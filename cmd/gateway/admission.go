package main

import (
	"github.com/orderflow/gateway/internal/auth"
	"github.com/orderflow/gateway/internal/config"
	"github.com/orderflow/gateway/internal/observability"
	"github.com/orderflow/gateway/internal/ratelimit"
	"github.com/orderflow/gateway/internal/ratelimit/store"
)

// policiesFor converts the tier section. Limits were validated positive.
func policiesFor(tiers config.TiersConfig) ratelimit.Policies {
	return ratelimit.Policies{
		Anonymous: ratelimit.AnonymousPolicy(
			uint(max(tiers.Anonymous.Limit, 0)), tiers.Anonymous.Window.Duration()),
		Authenticated: ratelimit.AuthenticatedPolicy(
			uint(max(tiers.Authenticated.Limit, 0)), tiers.Authenticated.Window.Duration()),
		Unauthenticated: ratelimit.UnauthenticatedPolicy(
			uint(max(tiers.Unauthenticated.Limit, 0)), tiers.Unauthenticated.Window.Duration()),
	}
}

// newAdmission builds the policy selector, the limiter and the controller.
// Any policy error is returned so startup aborts.
func newAdmission(
	cfg *config.Config,
	counters store.CounterStore,
	logger observability.Logger,
	metrics *observability.Metrics,
) (*ratelimit.Controller, *ratelimit.FixedWindowLimiter, error) {
	selector, err := ratelimit.NewSelector(cfg.Environment, policiesFor(cfg.Admission.Tiers))
	if err != nil {
		return nil, nil, err
	}

	mode, err := ratelimit.ParseFailureMode(cfg.Admission.FailureMode)
	if err != nil {
		return nil, nil, err
	}

	limiter, err := ratelimit.NewFixedWindowLimiter(counters,
		ratelimit.WithStoreTimeout(cfg.Admission.StoreTimeout.Duration()),
		ratelimit.WithFailureMode(mode),
		ratelimit.WithLimiterLogger(logger),
		ratelimit.WithRecorder(metrics),
	)
	if err != nil {
		return nil, nil, err
	}

	controller, err := ratelimit.NewController(selector, limiter,
		ratelimit.WithControllerLogger(logger),
	)
	if err != nil {
		return nil, nil, err
	}

	policies := selector.Policies()
	logger.Info("admission policies loaded",
		observability.String("environment", selector.Environment()),
		observability.String("failure_mode", string(mode)),
		observability.Uint("anonymous_limit", policies.Anonymous.PermitLimit),
		observability.Uint("authenticated_limit", policies.Authenticated.PermitLimit),
		observability.Uint("unauthenticated_limit", policies.Unauthenticated.PermitLimit),
	)

	return controller, limiter, nil
}

// newAuthenticator returns nil when the auth stage is disabled.
func newAuthenticator(
	cfg *config.Config,
	logger observability.Logger,
	metrics *observability.Metrics,
) (*auth.Authenticator, error) {
	if !cfg.Auth.Enabled {
		logger.Info("bearer token authentication disabled, every caller is unauthenticated")
		return nil, nil
	}

	return auth.NewAuthenticator(auth.Config{
		Secret:    []byte(cfg.Auth.HMACSecret),
		Issuer:    cfg.Auth.Issuer,
		Audience:  cfg.Auth.Audience,
		Header:    cfg.Auth.Header,
		ClockSkew: cfg.Auth.ClockSkew.Duration(),
	},
		auth.WithLogger(logger),
		auth.WithRecorder(metrics),
	)
}
