package ratelimit

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/orderflow/gateway/internal/auth"
	"github.com/orderflow/gateway/internal/util"
)

// Tier names a rate limit policy.
type Tier string

// Tiers.
const (
	TierAnonymous       Tier = "anonymous"
	TierAuthenticated   Tier = "authenticated"
	TierUnauthenticated Tier = "unauthenticated"
)

// Default tier budgets.
const (
	DefaultAnonymousLimit       = 100
	DefaultAuthenticatedLimit   = 250
	DefaultUnauthenticatedLimit = 50
	DefaultWindow               = time.Minute

	// MinWindow is the store's expiry resolution.
	MinWindow = time.Millisecond
)

// TierPolicy is the budget of one tier.
type TierPolicy struct {
	Tier        Tier
	Scope       Scope
	PermitLimit uint
	Window      time.Duration
}

// AnonymousPolicy returns the anonymous tier, charged per address.
func AnonymousPolicy(limit uint, window time.Duration) TierPolicy {
	return TierPolicy{Tier: TierAnonymous, Scope: ScopeIP, PermitLimit: limit, Window: window}
}

// AuthenticatedPolicy returns the authenticated tier, charged per user.
func AuthenticatedPolicy(limit uint, window time.Duration) TierPolicy {
	return TierPolicy{Tier: TierAuthenticated, Scope: ScopeUser, PermitLimit: limit, Window: window}
}

// UnauthenticatedPolicy returns the fallback tier for protected routes
// reached without credentials, charged per address.
func UnauthenticatedPolicy(limit uint, window time.Duration) TierPolicy {
	return TierPolicy{Tier: TierUnauthenticated, Scope: ScopeUnauth, PermitLimit: limit, Window: window}
}

// Validate checks the limit and window.
func (p TierPolicy) Validate() error {
	if p.PermitLimit == 0 {
		return fmt.Errorf("%w: tier %s: permit limit must be positive", util.ErrPolicyInvalid, p.Tier)
	}
	if p.Window < MinWindow {
		return fmt.Errorf("%w: tier %s: window must be at least %s, got %s",
			util.ErrPolicyInvalid, p.Tier, MinWindow, p.Window)
	}
	return nil
}

// Policies holds the three tiers.
type Policies struct {
	Anonymous       TierPolicy
	Authenticated   TierPolicy
	Unauthenticated TierPolicy
}

// DefaultPolicies returns 100, 250 and 50 requests per minute.
func DefaultPolicies() Policies {
	return Policies{
		Anonymous:       AnonymousPolicy(DefaultAnonymousLimit, DefaultWindow),
		Authenticated:   AuthenticatedPolicy(DefaultAuthenticatedLimit, DefaultWindow),
		Unauthenticated: UnauthenticatedPolicy(DefaultUnauthenticatedLimit, DefaultWindow),
	}
}

// Validate checks every tier and that each slot holds the matching tier
// and scope.
func (p Policies) Validate() error {
	slots := []struct {
		policy TierPolicy
		tier   Tier
		scope  Scope
	}{
		{p.Anonymous, TierAnonymous, ScopeIP},
		{p.Authenticated, TierAuthenticated, ScopeUser},
		{p.Unauthenticated, TierUnauthenticated, ScopeUnauth},
	}

	var errs []error
	for _, slot := range slots {
		if slot.policy.Tier != slot.tier || slot.policy.Scope != slot.scope {
			errs = append(errs, fmt.Errorf("%w: %s slot holds tier %q with scope %q",
				util.ErrPolicyInvalid, slot.tier, slot.policy.Tier, slot.policy.Scope))
			continue
		}
		if err := slot.policy.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Selector maps a request to its tier and counter key.
type Selector struct {
	environment string
	policies    Policies
}

// NewSelector creates a Selector. environment prefixes every key and
// isolates deployments sharing one store.
func NewSelector(environment string, policies Policies) (*Selector, error) {
	if err := ValidateEnvironment(environment); err != nil {
		return nil, err
	}
	if err := policies.Validate(); err != nil {
		return nil, err
	}
	return &Selector{environment: environment, policies: policies}, nil
}

// ValidateEnvironment checks that environment can be used as a key prefix.
func ValidateEnvironment(environment string) error {
	if environment == "" {
		return fmt.Errorf("%w: environment must not be empty", util.ErrPolicyInvalid)
	}
	if strings.ContainsRune(environment, ':') || strings.IndexFunc(environment, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: environment %q must not contain ':' or whitespace", util.ErrPolicyInvalid, environment)
	}
	return nil
}

// Environment returns the key prefix.
func (s *Selector) Environment() string {
	return s.environment
}

// Policies returns the configured tiers.
func (s *Selector) Policies() Policies {
	return s.policies
}

// ChargedIdentity returns who a request is charged to: the caller's
// subject when authentication produced one, the resolved address
// otherwise.
func ChargedIdentity(address ClientIdentity, caller *auth.AuthenticatedIdentity) ClientIdentity {
	if caller != nil && caller.Subject != "" {
		return ClientIdentity{Kind: IdentityKindUserID, Value: caller.Subject}
	}
	return address
}

// Select picks the tier and key. The first matching rule wins:
//  1. a caller with a non-empty subject uses the authenticated tier keyed
//     by subject, whatever the route;
//  2. an anonymous-eligible route uses the anonymous tier keyed by address;
//  3. anything else uses the unauthenticated tier keyed by address.
func (s *Selector) Select(identity ClientIdentity, caller *auth.AuthenticatedIdentity, anonymousRoute bool) (TierPolicy, Key) {
	charged := ChargedIdentity(identity, caller)

	var policy TierPolicy
	switch {
	case charged.Kind == IdentityKindUserID:
		policy = s.policies.Authenticated
	case anonymousRoute:
		policy = s.policies.Anonymous
	default:
		policy = s.policies.Unauthenticated
	}

	return policy, NewKey(s.environment, policy.Scope, charged.Value)
}
