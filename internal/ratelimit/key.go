package ratelimit

// Scope is the dimension a counter key is partitioned by.
type Scope string

// Scopes.
const (
	ScopeIP     Scope = "ip"
	ScopeUser   Scope = "user"
	ScopeUnauth Scope = "unauth"
)

// Key identifies one counter bucket. Two keys are equal iff environment,
// scope and identity are equal, so Key values can be compared with ==.
type Key struct {
	Environment string
	Scope       Scope
	Identity    string
}

// NewKey creates a Key.
func NewKey(environment string, scope Scope, identity string) Key {
	return Key{Environment: environment, Scope: scope, Identity: identity}
}

// String returns the store key "{environment}:{scope}:{identity}".
func (k Key) String() string {
	return k.Environment + ":" + string(k.Scope) + ":" + k.Identity
}
