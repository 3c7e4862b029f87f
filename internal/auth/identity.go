package auth

import (
	"context"
)

// ClaimNameIdentifier is the WS-Federation name identifier claim. Tokens
// minted by older identity providers carry the user id there instead of
// in "sub".
const ClaimNameIdentifier = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/nameidentifier"

// AuthenticatedIdentity is the caller established by the auth stage.
type AuthenticatedIdentity struct {
	// Subject is the stable user id. It is never empty on an identity
	// stored in a request context.
	Subject string `json:"sub"`

	// Claims holds every claim of the verified token.
	Claims map[string]interface{} `json:"claims,omitempty"`
}

// Claim returns a claim value by name.
func (i *AuthenticatedIdentity) Claim(name string) (interface{}, bool) {
	if i == nil || i.Claims == nil {
		return nil, false
	}
	v, ok := i.Claims[name]
	return v, ok
}

// subjectFromClaims returns "sub" when set, else the name identifier claim.
func subjectFromClaims(claims map[string]interface{}) string {
	for _, name := range []string{"sub", ClaimNameIdentifier} {
		if s, ok := claims[name].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

type identityContextKey struct{}

// ContextWithIdentity adds an identity to the context.
func ContextWithIdentity(ctx context.Context, identity *AuthenticatedIdentity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext extracts the identity from the context.
func IdentityFromContext(ctx context.Context) (*AuthenticatedIdentity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(*AuthenticatedIdentity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
