// Package auth is the authentication stage that runs ahead of admission
// control.
//
// The stage reads a bearer token from a configurable header, verifies it
// as an HS256 JWT and stores the resulting AuthenticatedIdentity in the
// request context. It never rejects a request: a missing, malformed or
// expired token simply leaves the identity absent, and the request is
// then rate limited by address instead of by user.
//
// # Usage
//
//	cfg := auth.Config{
//	    Secret:   []byte(os.Getenv("JWT_SECRET")),
//	    Issuer:   "https://identity.orderflow.local",
//	    Audience: "orderflow-gateway",
//	}
//
//	authenticator, err := auth.NewAuthenticator(cfg, auth.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	handler := authenticator.HTTPMiddleware()(next)
//
// Downstream handlers read the identity with IdentityFromContext.
package auth
