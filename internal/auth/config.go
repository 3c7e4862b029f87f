package auth

import (
	"time"

	"github.com/orderflow/gateway/internal/util"
)

const (
	// DefaultHeader is the header the bearer token is read from.
	DefaultHeader = "Authorization"

	// DefaultClockSkew is the tolerance applied to exp and nbf.
	DefaultClockSkew = 30 * time.Second

	bearerPrefix = "Bearer "
)

// Config configures the auth stage.
type Config struct {
	// Secret is the HS256 signing key.
	Secret []byte

	// Issuer, when set, must match the iss claim.
	Issuer string

	// Audience, when set, must be one of the aud values.
	Audience string

	// Header is the request header carrying the token.
	Header string

	ClockSkew time.Duration

	// Now overrides the verification clock. Tests only.
	Now func() time.Time
}

// Validate checks the configuration and fills defaults.
func (c *Config) Validate() error {
	if len(c.Secret) == 0 {
		return util.NewConfigError("auth.hmacSecret", "is required")
	}
	if c.Header == "" {
		c.Header = DefaultHeader
	}
	if c.ClockSkew < 0 {
		return util.NewConfigError("auth.clockSkew", "must not be negative")
	}
	if c.ClockSkew == 0 {
		c.ClockSkew = DefaultClockSkew
	}
	return nil
}
