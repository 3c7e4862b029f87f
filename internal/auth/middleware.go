package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/orderflow/gateway/internal/observability"
)

// Auth result label values.
const (
	ResultAuthenticated = "authenticated"
	ResultAbsent        = "absent"
	ResultInvalid       = "invalid"
)

// ResultRecorder receives one result per request. *observability.Metrics
// satisfies it.
type ResultRecorder interface {
	RecordAuthResult(result string)
}

// Authenticator verifies bearer tokens.
type Authenticator struct {
	header    string
	parseOpts []jwt.ParseOption
	logger    observability.Logger
	recorder  ResultRecorder
}

// Option is a functional option for the authenticator.
type Option func(*Authenticator)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(a *Authenticator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithRecorder sets the result recorder.
func WithRecorder(recorder ResultRecorder) Option {
	return func(a *Authenticator) {
		a.recorder = recorder
	}
}

// NewAuthenticator creates an Authenticator for HS256 tokens.
func NewAuthenticator(cfg Config, opts ...Option) (*Authenticator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Authenticator{
		header: cfg.Header,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}

	a.parseOpts = []jwt.ParseOption{
		jwt.WithKey(jwa.HS256, cfg.Secret),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(cfg.ClockSkew),
	}
	if cfg.Issuer != "" {
		a.parseOpts = append(a.parseOpts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		a.parseOpts = append(a.parseOpts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.Now != nil {
		a.parseOpts = append(a.parseOpts, jwt.WithClock(jwt.ClockFunc(cfg.Now)))
	}

	return a, nil
}

// Authenticate verifies the request's bearer token and returns the caller.
func (a *Authenticator) Authenticate(r *http.Request) (*AuthenticatedIdentity, error) {
	raw := extractBearer(r.Header.Get(a.header), a.header)
	if raw == "" {
		return nil, ErrNoCredentials
	}

	token, err := jwt.Parse([]byte(raw), a.parseOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, err := token.AsMap(r.Context())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	subject := subjectFromClaims(claims)
	if subject == "" {
		return nil, ErrMissingSubject
	}

	return &AuthenticatedIdentity{Subject: subject, Claims: claims}, nil
}

// HTTPMiddleware stores the verified identity in the request context.
// Requests are never rejected here; without an identity they fall to the
// address based rate limit tiers.
func (a *Authenticator) HTTPMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := a.Authenticate(r)
			switch {
			case err == nil:
				a.record(ResultAuthenticated)
				r = r.WithContext(ContextWithIdentity(r.Context(), identity))
			case errors.Is(err, ErrNoCredentials):
				a.record(ResultAbsent)
			default:
				a.record(ResultInvalid)
				a.logger.WithContext(r.Context()).Debug("bearer token ignored",
					observability.String("path", r.URL.Path),
					observability.Error(err),
				)
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (a *Authenticator) record(result string) {
	if a.recorder != nil {
		a.recorder.RecordAuthResult(result)
	}
}

// extractBearer returns the token of a header value. On the Authorization
// header only the Bearer scheme is accepted; custom headers may carry the
// bare token.
func extractBearer(value, header string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if len(value) > len(bearerPrefix) && strings.EqualFold(value[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(value[len(bearerPrefix):])
	}
	if strings.EqualFold(header, DefaultHeader) {
		return ""
	}
	return value
}
