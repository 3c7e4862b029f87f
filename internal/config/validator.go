package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/orderflow/gateway/internal/util"
)

// ValidationError is a single problem found at a configuration path.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors collects every problem found in one pass.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return "no validation errors"
	case 1:
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, e[i].Error())
	}
	return sb.String()
}

// Is makes ValidationErrors match util.ErrConfigInvalid.
func (e ValidationErrors) Is(target error) bool {
	return target == util.ErrConfigInvalid
}

// HasErrors returns true if at least one error was collected.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator checks a Config in two passes: struct tags, then the
// cross-field rules tags cannot express.
type Validator struct {
	structs *validator.Validate
	errors  ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return &Validator{structs: v}
}

// ValidateConfig validates cfg and returns ValidationErrors when it is unusable.
func ValidateConfig(cfg *Config) error {
	return NewValidator().Validate(cfg)
}

// Validate validates cfg and returns any errors.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = make(ValidationErrors, 0)

	if cfg == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateTags(cfg)
	v.validateEnvironment(cfg.Environment)
	v.validateListener(&cfg.Listener)
	v.validateStore(cfg)
	v.validateCORS(&cfg.CORS)
	v.validateAuth(&cfg.Auth)
	v.validateRoutes(cfg.Routes)
	v.validateMetrics(&cfg.Metrics, cfg.Listener.Address)
	v.validateTracing(&cfg.Tracing)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) validateTags(cfg *Config) {
	err := v.structs.Struct(cfg)
	if err == nil {
		return
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		v.addError("", err.Error())
		return
	}

	for _, fe := range fieldErrs {
		v.addError(fieldPath(fe.Namespace()), tagMessage(fe.Tag(), fe.Param()))
	}
}

// fieldPath drops the root type name from a validator namespace.
func fieldPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func tagMessage(tag, param string) string {
	switch tag {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + param
	case "gte":
		return "must be at least " + param
	case "lte":
		return "must be at most " + param
	case "oneof":
		return "must be one of: " + strings.Join(strings.Fields(param), ", ")
	case "url":
		return "must be an absolute URL"
	case "startswith":
		return fmt.Sprintf("must start with %q", param)
	default:
		return "failed " + tag + " validation"
	}
}

func (v *Validator) validateEnvironment(env string) {
	if env == "" {
		return
	}
	if strings.ContainsAny(env, ": \t\n") {
		v.addError("environment", "must not contain ':' or whitespace")
	}
}

func (v *Validator) validateListener(l *ListenerConfig) {
	if l.Address == "" {
		return
	}
	if _, _, err := net.SplitHostPort(l.Address); err != nil {
		v.addError("listener.address", fmt.Sprintf("invalid address: %v", err))
	}
}

func (v *Validator) validateStore(cfg *Config) {
	if cfg.Admission.Backend == BackendRedis && cfg.Redis.Address == "" {
		v.addError("redis.address", "is required when admission.backend is redis")
	}

	b := cfg.Admission.Breaker
	if b.Enabled {
		if b.FailureThreshold <= 0 {
			v.addError("admission.breaker.failureThreshold", "must be greater than 0 when the breaker is enabled")
		}
		if b.OpenTimeout <= 0 {
			v.addError("admission.breaker.openTimeout", "must be greater than 0 when the breaker is enabled")
		}
	}

	for _, tier := range []struct {
		path string
		cfg  TierConfig
	}{
		{"admission.tiers.anonymous", cfg.Admission.Tiers.Anonymous},
		{"admission.tiers.authenticated", cfg.Admission.Tiers.Authenticated},
		{"admission.tiers.unauthenticated", cfg.Admission.Tiers.Unauthenticated},
	} {
		if tier.cfg.Window > 0 && tier.cfg.Window.Duration().Milliseconds() == 0 {
			v.addError(tier.path+".window", "must be at least 1ms")
		}
	}
}

func (v *Validator) validateCORS(c *CORSConfig) {
	if !c.Enabled {
		return
	}
	if len(c.AllowOrigins) == 0 {
		v.addError("cors.allowOrigins", "is required when cors is enabled")
	}
	for i, origin := range c.AllowOrigins {
		path := fmt.Sprintf("cors.allowOrigins[%d]", i)
		switch {
		case origin == "":
			v.addError(path, "must not be empty")
		case origin == "*" && c.AllowCredentials:
			v.addError(path, `"*" cannot be combined with allowCredentials`)
		case strings.Contains(origin, "*") && origin != "*" && !strings.HasPrefix(origin, "*."):
			v.addError(path, `wildcards are only supported as "*" or a "*.domain" prefix`)
		}
	}
}

func (v *Validator) validateAuth(a *AuthConfig) {
	if !a.Enabled {
		return
	}
	if a.HMACSecret == "" {
		v.addError("auth.hmacSecret", "is required when auth is enabled")
	}
	if a.Header == "" {
		v.addError("auth.header", "is required when auth is enabled")
	}
}

func (v *Validator) validateRoutes(routes []RouteConfig) {
	names := make(map[string]int, len(routes))
	prefixes := make(map[string]int, len(routes))

	for i, r := range routes {
		path := fmt.Sprintf("routes[%d]", i)

		if r.Name != "" {
			if prev, ok := names[r.Name]; ok {
				v.addError(path+".name", fmt.Sprintf("duplicate route name, first defined at routes[%d]", prev))
			} else {
				names[r.Name] = i
			}
		}

		if r.PathPrefix != "" {
			if prev, ok := prefixes[r.PathPrefix]; ok {
				v.addError(path+".pathPrefix", fmt.Sprintf("duplicate path prefix, first defined at routes[%d]", prev))
			} else {
				prefixes[r.PathPrefix] = i
			}
		}

		if r.Upstream != "" {
			u, err := url.Parse(r.Upstream)
			if err == nil && u.Scheme != "http" && u.Scheme != "https" {
				v.addError(path+".upstream", "scheme must be http or https")
			}
		}
	}
}

func (v *Validator) validateMetrics(m *MetricsConfig, listenerAddr string) {
	if !m.Enabled {
		return
	}
	if m.Address == "" {
		v.addError("metrics.address", "is required when metrics are enabled")
	} else if m.Address == listenerAddr {
		v.addError("metrics.address", "must differ from listener.address")
	}
	if !strings.HasPrefix(m.Path, "/") {
		v.addError("metrics.path", `must start with "/"`)
	}
}

func (v *Validator) validateTracing(t *TracingConfig) {
	if t.Enabled && t.Endpoint == "" {
		v.addError("tracing.endpoint", "is required when tracing is enabled")
	}
}

// addError adds a validation error.
func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}
