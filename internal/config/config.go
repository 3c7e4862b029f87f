package config

import (
	"os"
	"time"
)

// EnvEnvironment names the variable that overrides the default environment prefix.
const EnvEnvironment = "GATEWAY_ENVIRONMENT"

// DefaultEnvironment is used when neither the file nor the environment sets one.
const DefaultEnvironment = "Production"

// Failure modes applied when the counter store cannot answer.
const (
	FailureModeOpen   = "fail_open"
	FailureModeClosed = "fail_closed"
)

// Counter store backends.
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config is the root of the gateway configuration file.
type Config struct {
	Environment string          `yaml:"environment" json:"environment" validate:"required"`
	Listener    ListenerConfig  `yaml:"listener" json:"listener"`
	Redis       RedisConfig     `yaml:"redis" json:"redis"`
	Admission   AdmissionConfig `yaml:"admission" json:"admission"`
	CORS        CORSConfig      `yaml:"cors" json:"cors"`
	Auth        AuthConfig      `yaml:"auth" json:"auth"`
	Routes      []RouteConfig   `yaml:"routes" json:"routes" validate:"dive"`
	Logging     LoggingConfig   `yaml:"logging" json:"logging"`
	Metrics     MetricsConfig   `yaml:"metrics" json:"metrics"`
	Tracing     TracingConfig   `yaml:"tracing" json:"tracing"`
}

// ListenerConfig configures the public HTTP listener.
type ListenerConfig struct {
	Address         string   `yaml:"address" json:"address" validate:"required"`
	ReadTimeout     Duration `yaml:"readTimeout" json:"readTimeout" validate:"gte=0"`
	WriteTimeout    Duration `yaml:"writeTimeout" json:"writeTimeout" validate:"gte=0"`
	IdleTimeout     Duration `yaml:"idleTimeout" json:"idleTimeout" validate:"gte=0"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout" json:"shutdownTimeout" validate:"gte=0"`
}

// RedisConfig configures the shared counter store connection.
type RedisConfig struct {
	Address           string   `yaml:"address" json:"address"`
	Password          string   `yaml:"password" json:"-"`
	DB                int      `yaml:"db" json:"db" validate:"gte=0"`
	PoolSize          int      `yaml:"poolSize" json:"poolSize" validate:"gte=0"`
	MinIdleConns      int      `yaml:"minIdleConns" json:"minIdleConns" validate:"gte=0"`
	MaxRetries        int      `yaml:"maxRetries" json:"maxRetries" validate:"gte=0"`
	DialTimeout       Duration `yaml:"dialTimeout" json:"dialTimeout" validate:"gte=0"`
	ReadTimeout       Duration `yaml:"readTimeout" json:"readTimeout" validate:"gte=0"`
	WriteTimeout      Duration `yaml:"writeTimeout" json:"writeTimeout" validate:"gte=0"`
	ConnectionRetries int      `yaml:"connectionRetries" json:"connectionRetries" validate:"gte=0"`
}

// AdmissionConfig configures the admission controller and its limiter.
type AdmissionConfig struct {
	Backend      string        `yaml:"backend" json:"backend" validate:"oneof=redis memory"`
	StoreTimeout Duration      `yaml:"storeTimeout" json:"storeTimeout" validate:"gt=0"`
	FailureMode  string        `yaml:"failureMode" json:"failureMode" validate:"oneof=fail_open fail_closed"`
	Breaker      BreakerConfig `yaml:"breaker" json:"breaker"`
	Tiers        TiersConfig   `yaml:"tiers" json:"tiers"`
}

// BreakerConfig configures the optional circuit breaker around the store.
type BreakerConfig struct {
	Enabled          bool     `yaml:"enabled" json:"enabled"`
	FailureThreshold int      `yaml:"failureThreshold" json:"failureThreshold" validate:"gte=0"`
	OpenTimeout      Duration `yaml:"openTimeout" json:"openTimeout" validate:"gte=0"`
	HalfOpenRequests int      `yaml:"halfOpenRequests" json:"halfOpenRequests" validate:"gte=0"`
}

// TiersConfig holds the three tier quotas.
type TiersConfig struct {
	Anonymous       TierConfig `yaml:"anonymous" json:"anonymous"`
	Authenticated   TierConfig `yaml:"authenticated" json:"authenticated"`
	Unauthenticated TierConfig `yaml:"unauthenticated" json:"unauthenticated"`
}

// TierConfig is the quota of a single tier.
type TierConfig struct {
	Limit  int      `yaml:"limit" json:"limit" validate:"gt=0"`
	Window Duration `yaml:"window" json:"window" validate:"gt=0"`
}

// CORSConfig configures the cross-origin stage that runs ahead of auth and
// admission. Origins may be exact ("https://shop.example.com"), a
// subdomain wildcard ("*.example.com") or "*".
type CORSConfig struct {
	Enabled          bool     `yaml:"enabled" json:"enabled"`
	AllowOrigins     []string `yaml:"allowOrigins" json:"allowOrigins"`
	AllowMethods     []string `yaml:"allowMethods" json:"allowMethods"`
	AllowHeaders     []string `yaml:"allowHeaders" json:"allowHeaders"`
	ExposeHeaders    []string `yaml:"exposeHeaders" json:"exposeHeaders"`
	AllowCredentials bool     `yaml:"allowCredentials" json:"allowCredentials"`
	MaxAge           Duration `yaml:"maxAge" json:"maxAge" validate:"gte=0"`
}

// AuthConfig configures the bearer token stage that runs before admission.
type AuthConfig struct {
	Enabled    bool     `yaml:"enabled" json:"enabled"`
	HMACSecret string   `yaml:"hmacSecret" json:"-"`
	Issuer     string   `yaml:"issuer" json:"issuer"`
	Audience   string   `yaml:"audience" json:"audience"`
	Header     string   `yaml:"header" json:"header"`
	ClockSkew  Duration `yaml:"clockSkew" json:"clockSkew" validate:"gte=0"`
}

// RouteConfig maps a path prefix to an upstream.
type RouteConfig struct {
	Name       string `yaml:"name" json:"name" validate:"required"`
	PathPrefix string `yaml:"pathPrefix" json:"pathPrefix" validate:"required,startswith=/"`
	Upstream   string `yaml:"upstream" json:"upstream" validate:"required,url"`
	Anonymous  bool   `yaml:"anonymous" json:"anonymous"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" json:"format" validate:"omitempty,oneof=json console"`
	Output string `yaml:"output" json:"output"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address"`
	Path    string `yaml:"path" json:"path"`
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Endpoint     string  `yaml:"endpoint" json:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate" json:"samplingRate" validate:"gte=0,lte=1"`
	ServiceName  string  `yaml:"serviceName" json:"serviceName"`
}

// DefaultConfig returns a configuration populated with the production
// defaults: 100 requests per minute per IP on anonymous routes, 250 per
// user when authenticated and 50 per IP otherwise.
func DefaultConfig() *Config {
	env := os.Getenv(EnvEnvironment)
	if env == "" {
		env = DefaultEnvironment
	}

	return &Config{
		Environment: env,
		Listener: ListenerConfig{
			Address:         ":8080",
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			IdleTimeout:     Duration(120 * time.Second),
			ShutdownTimeout: Duration(30 * time.Second),
		},
		Redis: RedisConfig{
			Address:           "localhost:6379",
			PoolSize:          10,
			MinIdleConns:      2,
			MaxRetries:        1,
			DialTimeout:       Duration(5 * time.Second),
			ReadTimeout:       Duration(time.Second),
			WriteTimeout:      Duration(time.Second),
			ConnectionRetries: 3,
		},
		Admission: AdmissionConfig{
			Backend:      BackendRedis,
			StoreTimeout: Duration(250 * time.Millisecond),
			FailureMode:  FailureModeOpen,
			Breaker: BreakerConfig{
				FailureThreshold: 5,
				OpenTimeout:      Duration(10 * time.Second),
				HalfOpenRequests: 1,
			},
			Tiers: TiersConfig{
				Anonymous:       TierConfig{Limit: 100, Window: Duration(time.Minute)},
				Authenticated:   TierConfig{Limit: 250, Window: Duration(time.Minute)},
				Unauthenticated: TierConfig{Limit: 50, Window: Duration(time.Minute)},
			},
		},
		CORS: CORSConfig{
			AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
			ExposeHeaders: []string{"Retry-After", "X-Request-ID"},
			MaxAge:        Duration(10 * time.Minute),
		},
		Auth: AuthConfig{
			Header:    "Authorization",
			ClockSkew: Duration(30 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Address: ":9090",
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			SamplingRate: 1.0,
			ServiceName:  "orderflow-gateway",
		},
	}
}
