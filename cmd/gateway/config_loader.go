package main

import (
	"fmt"

	"github.com/orderflow/gateway/internal/config"
	"github.com/orderflow/gateway/internal/observability"
)

// loadConfig reads and validates the configuration file.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadAndValidateConfig loads the configuration or exits. A policy the
// gateway cannot enforce must never start serving.
func loadAndValidateConfig(configPath string, logger observability.Logger) *config.Config {
	logger.Info("starting gateway",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	cfg, err := loadConfig(configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", observability.Error(err))
		return nil
	}

	logger.Info("configuration loaded",
		observability.String("environment", cfg.Environment),
		observability.String("backend", cfg.Admission.Backend),
		observability.String("failure_mode", cfg.Admission.FailureMode),
		observability.Bool("auth", cfg.Auth.Enabled),
		observability.Int("routes", len(cfg.Routes)),
	)

	return cfg
}

// logConfigFor merges command line overrides into the logging section.
func logConfigFor(cfg *config.Config, flags cliFlags) observability.LogConfig {
	return observability.LogConfig{
		Level:  firstNonEmpty(flags.logLevel, cfg.Logging.Level, "info"),
		Format: firstNonEmpty(flags.logFormat, cfg.Logging.Format, "json"),
		Output: firstNonEmpty(cfg.Logging.Output, "stdout"),
	}
}

// tracerConfigFor converts the tracing section.
func tracerConfigFor(cfg *config.Config) observability.TracerConfig {
	return observability.TracerConfig{
		ServiceName:  firstNonEmpty(cfg.Tracing.ServiceName, "orderflow-gateway"),
		OTLPEndpoint: cfg.Tracing.Endpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
		Enabled:      cfg.Tracing.Enabled,
	}
}
