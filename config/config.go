// Package config defines the environment-driven configuration of the zapgate
// broker, loaded with github.com/caarlos0/env and sanitized once at startup.
package config

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - http.go: HTTP server configuration
//   - database.go: Database and cache configuration
//   - lightning.go: Lightning address and payer configuration
//   - pricing.go: Price oracle and per-service pricing
//   - services.go: Backend service configuration
//   - observability.go: Metrics and failure notifications
type AppConfig struct {
	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Lightning configuration
	Lightning LightningConfig

	// Pricing configuration
	Pricing PricingConfig

	// Backend service configuration
	Services ServicesConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Lightning.Sanitize()
	c.Pricing.Sanitize()
	c.Services.Sanitize()
	c.Observability.Sanitize()
}
