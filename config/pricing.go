package config

import "time"

// PricingConfig contains price oracle and per-service pricing configuration.
type PricingConfig struct {
	// Quorum is the minimum number of BTC-USD sources that must answer.
	Quorum int `env:"PRICE_ORACLE_QUORUM" envDefault:"2"`

	// SourceTimeout bounds each individual price source query.
	SourceTimeout time.Duration `env:"PRICE_ORACLE_SOURCE_TIMEOUT" envDefault:"5s"`

	// CacheTTL is how long an estimate is shared across quotes.
	CacheTTL time.Duration `env:"PRICE_ORACLE_CACHE_TTL" envDefault:"1m"`

	// GranularityMsats rounds invoice amounts so oracle float noise never
	// reaches an invoice.
	GranularityMsats int64 `env:"PRICE_GRANULARITY_MSATS" envDefault:"1000"`

	// MarginPct is the profit margin applied on top of every USD price.
	MarginPct float64 `env:"PRICE_MARGIN_PCT" envDefault:"10"`

	// Per-service USD prices for one job.
	GPTUSD    float64 `env:"PRICE_GPT_USD"    envDefault:"0.02"`
	StableUSD float64 `env:"PRICE_STABLE_USD" envDefault:"0.01"`
	RelayUSD  float64 `env:"PRICE_RELAY_USD"  envDefault:"0.01"`
}

// Sanitize applies guardrails to pricing configuration values.
func (c *PricingConfig) Sanitize() {
	if c.Quorum <= 0 {
		c.Quorum = 2
	}
	if c.SourceTimeout <= 0 {
		c.SourceTimeout = 5 * time.Second
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = time.Minute
	}
	if c.GranularityMsats <= 0 {
		c.GranularityMsats = 1000
	}
	if c.MarginPct < 0 {
		c.MarginPct = 0
	}
}
