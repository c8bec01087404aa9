package config

import (
	"strings"
	"time"
)

// LightningConfig contains the Lightning address invoices are minted against
// and the dispatch budget for paid work.
type LightningConfig struct {
	// Address is the LNURL-pay Lightning address ("user@domain").
	Address string `env:"LN_ADDRESS"`

	// InvoiceExpiry is how long minted invoices stay payable.
	InvoiceExpiry time.Duration `env:"LN_INVOICE_EXPIRY" envDefault:"1h"`

	// DispatchTimeout bounds one backend dispatch of a paid job.
	DispatchTimeout time.Duration `env:"LN_DISPATCH_TIMEOUT" envDefault:"10m"`

	// LNbits configures the outbound payer used by the relay service.
	LNbits LNbitsConfig `envPrefix:"LNBITS_"`
}

// LNbitsConfig contains the LNbits wallet used to pay nested invoices.
type LNbitsConfig struct {
	BaseURL string `env:"BASE_URL"`
	APIKey  string `env:"API_KEY"`
}

// Sanitize applies guardrails to Lightning configuration values.
func (c *LightningConfig) Sanitize() {
	c.Address = strings.TrimSpace(c.Address)
	c.LNbits.BaseURL = strings.TrimRight(strings.TrimSpace(c.LNbits.BaseURL), "/")
	if c.InvoiceExpiry <= 0 {
		c.InvoiceExpiry = time.Hour
	}
	if c.DispatchTimeout <= 0 {
		c.DispatchTimeout = 10 * time.Minute
	}
}

// Enabled reports whether an outbound payer is configured.
func (c *LNbitsConfig) Enabled() bool {
	return c.BaseURL != "" && c.APIKey != ""
}
