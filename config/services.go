package config

import "strings"

// ServicesConfig contains the backend adapter configuration. A service is
// offered only when its adapter has what it needs to run.
type ServicesConfig struct {
	// Enabled lists the service ids to offer, comma separated.
	Enabled []string `env:"SERVICES" envDefault:"GPT,STABLE" envSeparator:","`

	OpenAI          OpenAIConfig          `envPrefix:"OPENAI_"`
	StableDiffusion StableDiffusionConfig `envPrefix:"STABLE_DIFFUSION_"`
	Relay           RelayConfig           `envPrefix:"RELAY_"`
}

// OpenAIConfig configures the chat-completions backend.
type OpenAIConfig struct {
	APIKey  string `env:"API_KEY"`
	BaseURL string `env:"BASE_URL"`
}

// StableDiffusionConfig configures the image-generation backend.
type StableDiffusionConfig struct {
	APIKey  string `env:"API_KEY"`
	BaseURL string `env:"BASE_URL"`
}

// RelayConfig configures the nested pay-per-call backend.
type RelayConfig struct {
	// TargetURL is the downstream 402-gated endpoint jobs are forwarded to.
	TargetURL string `env:"TARGET_URL"`
}

// Sanitize applies guardrails to service configuration values.
func (c *ServicesConfig) Sanitize() {
	enabled := make([]string, 0, len(c.Enabled))
	for _, raw := range c.Enabled {
		id := strings.ToUpper(strings.TrimSpace(raw))
		if id != "" {
			enabled = append(enabled, id)
		}
	}
	c.Enabled = enabled

	c.OpenAI.BaseURL = strings.TrimRight(strings.TrimSpace(c.OpenAI.BaseURL), "/")
	c.StableDiffusion.BaseURL = strings.TrimRight(strings.TrimSpace(c.StableDiffusion.BaseURL), "/")
	c.Relay.TargetURL = strings.TrimRight(strings.TrimSpace(c.Relay.TargetURL), "/")
}

// IsEnabled reports whether the given service id is in the enabled list.
func (c *ServicesConfig) IsEnabled(id string) bool {
	for _, enabled := range c.Enabled {
		if enabled == id {
			return true
		}
	}
	return false
}
