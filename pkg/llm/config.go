package llm

import (
	"fmt"

	"github.com/zen-systems/nodeflow/pkg/config"
)

// Config configures an LLM generation node.
type Config struct {
	Adapter       string   `yaml:"adapter" json:"adapter"`
	Model         string   `yaml:"model" json:"model"`
	SystemMessage string   `yaml:"system_message,omitempty" json:"system_message,omitempty"`
	UserMessage   string   `yaml:"user_message,omitempty" json:"user_message,omitempty"`
	Temperature   *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens     int      `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`

	// MaxRetries applies to transient adapter errors only. Zero means the
	// call is made once.
	MaxRetries    int `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	BaseBackoffMs int `yaml:"base_backoff_ms,omitempty" json:"base_backoff_ms,omitempty"`
	MaxBackoffMs  int `yaml:"max_backoff_ms,omitempty" json:"max_backoff_ms,omitempty"`

	Pricing config.PricingConfig `yaml:"pricing,omitempty" json:"pricing,omitempty"`
}

// DefaultConfig returns the defaults applied before a node config is decoded.
// Retry fields stay zero so the application retry settings can fill them.
func DefaultConfig() Config {
	return Config{MaxTokens: 4096}
}

// Validate checks value ranges. Adapter and model are checked when the node
// is built, after alias resolution.
func (c Config) Validate() error {
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be in [0, 2], got %g", *c.Temperature)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be >= 0, got %d", c.MaxTokens)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", c.MaxRetries)
	}
	return nil
}

func (c Config) retry() config.RetryConfig {
	r := config.RetryConfig{
		MaxRetries:    c.MaxRetries,
		BaseBackoffMs: c.BaseBackoffMs,
		MaxBackoffMs:  c.MaxBackoffMs,
	}
	if r.BaseBackoffMs <= 0 {
		r.BaseBackoffMs = 200
	}
	if r.MaxBackoffMs < r.BaseBackoffMs {
		r.MaxBackoffMs = max(2000, r.BaseBackoffMs)
	}
	return r
}
