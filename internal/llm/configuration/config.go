// Package configuration holds the scoring client configuration and its defaults.
package configuration

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrInvalidConfig is wrapped by every validation failure of Config.
var ErrInvalidConfig = errors.New("invalid scoring configuration")

// Config holds the configuration of the scoring client: which models to call
// in which order, how hard to retry each one, and how to reach the providers.
type Config struct {
	// HTTP client configuration.
	HTTPTimeout time.Duration `yaml:"http_timeout" json:"http_timeout"`
	HTTPClient  *http.Client  `yaml:"-"            json:"-"`

	// Models is the ordered fallback list; Models[0] is the primary.
	// Entries are "provider/model"; a bare model name routes to openrouter.
	Models []string `yaml:"models" json:"models"`

	Temperature float64 `yaml:"temperature" json:"temperature"`
	MaxTokens   int64   `yaml:"max_tokens"  json:"max_tokens"`

	// Providers keyed by provider name ("openrouter", "gemini").
	Providers map[string]ProviderConfig `yaml:"providers" json:"providers"`

	Retry     RetryConfig     `yaml:"retry"      json:"retry"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
}

// ProviderConfig holds provider-specific endpoint and authentication.
type ProviderConfig struct {
	Endpoint string            `yaml:"endpoint" json:"endpoint"`
	APIKey   string            `yaml:"-"        json:"-"` // Sensitive, not serialized
	Headers  map[string]string `yaml:"headers"  json:"headers"`
}

// RetryConfig bounds attempts per model. The delay before attempt i+1 is
// 2^i * BackoffUnit (i zero-based); no delay follows a model's last attempt.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	BackoffUnit time.Duration `yaml:"backoff_unit" json:"backoff_unit"`
}

// RateLimitConfig paces outgoing provider calls with a local token bucket.
type RateLimitConfig struct {
	TokensPerSecond float64 `yaml:"tokens_per_second" json:"tokens_per_second"`
	BurstSize       int     `yaml:"burst_size"        json:"burst_size"`
	Enabled         bool    `yaml:"enabled"           json:"enabled"`
}

// Validate checks the configuration before a client is built from it.
func (c *Config) Validate() error {
	if len(c.Models) == 0 {
		return fmt.Errorf("%w: at least one model is required", ErrInvalidConfig)
	}
	for i, m := range c.Models {
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("%w: models[%d] is empty", ErrInvalidConfig, i)
		}
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("%w: retry.max_attempts must be greater than 0, got %d", ErrInvalidConfig, c.Retry.MaxAttempts)
	}
	if c.Retry.BackoffUnit < 0 {
		return fmt.Errorf("%w: retry.backoff_unit must be >= 0, got %v", ErrInvalidConfig, c.Retry.BackoffUnit)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: temperature must be in [0,2], got %v", ErrInvalidConfig, c.Temperature)
	}
	if c.RateLimit.Enabled && c.RateLimit.TokensPerSecond > 0 && c.RateLimit.BurstSize <= 0 {
		return fmt.Errorf("%w: rate_limit.burst_size must be greater than 0", ErrInvalidConfig)
	}
	return nil
}

// SplitModel splits a "provider/model" identifier. Model names routed through
// openrouter contain slashes themselves ("openrouter/anthropic/claude-sonnet-4.5"),
// so only the first segment is treated as the provider, and only when it names
// a known provider.
func SplitModel(id string) (provider, model string) {
	prefix, rest, found := strings.Cut(id, "/")
	if found {
		switch prefix {
		case ProviderOpenRouter, ProviderGemini:
			return prefix, rest
		}
	}
	return ProviderOpenRouter, id
}
