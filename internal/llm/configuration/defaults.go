package configuration

import "time"

// Provider names.
const (
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
)

// HTTP and connection constants.
const (
	DefaultMaxIdleConns        = 10
	DefaultIdleTimeoutSeconds  = 90
	DefaultTLSTimeoutSeconds   = 10
	DefaultHTTPTimeoutSeconds  = 120
	DefaultOpenRouterEndpoint  = "https://openrouter.ai/api/v1"
	DefaultPrimaryModel        = "openrouter/anthropic/claude-sonnet-4.5"
	DefaultFallbackModel       = "openrouter/openai/gpt-4o"
	DefaultTemperature         = 0.3
	DefaultMaxAttempts         = 3
	DefaultBackoffUnit         = time.Second
	DefaultTokensPerSecond     = 1
	DefaultBurstSize           = 1
	ServerErrorStatusThreshold = 500
)

// DefaultConfig returns the configuration used when nothing overrides it:
// two models, three attempts each, one-second backoff unit.
func DefaultConfig() *Config {
	return &Config{
		HTTPTimeout: DefaultHTTPTimeoutSeconds * time.Second,
		Models:      []string{DefaultPrimaryModel, DefaultFallbackModel},
		Temperature: DefaultTemperature,
		Providers: map[string]ProviderConfig{
			ProviderOpenRouter: {Endpoint: DefaultOpenRouterEndpoint},
		},
		Retry: RetryConfig{
			MaxAttempts: DefaultMaxAttempts,
			BackoffUnit: DefaultBackoffUnit,
		},
		RateLimit: RateLimitConfig{
			TokensPerSecond: DefaultTokensPerSecond,
			BurstSize:       DefaultBurstSize,
			Enabled:         true,
		},
	}
}
