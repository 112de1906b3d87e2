package transport

import (
	"time"

	"github.com/ahrav/go-clinaudit/internal/domain"
)

// Request is one completion call against one model. The retry middleware
// re-sends the same Request; handlers must not mutate it.
type Request struct {
	// Provider identifies which adapter serves the call ("openrouter", "gemini").
	Provider string `json:"provider"`

	// Model is the provider-local model name.
	Model string `json:"model"`

	SystemPrompt string  `json:"system_prompt"`
	UserPrompt   string  `json:"user_prompt"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int64   `json:"max_tokens,omitempty"`

	// Timeout bounds a single attempt; zero means no per-attempt deadline.
	Timeout time.Duration `json:"timeout"`

	// ItemKey correlates attempt logs with the audited encounter.
	ItemKey string `json:"item_key,omitempty"`
}

// ModelID returns the "provider/model" identifier used in logs and metrics.
func (r *Request) ModelID() string {
	return r.Provider + "/" + r.Model
}

// Response is the normalized provider output.
type Response struct {
	// Content is the raw model text, possibly wrapped in code fences.
	Content string `json:"content"`

	FinishReason       string   `json:"finish_reason"`
	ProviderRequestIDs []string `json:"provider_request_ids"`

	Usage NormalizedUsage `json:"usage"`

	// Result is populated by the schema validation middleware once Content has
	// been parsed and validated.
	Result *domain.AuditResult `json:"-"`
}

// NormalizedUsage provides consistent usage metrics across all providers.
type NormalizedUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
	LatencyMs        int64 `json:"latency_ms"`
}
