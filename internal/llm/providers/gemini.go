package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/ahrav/go-clinaudit/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-clinaudit/internal/llm/errors"
	"github.com/ahrav/go-clinaudit/internal/llm/transport"
)

// GeminiAdapter calls Gemini models through the genai SDK. It implements
// transport.Invoker; Build and Parse exist only to satisfy ProviderAdapter.
type GeminiAdapter struct {
	client *genai.Client
}

// NewGeminiAdapter builds a genai client for the Gemini API backend.
func NewGeminiAdapter(ctx context.Context, cfg configuration.ProviderConfig, httpClient *http.Client) (*GeminiAdapter, error) {
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if cfg.Endpoint != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiAdapter{client: client}, nil
}

// Name returns the provider name.
func (a *GeminiAdapter) Name() string {
	return configuration.ProviderGemini
}

// Build is unused; the SDK owns request construction.
func (a *GeminiAdapter) Build(context.Context, *transport.Request) (*http.Request, error) {
	return nil, fmt.Errorf("%s: requests are built by the SDK", a.Name())
}

// Parse is unused; the SDK owns response decoding.
func (a *GeminiAdapter) Parse(*http.Response) (*transport.Response, error) {
	return nil, fmt.Errorf("%s: responses are decoded by the SDK", a.Name())
}

// Invoke sends one generateContent call.
func (a *GeminiAdapter) Invoke(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens) // #nosec G115 -- bounded by config
	}

	resp, err := a.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.UserPrompt), config)
	if err != nil {
		// Every SDK failure is treated as transient; cancellation is detected
		// by the retry layer from the caller's context.
		return nil, &llmerrors.ProviderError{
			Provider: a.Name(),
			Message:  err.Error(),
			Type:     llmerrors.ErrorTypeUnknown,
			Cause:    err,
		}
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return nil, llmerrors.ErrEmptyResponse
	}

	out := &transport.Response{Content: text}
	if len(resp.Candidates) > 0 {
		out.FinishReason = string(resp.Candidates[0].FinishReason)
	}
	if resp.ResponseID != "" {
		out.ProviderRequestIDs = []string{resp.ResponseID}
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = transport.NormalizedUsage{
			PromptTokens:     int64(u.PromptTokenCount),
			CompletionTokens: int64(u.CandidatesTokenCount),
			TotalTokens:      int64(u.TotalTokenCount),
		}
	}
	return out, nil
}
