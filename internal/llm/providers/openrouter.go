package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ahrav/go-clinaudit/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-clinaudit/internal/llm/errors"
	"github.com/ahrav/go-clinaudit/internal/llm/transport"
)

// OpenRouterAdapter speaks the OpenAI-compatible chat/completions API exposed
// by OpenRouter. Any compatible gateway works by overriding the endpoint.
type OpenRouterAdapter struct {
	config configuration.ProviderConfig
}

// NewOpenRouterAdapter creates an adapter, defaulting to the public endpoint.
func NewOpenRouterAdapter(cfg configuration.ProviderConfig) *OpenRouterAdapter {
	if cfg.Endpoint == "" {
		cfg.Endpoint = configuration.DefaultOpenRouterEndpoint
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &OpenRouterAdapter{config: cfg}
}

// Name returns the provider name.
func (a *OpenRouterAdapter) Name() string {
	return configuration.ProviderOpenRouter
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int64         `json:"max_tokens,omitempty"`
}

// Build constructs the chat/completions request.
func (a *OpenRouterAdapter) Build(ctx context.Context, req *transport.Request) (*http.Request, error) {
	messages := make([]chatMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.UserPrompt})

	jsonBody, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := a.config.Endpoint + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if a.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	}
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	return httpReq, nil
}

// Parse extracts the first choice of a chat/completions response.
func (a *OpenRouterAdapter) Parse(httpResp *http.Response) (*transport.Response, error) {
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &llmerrors.ProviderError{
			Provider: a.Name(),
			Message:  "failed to read response",
			Type:     llmerrors.ErrorTypeNetwork,
			Cause:    err,
		}
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, parseOpenRouterError(httpResp.StatusCode, body)
	}

	var resp struct {
		ID      string `json:"id"`
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int64 `json:"prompt_tokens"`
			CompletionTokens int64 `json:"completion_tokens"`
			TotalTokens      int64 `json:"total_tokens"`
		} `json:"usage"`
		// OpenRouter reports some upstream failures inside a 200 body.
		Error *openRouterErrorBody `json:"error"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", llmerrors.ErrInvalidResponse, err)
	}
	if resp.Error != nil && resp.Error.Message != "" {
		return nil, resp.Error.toProviderError(resp.Error.Code.status(http.StatusBadGateway))
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, llmerrors.ErrEmptyResponse
	}

	var requestIDs []string
	if resp.ID != "" {
		requestIDs = append(requestIDs, resp.ID)
	}

	return &transport.Response{
		Content:            resp.Choices[0].Message.Content,
		FinishReason:       resp.Choices[0].FinishReason,
		ProviderRequestIDs: requestIDs,
		Usage: transport.NormalizedUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// errorCode accepts both numeric and string error codes.
type errorCode string

func (c *errorCode) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*c = ""
		return nil
	}
	*c = errorCode(strings.Trim(string(b), `"`))
	return nil
}

func (c errorCode) status(fallback int) int {
	var n int
	if _, err := fmt.Sscanf(string(c), "%d", &n); err == nil && n >= 400 && n < 600 {
		return n
	}
	return fallback
}

type openRouterErrorBody struct {
	Message string    `json:"message"`
	Type    string    `json:"type"`
	Code    errorCode `json:"code"`
}

func (e *openRouterErrorBody) toProviderError(statusCode int) *llmerrors.ProviderError {
	return &llmerrors.ProviderError{
		Provider:   configuration.ProviderOpenRouter,
		StatusCode: statusCode,
		Message:    e.Message,
		Code:       string(e.Code),
		Type:       llmerrors.ClassifyStatus(statusCode, e.Type),
	}
}

// parseOpenRouterError converts error responses to ProviderError.
func parseOpenRouterError(statusCode int, body []byte) error {
	var errResp struct {
		Error openRouterErrorBody `json:"error"`
	}

	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.toProviderError(statusCode)
	}

	return &llmerrors.ProviderError{
		Provider:   configuration.ProviderOpenRouter,
		StatusCode: statusCode,
		Message:    string(body),
		Type:       llmerrors.ClassifyStatus(statusCode, ""),
	}
}
