package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-clinaudit/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-clinaudit/internal/llm/errors"
	"github.com/ahrav/go-clinaudit/internal/llm/transport"
)

func TestNewOpenRouterAdapter(t *testing.T) {
	tests := []struct {
		name             string
		config           configuration.ProviderConfig
		expectedEndpoint string
	}{
		{
			name:             "default_endpoint_when_empty",
			config:           configuration.ProviderConfig{APIKey: "k"},
			expectedEndpoint: configuration.DefaultOpenRouterEndpoint,
		},
		{
			name:             "custom_endpoint_trailing_slash_trimmed",
			config:           configuration.ProviderConfig{Endpoint: "http://gateway.local/v1/"},
			expectedEndpoint: "http://gateway.local/v1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := NewOpenRouterAdapter(tt.config)
			assert.Equal(t, configuration.ProviderOpenRouter, adapter.Name())
			assert.Equal(t, tt.expectedEndpoint, adapter.config.Endpoint)
		})
	}
}

func TestOpenRouterAdapter_Build(t *testing.T) {
	adapter := NewOpenRouterAdapter(configuration.ProviderConfig{
		APIKey:   "secret",
		Endpoint: "https://openrouter.ai/api/v1",
		Headers:  map[string]string{"X-Title": "clinaudit"},
	})

	httpReq, err := adapter.Build(context.Background(), &transport.Request{
		Provider:     "openrouter",
		Model:        "anthropic/claude-sonnet-4.5",
		SystemPrompt: "rubric",
		UserPrompt:   "record",
		Temperature:  0.3,
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, httpReq.Method)
	assert.Equal(t, "https://openrouter.ai/api/v1/chat/completions", httpReq.URL.String())
	assert.Equal(t, "Bearer secret", httpReq.Header.Get("Authorization"))
	assert.Equal(t, "clinaudit", httpReq.Header.Get("X-Title"))

	body, err := io.ReadAll(httpReq.Body)
	require.NoError(t, err)

	var payload chatRequest
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "anthropic/claude-sonnet-4.5", payload.Model)
	assert.Equal(t, 0.3, payload.Temperature)
	require.Len(t, payload.Messages, 2)
	assert.Equal(t, chatMessage{Role: "system", Content: "rubric"}, payload.Messages[0])
	assert.Equal(t, chatMessage{Role: "user", Content: "record"}, payload.Messages[1])
}

func newResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestOpenRouterAdapter_Parse(t *testing.T) {
	adapter := NewOpenRouterAdapter(configuration.ProviderConfig{})

	t.Run("success", func(t *testing.T) {
		resp, err := adapter.Parse(newResponse(http.StatusOK, `{
			"id": "gen-1",
			"choices": [{"message": {"role": "assistant", "content": "{\"score_calidad\": 80}"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
		require.NoError(t, err)
		assert.Equal(t, `{"score_calidad": 80}`, resp.Content)
		assert.Equal(t, "stop", resp.FinishReason)
		assert.Equal(t, []string{"gen-1"}, resp.ProviderRequestIDs)
		assert.Equal(t, int64(15), resp.Usage.TotalTokens)
	})

	t.Run("empty choices", func(t *testing.T) {
		_, err := adapter.Parse(newResponse(http.StatusOK, `{"choices": []}`))
		require.ErrorIs(t, err, llmerrors.ErrEmptyResponse)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := adapter.Parse(newResponse(http.StatusOK, `not json`))
		require.ErrorIs(t, err, llmerrors.ErrInvalidResponse)
	})

	t.Run("error embedded in 200", func(t *testing.T) {
		_, err := adapter.Parse(newResponse(http.StatusOK, `{"error": {"message": "upstream overloaded", "code": 503}}`))
		var pe *llmerrors.ProviderError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, 503, pe.StatusCode)
		assert.Equal(t, llmerrors.ErrorTypeProvider, pe.Type)
	})
}

func TestParseOpenRouterError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType llmerrors.ErrorType
		wantMsg  string
	}{
		{name: "rate limited", status: 429, body: `{"error": {"message": "slow down", "code": 429}}`, wantType: llmerrors.ErrorTypeRateLimit, wantMsg: "slow down"},
		{name: "auth", status: 401, body: `{"error": {"message": "no key", "code": "401"}}`, wantType: llmerrors.ErrorTypeAuth, wantMsg: "no key"},
		{name: "server error plain body", status: 502, body: `bad gateway`, wantType: llmerrors.ErrorTypeProvider, wantMsg: "bad gateway"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := parseOpenRouterError(tt.status, []byte(tt.body))
			var pe *llmerrors.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Equal(t, tt.wantType, pe.Type)
			assert.Equal(t, tt.wantMsg, pe.Message)
			assert.Equal(t, llmerrors.KindTransient, llmerrors.Classify(err))
		})
	}
}

// TestOpenRouterAdapter_EndToEnd drives the adapter through the core handler
// against a fake OpenAI-compatible server.
func TestOpenRouterAdapter_EndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"x","choices":[{"message":{"content":"hola"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	r, err := NewRouter(context.Background(), map[string]configuration.ProviderConfig{
		configuration.ProviderOpenRouter: {Endpoint: srv.URL},
	}, srv.Client())
	require.NoError(t, err)

	h := transport.NewHTTPHandler(srv.Client(), r)
	resp, err := h.Handle(context.Background(), &transport.Request{Provider: "openrouter", Model: "m", UserPrompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "hola", resp.Content)
}
