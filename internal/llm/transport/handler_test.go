package transport_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-clinaudit/internal/llm/transport"
)

// stubAdapter posts the user prompt to a test server and echoes the body back.
type stubAdapter struct{ url string }

func (s stubAdapter) Name() string { return "stub" }

func (s stubAdapter) Build(ctx context.Context, req *transport.Request) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, http.MethodPost, s.url, strings.NewReader(req.UserPrompt))
}

func (s stubAdapter) Parse(resp *http.Response) (*transport.Response, error) {
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &transport.Response{Content: string(body)}, nil
}

type invokeAdapter struct {
	stubAdapter
	calls int
}

func (i *invokeAdapter) Invoke(_ context.Context, req *transport.Request) (*transport.Response, error) {
	i.calls++
	return &transport.Response{Content: "invoked:" + req.Model}, nil
}

type mapRouter map[string]transport.ProviderAdapter

func (m mapRouter) Pick(provider string) (transport.ProviderAdapter, error) {
	a, ok := m[provider]
	if !ok {
		return nil, errors.New("unknown provider")
	}
	return a, nil
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) transport.Middleware {
		return func(next transport.Handler) transport.Handler {
			return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
				order = append(order, name)
				return next.Handle(ctx, req)
			})
		}
	}

	core := transport.HandlerFunc(func(context.Context, *transport.Request) (*transport.Response, error) {
		order = append(order, "core")
		return &transport.Response{Content: "ok"}, nil
	})

	h := transport.Chain(core, mark("first"), mark("second"), mark("third"))
	resp, err := h.Handle(context.Background(), &transport.Request{})

	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, []string{"first", "second", "third", "core"}, order)
}

func TestHTTPHandler_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	h := transport.NewHTTPHandler(srv.Client(), mapRouter{"stub": stubAdapter{url: srv.URL}})
	resp, err := h.Handle(context.Background(), &transport.Request{Provider: "stub", UserPrompt: "hola"})

	require.NoError(t, err)
	assert.Equal(t, "hola", resp.Content)
	assert.GreaterOrEqual(t, resp.Usage.LatencyMs, int64(0))
}

func TestHTTPHandler_PrefersInvoker(t *testing.T) {
	adapter := &invokeAdapter{}
	h := transport.NewHTTPHandler(http.DefaultClient, mapRouter{"sdk": adapter})

	resp, err := h.Handle(context.Background(), &transport.Request{Provider: "sdk", Model: "m1"})

	require.NoError(t, err)
	assert.Equal(t, "invoked:m1", resp.Content)
	assert.Equal(t, 1, adapter.calls)
}

func TestHTTPHandler_UnknownProvider(t *testing.T) {
	h := transport.NewHTTPHandler(http.DefaultClient, mapRouter{})
	_, err := h.Handle(context.Background(), &transport.Request{Provider: "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to select provider")
}

func TestHTTPHandler_PerRequestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	h := transport.NewHTTPHandler(srv.Client(), mapRouter{"stub": stubAdapter{url: srv.URL}})
	_, err := h.Handle(context.Background(), &transport.Request{Provider: "stub", Timeout: 50 * time.Millisecond})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRequest_ModelID(t *testing.T) {
	r := &transport.Request{Provider: "openrouter", Model: "anthropic/claude-sonnet-4.5"}
	assert.Equal(t, "openrouter/anthropic/claude-sonnet-4.5", r.ModelID())
}
