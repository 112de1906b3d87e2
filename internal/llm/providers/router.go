// Package providers adapts the scoring transport to concrete model services.
package providers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ahrav/go-clinaudit/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-clinaudit/internal/llm/errors"
	"github.com/ahrav/go-clinaudit/internal/llm/transport"
)

// NewRouter creates a router with configured provider adapters. OpenRouter is
// always available; Gemini is registered only when it has an API key.
func NewRouter(ctx context.Context, configs map[string]configuration.ProviderConfig, httpClient *http.Client) (transport.Router, error) {
	adapters := make(map[string]transport.ProviderAdapter)

	for name, cfg := range configs {
		switch name {
		case configuration.ProviderOpenRouter:
			adapters[name] = NewOpenRouterAdapter(cfg)
		case configuration.ProviderGemini:
			if cfg.APIKey == "" {
				continue
			}
			adapter, err := NewGeminiAdapter(ctx, cfg, httpClient)
			if err != nil {
				return nil, err
			}
			adapters[name] = adapter
		default:
			return nil, fmt.Errorf("%w: %s", llmerrors.ErrUnknownProvider, name)
		}
	}

	if _, ok := adapters[configuration.ProviderOpenRouter]; !ok {
		adapters[configuration.ProviderOpenRouter] = NewOpenRouterAdapter(configuration.ProviderConfig{})
	}

	return &router{adapters: adapters}, nil
}

// router implements transport.Router with a fixed adapter registry.
type router struct {
	adapters map[string]transport.ProviderAdapter
}

// Pick returns the adapter registered under provider.
func (r *router) Pick(provider string) (transport.ProviderAdapter, error) {
	adapter, ok := r.adapters[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", llmerrors.ErrUnknownProvider, provider)
	}
	return adapter, nil
}
