// Package llm provides the scoring client: one call per item that walks an
// ordered list of models, retrying each a bounded number of times, and returns
// a validated AuditResult or a tagged error.
//
// Architecture:
//   - Provider-agnostic transport with an adapter per provider
//   - Middleware chain: retry, logging, rate limiting, schema validation
//   - Request/response only; no streaming
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ahrav/go-clinaudit/internal/domain"
	"github.com/ahrav/go-clinaudit/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-clinaudit/internal/llm/errors"
	"github.com/ahrav/go-clinaudit/internal/llm/providers"
	"github.com/ahrav/go-clinaudit/internal/llm/ratelimit"
	"github.com/ahrav/go-clinaudit/internal/llm/retry"
	"github.com/ahrav/go-clinaudit/internal/llm/transport"
	"github.com/ahrav/go-clinaudit/internal/scoring"
)

// Client scores one formatted clinical record.
type Client interface {
	// Score returns the validated result with the identification fields of
	// item merged in, or a *llmerrors.ScoringError once every model failed.
	Score(ctx context.Context, record string, item domain.RawItem) (*domain.AuditResult, error)
}

// Option customizes client construction.
type Option func(*clientOptions)

type clientOptions struct {
	metrics Metrics
	core    transport.Handler
}

// WithMetrics routes per-attempt counters and latencies to m.
func WithMetrics(m Metrics) Option {
	return func(o *clientOptions) { o.metrics = m }
}

// WithCoreHandler replaces the provider-calling handler at the bottom of the
// chain. Middleware still applies.
func WithCoreHandler(h transport.Handler) Option {
	return func(o *clientOptions) { o.core = h }
}

type modelRef struct {
	id       string
	provider string
	model    string
}

type client struct {
	config  *configuration.Config
	handler transport.Handler
	models  []modelRef
	logger  *slog.Logger
}

// NewClient validates cfg and builds the middleware pipeline, outermost first:
// retry, logging, rate limit, schema validation, provider call.
func NewClient(ctx context.Context, cfg *configuration.Config, logger *slog.Logger, opts ...Option) (Client, error) {
	if cfg == nil {
		cfg = configuration.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	o := clientOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	core := o.core
	if core == nil {
		httpClient := cfg.HTTPClient
		if httpClient == nil {
			httpClient = newHTTPClient()
		}
		router, err := providers.NewRouter(ctx, cfg.Providers, httpClient)
		if err != nil {
			return nil, fmt.Errorf("failed to create router: %w", err)
		}
		core = transport.NewHTTPHandler(httpClient, router)
	}

	retryMW, err := retry.NewRetryMiddlewareWithConfig(cfg.Retry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create retry middleware: %w", err)
	}
	rateMW, err := ratelimit.NewRateLimitMiddleware(&cfg.RateLimit, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit middleware: %w", err)
	}

	handler := transport.Chain(core,
		retryMW,
		NewLoggingMiddleware(logger, o.metrics),
		rateMW,
		scoring.NewValidationMiddleware(),
	)

	models := make([]modelRef, 0, len(cfg.Models))
	for _, id := range cfg.Models {
		p, m := configuration.SplitModel(id)
		models = append(models, modelRef{id: id, provider: p, model: m})
	}

	return &client{
		config:  cfg,
		handler: handler,
		models:  models,
		logger:  logger.With("component", "scoring_client"),
	}, nil
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        configuration.DefaultMaxIdleConns,
			IdleConnTimeout:     configuration.DefaultIdleTimeoutSeconds * time.Second,
			TLSHandshakeTimeout: configuration.DefaultTLSTimeoutSeconds * time.Second,
		},
	}
}

// Score walks the models in order. Each model gets a fresh attempt budget.
func (c *client) Score(ctx context.Context, record string, item domain.RawItem) (*domain.AuditResult, error) {
	userPrompt := scoring.UserPrompt(record, item)

	var lastErr error
	attempts := 0

	for i, m := range c.models {
		if err := ctx.Err(); err != nil {
			return nil, &llmerrors.ScoringError{Kind: llmerrors.KindFatal, Attempts: attempts, Err: err}
		}

		req := &transport.Request{
			Provider:     m.provider,
			Model:        m.model,
			SystemPrompt: scoring.SystemInstruction,
			UserPrompt:   userPrompt,
			Temperature:  c.config.Temperature,
			MaxTokens:    c.config.MaxTokens,
			Timeout:      c.config.HTTPTimeout,
			ItemKey:      item.Key.String(),
		}

		resp, err := c.handler.Handle(ctx, req)
		if err == nil {
			if resp == nil || resp.Result == nil {
				err = &llmerrors.ValidationError{Message: "no result produced", Err: llmerrors.ErrInvalidResponse}
			} else {
				return resp.Result.WithIdentification(item), nil
			}
		}

		var se *llmerrors.ScoringError
		if errors.As(err, &se) {
			attempts += se.Attempts
		} else {
			attempts++
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &llmerrors.ScoringError{Kind: llmerrors.KindFatal, Model: m.id, Attempts: attempts, Err: err}
		}

		if i < len(c.models)-1 {
			c.logger.Warn("model exhausted, trying next model",
				"model", m.id,
				"next_model", c.models[i+1].id,
				"key", item.Key.String(),
				"error", err)
		}
	}

	c.logger.Error("all models failed",
		"key", item.Key.String(),
		"models", len(c.models),
		"attempts", attempts,
		"error", lastErr)

	return nil, &llmerrors.ScoringError{Kind: llmerrors.KindExhausted, Attempts: attempts, Err: lastErr}
}
