// Package ratelimit paces outgoing scoring calls with local token buckets.
//
// Unlike a server-side limiter, a batch client should wait for a token rather
// than fail the attempt: a rejected call would burn one of the model's retries.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-clinaudit/internal/llm/configuration"
	"github.com/ahrav/go-clinaudit/internal/llm/transport"
)

var (
	errNegativeRate  = errors.New("tokens_per_second must be >= 0")
	errInvalidBurst  = errors.New("burst_size must be greater than 0")
	errNilRateConfig = errors.New("rate limit config is nil")
)

// slowWaitThreshold is the wait above which the limiter logs the delay.
const slowWaitThreshold = 500 * time.Millisecond

// rateLimitMiddleware keeps one token bucket per provider. Buckets are created
// lazily and live for the lifetime of the client.
type rateLimitMiddleware struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	config   configuration.RateLimitConfig
	logger   *slog.Logger
}

// NewRateLimitMiddleware returns a middleware that blocks each request until
// its provider's bucket has a token. A disabled config or a non-positive rate
// yields a pass-through middleware.
func NewRateLimitMiddleware(cfg *configuration.RateLimitConfig, logger *slog.Logger) (transport.Middleware, error) {
	if err := validateRateLimitConfig(cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	if !cfg.Enabled || cfg.TokensPerSecond == 0 {
		return func(next transport.Handler) transport.Handler { return next }, nil
	}

	r := &rateLimitMiddleware{
		limiters: make(map[string]*rate.Limiter),
		config:   *cfg,
		logger:   logger.With("component", "ratelimit"),
	}
	return r.middleware(), nil
}

func validateRateLimitConfig(cfg *configuration.RateLimitConfig) error {
	if cfg == nil {
		return errNilRateConfig
	}
	if !cfg.Enabled {
		return nil
	}
	if cfg.TokensPerSecond < 0 {
		return fmt.Errorf("%w, got %v", errNegativeRate, cfg.TokensPerSecond)
	}
	if cfg.TokensPerSecond > 0 && cfg.BurstSize <= 0 {
		return fmt.Errorf("%w, got %d", errInvalidBurst, cfg.BurstSize)
	}
	return nil
}

func (r *rateLimitMiddleware) middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			limiter := r.getOrCreateLimiter(req.Provider)

			start := time.Now()
			if err := limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait for %s: %w", req.Provider, err)
			}
			if waited := time.Since(start); waited > slowWaitThreshold {
				r.logger.Debug("request delayed by rate limiter",
					"provider", req.Provider,
					"waited", waited)
			}

			return next.Handle(ctx, req)
		})
	}
}

func (r *rateLimitMiddleware) getOrCreateLimiter(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[key]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(r.config.TokensPerSecond), r.config.BurstSize)
	r.limiters[key] = l
	return l
}
