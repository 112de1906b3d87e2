// Package retry bounds and paces repeated attempts against a single model.
// Falling back to another model is the client's job, not this package's.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahrav/go-clinaudit/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-clinaudit/internal/llm/errors"
	"github.com/ahrav/go-clinaudit/internal/llm/transport"
)

var (
	errMaxAttemptsInvalid = errors.New("maxAttempts must be greater than 0")
	errBackoffInvalid     = errors.New("backoffUnit must be >= 0")
)

// retryMiddleware retries a request against the same model until it succeeds,
// hits a non-retryable failure, or spends its attempt budget.
type retryMiddleware struct {
	config configuration.RetryConfig
	logger *slog.Logger
	stats  *retryStats

	// wait blocks for d or until ctx is done.
	wait func(ctx context.Context, d time.Duration) error
}

// NewRetryMiddlewareWithConfig creates retry middleware with specified configuration.
func NewRetryMiddlewareWithConfig(cfg configuration.RetryConfig, logger *slog.Logger) (transport.Middleware, error) {
	m, err := newRetryMiddleware(cfg, logger)
	if err != nil {
		return nil, err
	}
	return m.middleware(), nil
}

func newRetryMiddleware(cfg configuration.RetryConfig, logger *slog.Logger) (*retryMiddleware, error) {
	if cfg.MaxAttempts <= 0 {
		return nil, fmt.Errorf("%w, got %d", errMaxAttemptsInvalid, cfg.MaxAttempts)
	}
	if cfg.BackoffUnit < 0 {
		return nil, fmt.Errorf("%w, got %v", errBackoffInvalid, cfg.BackoffUnit)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &retryMiddleware{
		config: cfg,
		logger: logger.With("component", "retry"),
		stats:  &retryStats{},
		wait:   sleepContext,
	}, nil
}

// middleware returns the retry middleware function. On exhaustion it returns a
// *llmerrors.ScoringError carrying the kind of the last failure and the number
// of attempts made.
func (r *retryMiddleware) middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			if err := ctx.Err(); err != nil {
				return nil, &llmerrors.ScoringError{Kind: llmerrors.KindFatal, Model: req.ModelID(), Err: err}
			}

			var lastErr error
			attempts := 0

			for attempt := 0; attempt < r.config.MaxAttempts; attempt++ {
				attempts++
				resp, err := next.Handle(ctx, req)
				r.stats.totalAttempts.Add(1)

				if err == nil {
					if attempt > 0 {
						r.stats.successfulRetries.Add(1)
						r.logger.Info("request succeeded after retry",
							"attempt", attempt+1,
							"model", req.ModelID(),
							"key", req.ItemKey)
					} else {
						r.stats.successfulFirstAttempts.Add(1)
					}
					return resp, nil
				}

				if ctxErr := ctx.Err(); ctxErr != nil {
					err = fmt.Errorf("%w: %w", ctxErr, err)
				}
				lastErr = err
				kind := llmerrors.Classify(err)

				r.logger.Warn("scoring attempt failed",
					"attempt", attempt+1,
					"max_attempts", r.config.MaxAttempts,
					"model", req.ModelID(),
					"key", req.ItemKey,
					"kind", kind,
					"error", err)

				if !llmerrors.Retryable(kind) {
					r.stats.failedRetries.Add(1)
					return nil, &llmerrors.ScoringError{Kind: kind, Model: req.ModelID(), Attempts: attempts, Err: err}
				}

				// No pause after the model's last attempt; the caller moves on.
				if attempt == r.config.MaxAttempts-1 {
					break
				}

				backoff := Backoff(attempt, r.config.BackoffUnit)
				r.stats.recordBackoff(backoff)

				if err := r.wait(ctx, backoff); err != nil {
					r.stats.failedRetries.Add(1)
					return nil, &llmerrors.ScoringError{Kind: llmerrors.KindFatal, Model: req.ModelID(), Attempts: attempts, Err: err}
				}
			}

			r.stats.failedRetries.Add(1)
			stats := r.stats.snapshot()
			r.logger.Warn("model attempts exhausted",
				"model", req.ModelID(),
				"key", req.ItemKey,
				"attempts", attempts,
				"failed_calls_total", stats.FailedRetries,
				"max_backoff", stats.MaxBackoff)
			return nil, &llmerrors.ScoringError{
				Kind:     llmerrors.Classify(lastErr),
				Model:    req.ModelID(),
				Attempts: attempts,
				Err:      lastErr,
			}
		})
	}
}

// sleepContext waits with context cancellation to enable graceful shutdown.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
