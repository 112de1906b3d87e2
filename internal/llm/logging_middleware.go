package llm

import (
	"context"
	"log/slog"
	"time"

	llmerrors "github.com/ahrav/go-clinaudit/internal/llm/errors"
	"github.com/ahrav/go-clinaudit/internal/llm/transport"
)

// Metric names emitted by the logging middleware.
const (
	MetricAttemptsTotal   = "scoring.attempts.total"
	MetricAttemptDuration = "scoring.attempt.duration_ms"
	MetricTokensTotal     = "scoring.tokens.total"
	OutcomeSuccess        = "success"
)

// Metrics provides observability data collection for scoring operations.
type Metrics interface {
	IncrementCounter(name string, tags map[string]string, value float64)
	RecordHistogram(name string, tags map[string]string, value float64)
	SetGauge(name string, tags map[string]string, value float64)
}

// NoOpMetrics discards everything.
type NoOpMetrics struct{}

// NewNoOpMetrics creates a no-op metrics collector for testing environments.
func NewNoOpMetrics() *NoOpMetrics {
	return &NoOpMetrics{}
}

func (n *NoOpMetrics) IncrementCounter(_ string, _ map[string]string, _ float64) {}

func (n *NoOpMetrics) RecordHistogram(_ string, _ map[string]string, _ float64) {}

func (n *NoOpMetrics) SetGauge(_ string, _ map[string]string, _ float64) {}

// LoggingMiddleware records every individual attempt. It sits inside the retry
// middleware, so a call retried three times produces three records.
type LoggingMiddleware struct {
	logger  *slog.Logger
	metrics Metrics
}

// NewLoggingMiddleware creates per-attempt logging and metrics middleware.
func NewLoggingMiddleware(logger *slog.Logger, metrics Metrics) transport.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewNoOpMetrics()
	}

	lm := &LoggingMiddleware{
		logger:  logger.With("component", "scoring_transport"),
		metrics: metrics,
	}
	return lm.Middleware
}

// Middleware wraps the next handler with attempt logging.
func (m *LoggingMiddleware) Middleware(next transport.Handler) transport.Handler {
	return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		m.logger.Debug("scoring request started",
			"model", req.ModelID(),
			"key", req.ItemKey,
			"temperature", req.Temperature,
			"prompt_length", len(req.UserPrompt))

		start := time.Now()
		resp, err := next.Handle(ctx, req)
		duration := time.Since(start)

		outcome := OutcomeSuccess
		if err != nil {
			outcome = string(llmerrors.Classify(err))
		}

		tags := map[string]string{
			"provider": req.Provider,
			"model":    req.Model,
			"outcome":  outcome,
		}
		m.metrics.IncrementCounter(MetricAttemptsTotal, tags, 1)
		m.metrics.RecordHistogram(MetricAttemptDuration, tags, float64(duration.Milliseconds()))

		if err != nil {
			return nil, err
		}

		m.metrics.IncrementCounter(MetricTokensTotal, map[string]string{
			"provider": req.Provider,
			"model":    req.Model,
		}, float64(resp.Usage.TotalTokens))

		m.logger.Debug("scoring request completed",
			"model", req.ModelID(),
			"key", req.ItemKey,
			"duration_ms", duration.Milliseconds(),
			"total_tokens", resp.Usage.TotalTokens,
			"finish_reason", resp.FinishReason)

		return resp, nil
	})
}
