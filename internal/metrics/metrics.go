// Package metrics exposes run and scoring observations as Prometheus
// collectors and pushes them to a Pushgateway at the end of a batch run.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/ahrav/go-clinaudit/internal/audit"
	"github.com/ahrav/go-clinaudit/internal/llm"
)

const namespace = "clinaudit"

// Metrics holds every collector on a private registry so tests and repeated
// runs in one process never collide with the global default registry.
type Metrics struct {
	registry *prometheus.Registry
	logger   *slog.Logger

	ScoringAttempts *prometheus.CounterVec
	ScoringLatency  *prometheus.HistogramVec
	ScoringTokens   *prometheus.CounterVec
	Items           *prometheus.CounterVec
	RunItems        *prometheus.GaugeVec
	RunDuration     prometheus.Gauge
	LastRunTime     prometheus.Gauge

	mu       sync.Mutex
	unknowns map[string]struct{}
}

// New registers all collectors on a fresh registry.
func New(logger *slog.Logger) *Metrics {
	if logger == nil {
		logger = slog.Default()
	}
	reg := prometheus.NewRegistry()
	f := func(c prometheus.Collector) { reg.MustRegister(c) }

	m := &Metrics{
		registry: reg,
		logger:   logger.With("component", "metrics"),
		unknowns: make(map[string]struct{}),

		ScoringAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scoring_attempts_total",
			Help:      "Scoring attempts by provider, model and outcome",
		}, []string{"provider", "model", "outcome"}),

		ScoringLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scoring_attempt_duration_seconds",
			Help:      "Duration of individual scoring attempts",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}, []string{"provider", "model", "outcome"}),

		ScoringTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scoring_tokens_total",
			Help:      "Tokens consumed by successful scoring calls",
		}, []string{"provider", "model"}),

		Items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Items handled by outcome",
		}, []string{"outcome"}),

		RunItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_items",
			Help:      "Item counts of the last run by state",
		}, []string{"state"}),

		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run",
		}),

		LastRunTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
	}

	f(m.ScoringAttempts)
	f(m.ScoringLatency)
	f(m.ScoringTokens)
	f(m.Items)
	f(m.RunItems)
	f(m.RunDuration)
	f(m.LastRunTime)
	return m
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// IncrementCounter implements llm.Metrics.
func (m *Metrics) IncrementCounter(name string, tags map[string]string, value float64) {
	switch name {
	case llm.MetricAttemptsTotal:
		m.ScoringAttempts.WithLabelValues(tags["provider"], tags["model"], tags["outcome"]).Add(value)
	case llm.MetricTokensTotal:
		m.ScoringTokens.WithLabelValues(tags["provider"], tags["model"]).Add(value)
	default:
		m.unknown(name)
	}
}

// RecordHistogram implements llm.Metrics. Durations arrive in milliseconds.
func (m *Metrics) RecordHistogram(name string, tags map[string]string, value float64) {
	if name != llm.MetricAttemptDuration {
		m.unknown(name)
		return
	}
	m.ScoringLatency.WithLabelValues(tags["provider"], tags["model"], tags["outcome"]).Observe(value / 1000)
}

// SetGauge implements llm.Metrics. No gauges are emitted by the scoring chain.
func (m *Metrics) SetGauge(name string, _ map[string]string, _ float64) {
	m.unknown(name)
}

func (m *Metrics) unknown(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, seen := m.unknowns[name]; seen {
		return
	}
	m.unknowns[name] = struct{}{}
	m.logger.Debug("dropping unregistered metric", "name", name)
}

// RecordItem implements audit.Recorder.
func (m *Metrics) RecordItem(outcome audit.Outcome) {
	m.Items.WithLabelValues(string(outcome)).Inc()
}

// RecordRun implements audit.Recorder.
func (m *Metrics) RecordRun(s *audit.Summary) {
	m.RunItems.WithLabelValues("total").Set(float64(s.Total))
	m.RunItems.WithLabelValues("processed").Set(float64(s.Processed))
	m.RunItems.WithLabelValues("skipped").Set(float64(s.Skipped))
	m.RunItems.WithLabelValues("completed").Set(float64(s.Completed))
	m.RunItems.WithLabelValues("failed").Set(float64(s.Failed))
	m.RunDuration.Set(s.Duration().Seconds())
	m.LastRunTime.Set(float64(s.FinishedAt.Unix()))
}

// Push sends the registry to the Pushgateway at url under job, replacing the
// previous push for the same grouping.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	m.logger.Info("metrics pushed", "url", url, "job", job)
	return nil
}

var (
	_ llm.Metrics    = (*Metrics)(nil)
	_ audit.Recorder = (*Metrics)(nil)
)
