// Package audit runs one audit batch: it pulls the encounters of the window,
// skips those the ledger already records as completed, and scores the rest
// one at a time. A failing item is recorded in the ledger and never stops the
// batch; only a batch that cannot be fetched fails the run.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/go-clinaudit/internal/domain"
	"github.com/ahrav/go-clinaudit/internal/format"
)

// Orchestrator owns the run lifecycle. It is not safe to call Run concurrently
// against the same ledger.
type Orchestrator struct {
	source Source
	ledger Ledger
	scorer Scorer
	sink   ResultSink
	logger *slog.Logger

	format     func(*domain.DetailRecord) string
	publishers []Publisher
	recorder   Recorder
	onItem     ItemHook
	now        func() time.Time
	newRunID   func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPublishers registers post-run publishers, run in order.
func WithPublishers(p ...Publisher) Option {
	return func(o *Orchestrator) { o.publishers = append(o.publishers, p...) }
}

// WithRecorder routes item and run observations to r.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithItemHook registers fn to be called after every item.
func WithItemHook(fn ItemHook) Option {
	return func(o *Orchestrator) { o.onItem = fn }
}

// WithFormatter replaces format.Record.
func WithFormatter(fn func(*domain.DetailRecord) string) Option {
	return func(o *Orchestrator) { o.format = fn }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithRunID fixes the run identifier instead of generating one.
func WithRunID(id string) Option {
	return func(o *Orchestrator) { o.newRunID = func() string { return id } }
}

// New wires an Orchestrator. All four collaborators are required.
func New(src Source, ledger Ledger, scorer Scorer, sink ResultSink, logger *slog.Logger, opts ...Option) (*Orchestrator, error) {
	switch {
	case src == nil:
		return nil, errors.New("audit: source is required")
	case ledger == nil:
		return nil, errors.New("audit: ledger is required")
	case scorer == nil:
		return nil, errors.New("audit: scorer is required")
	case sink == nil:
		return nil, errors.New("audit: result sink is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	o := &Orchestrator{
		source:   src,
		ledger:   ledger,
		scorer:   scorer,
		sink:     sink,
		logger:   logger.With("component", "orchestrator"),
		format:   format.Record,
		now:      time.Now,
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run processes one batch. It returns an error wrapping
// domain.ErrBatchUnavailable when the batch cannot be fetched, and the partial
// summary with ctx.Err() when cancelled between items. Per-item failures are
// only reflected in the summary.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	s := &Summary{
		RunID:     o.newRunID(),
		StartedAt: o.now(),
	}
	if p, ok := o.sink.(pather); ok {
		s.OutputPath = p.Path()
	}
	if p, ok := o.ledger.(pather); ok {
		s.LedgerPath = p.Path()
	}
	logger := o.logger.With("run_id", s.RunID)
	logger.Info("audit run started")

	items, err := o.source.FetchBatch(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrBatchUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrBatchUnavailable, err)
		}
		logger.Error("failed to fetch batch", "error", err)
		return nil, err
	}

	s.Total = len(items)
	if s.Total == 0 {
		logger.Warn("no encounters found in window")
		o.finish(ctx, logger, s)
		return s, nil
	}

	clinicianIdx := o.groupByClinician(logger, s, items)

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			logger.Warn("audit run cancelled", "remaining", s.Total-i, "error", err)
			s.FinishedAt = o.now()
			o.logSummary(logger, s)
			return s, err
		}

		outcome := o.processItem(ctx, logger, i+1, s.Total, item)
		if outcome == OutcomeInterrupted {
			logger.Warn("audit run cancelled", "remaining", s.Total-i, "error", ctx.Err())
			s.FinishedAt = o.now()
			o.logSummary(logger, s)
			return s, ctx.Err()
		}

		s.record(clinicianIdx[i], outcome)
		if o.recorder != nil {
			o.recorder.RecordItem(outcome)
		}
		if o.onItem != nil {
			o.onItem(i+1, s.Total, item.Key, outcome)
		}
	}

	o.finish(ctx, logger, s)
	return s, nil
}

// groupByClinician fills s.Clinicians and returns, per item, the index of its
// clinician in that slice.
func (o *Orchestrator) groupByClinician(logger *slog.Logger, s *Summary, items []domain.RawItem) []int {
	byID := make(map[int64]int)
	idx := make([]int, len(items))
	for i, it := range items {
		ci, ok := byID[it.ClinicianID]
		if !ok {
			ci = len(s.Clinicians)
			byID[it.ClinicianID] = ci
			s.Clinicians = append(s.Clinicians, ClinicianStats{ID: it.ClinicianID, Name: it.ClinicianName})
		}
		s.Clinicians[ci].Items++
		idx[i] = ci
	}

	logger.Info("batch fetched", "encounters", s.Total, "clinicians", len(s.Clinicians))
	for _, c := range s.Clinicians {
		logger.Info("clinician workload", "clinician", c.Name, "clinician_id", c.ID, "encounters", c.Items)
	}
	return idx
}

func (o *Orchestrator) processItem(ctx context.Context, logger *slog.Logger, index, total int, item domain.RawItem) Outcome {
	key := item.Key
	log := logger.With("index", index, "total", total, "key", key.Display())

	if o.ledger.IsCompleted(key) {
		log.Info("encounter already processed, skipping")
		return OutcomeSkipped
	}

	log.Info("processing encounter",
		"clinician", item.ClinicianName,
		"patient", item.PatientName,
		"attended_at", item.AttendedAt)

	if err := o.ledger.MarkPending(key); err != nil {
		log.Error("failed to record pending status", "error", err)
		o.markFailed(log, key, fmt.Sprintf("ledger: %v", err))
		return OutcomePersistFailed
	}

	detail, err := o.source.FetchDetail(ctx, item)
	if err != nil {
		if ctx.Err() != nil {
			return OutcomeInterrupted
		}
		fe := &domain.FetchError{Key: key, Err: err}
		log.Error("failed to fetch clinical record", "error", fe)
		o.markFailed(log, key, fe.Error())
		return OutcomeFetchFailed
	}

	result, err := o.scorer.Score(ctx, o.format(detail), item)
	if err != nil {
		if ctx.Err() != nil {
			return OutcomeInterrupted
		}
		log.Error("scoring failed", "error", err)
		o.markFailed(log, key, fmt.Sprintf("scoring: %v", err))
		return OutcomeScoringFailed
	}

	if err := o.sink.Append(result); err != nil {
		log.Error("failed to persist result", "error", err)
		o.markFailed(log, key, fmt.Sprintf("append result: %v", err))
		return OutcomePersistFailed
	}

	if err := o.ledger.MarkCompleted(key); err != nil {
		log.Error("failed to record completion", "error", err)
		o.markFailed(log, key, fmt.Sprintf("ledger: %v", err))
		return OutcomePersistFailed
	}

	log.Info("encounter audited",
		"score", result.QualityScore,
		"compliant", result.Compliant)
	return OutcomeCompleted
}

func (o *Orchestrator) markFailed(log *slog.Logger, key domain.ItemKey, reason string) {
	if err := o.ledger.MarkFailed(key, reason); err != nil {
		log.Error("failed to record failure", "reason", reason, "error", err)
	}
}

func (o *Orchestrator) finish(ctx context.Context, logger *slog.Logger, s *Summary) {
	s.FinishedAt = o.now()
	o.logSummary(logger, s)

	for _, p := range o.publishers {
		if err := p.Publish(ctx, s); err != nil {
			logger.Error("publisher failed", "publisher", p.Name(), "error", err)
			continue
		}
		logger.Info("publisher finished", "publisher", p.Name())
	}
}

func (o *Orchestrator) logSummary(logger *slog.Logger, s *Summary) {
	if o.recorder != nil {
		o.recorder.RecordRun(s)
	}
	logger.Info("audit run summary",
		"total", s.Total,
		"processed", s.Processed,
		"skipped", s.Skipped,
		"completed", s.Completed,
		"failed", s.Failed,
		"duration", s.Duration().Round(time.Millisecond),
		"output", s.OutputPath)
}
