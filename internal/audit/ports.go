package audit

import (
	"context"

	"github.com/ahrav/go-clinaudit/internal/domain"
)

// Ledger is the idempotency store consulted before and updated after every item.
type Ledger interface {
	IsCompleted(key domain.ItemKey) bool
	MarkPending(key domain.ItemKey) error
	MarkCompleted(key domain.ItemKey) error
	MarkFailed(key domain.ItemKey, reason string) error
}

// Source provides the batch and the per-item clinical record.
type Source interface {
	FetchBatch(ctx context.Context) ([]domain.RawItem, error)
	FetchDetail(ctx context.Context, item domain.RawItem) (*domain.DetailRecord, error)
}

// Scorer turns a formatted record into a validated result.
type Scorer interface {
	Score(ctx context.Context, record string, item domain.RawItem) (*domain.AuditResult, error)
}

// ResultSink persists scored results.
type ResultSink interface {
	Append(r *domain.AuditResult) error
}

// Publisher runs after a completed batch: reports, uploads, notifications.
// Errors are logged and never change ledger state or the run outcome.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, s *Summary) error
}

// Recorder receives per-item and per-run observations.
type Recorder interface {
	RecordItem(outcome Outcome)
	RecordRun(s *Summary)
}

// ItemHook is invoked after every item, including skipped ones.
type ItemHook func(index, total int, key domain.ItemKey, outcome Outcome)

type pather interface {
	Path() string
}
