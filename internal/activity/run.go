// Package activity runs the audit pipeline as a Temporal activity.
package activity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.temporal.io/sdk/activity"

	"github.com/ahrav/go-clinaudit/internal/audit"
	"github.com/ahrav/go-clinaudit/internal/domain"
)

// Triggers accepted by RunInput.
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// RunInput starts one batch run.
type RunInput struct {
	Trigger     string    `json:"trigger" validate:"required,oneof=schedule manual"`
	RequestedAt time.Time `json:"requested_at"`
}

// Validate checks the input against its struct tags.
func (in RunInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %w", ErrActivityValidation, err)
	}
	return nil
}

// Runner executes one batch.
type Runner interface {
	Run(ctx context.Context) (*audit.Summary, error)
}

// RunnerFactory assembles a Runner for one activity attempt. The hook must be
// installed on the orchestrator so progress reaches the heartbeat. cleanup
// releases whatever the runner holds (database handle, lock).
type RunnerFactory func(ctx context.Context, hook audit.ItemHook) (r Runner, cleanup func(), err error)

// Progress is the heartbeat payload.
type Progress struct {
	Index   int           `json:"index"`
	Total   int           `json:"total"`
	Key     string        `json:"key"`
	Outcome audit.Outcome `json:"outcome"`
}

// Activities holds the dependencies of the audit activities.
type Activities struct {
	newRunner RunnerFactory
}

// NewActivities returns activities building their pipeline with f.
func NewActivities(f RunnerFactory) *Activities {
	return &Activities{newRunner: f}
}

// RunBatch runs one full batch and returns its summary. Item-level failures
// are part of the summary; only batch acquisition failures and cancellation
// fail the activity. A batch failure is retryable because the source is
// usually back within the retry window.
func (a *Activities) RunBatch(ctx context.Context, in RunInput) (*audit.Summary, error) {
	if err := in.Validate(); err != nil {
		return nil, nonRetryable(TypeValidation, err, "invalid input")
	}

	hook := func(index, total int, key domain.ItemKey, outcome audit.Outcome) {
		recordHeartbeat(ctx, Progress{Index: index, Total: total, Key: key.String(), Outcome: outcome})
	}

	runner, cleanup, err := a.newRunner(ctx, hook)
	if err != nil {
		return nil, nonRetryable(TypeSetup, fmt.Errorf("%w: %w", ErrRunSetup, err), "pipeline setup failed")
	}
	defer cleanup()

	safeLog(ctx, "audit batch started", "trigger", in.Trigger)
	summary, err := runner.Run(ctx)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrBatchUnavailable):
		return nil, retryable(TypeBatch, err, "batch unavailable")
	default:
		return summary, retryable(TypeRun, err, "audit run aborted")
	}

	safeLog(ctx, "audit batch finished",
		"run_id", summary.RunID,
		"processed", summary.Processed,
		"failed", summary.Failed)
	return summary, nil
}

// recordHeartbeat is a no-op outside an activity context so RunBatch can be
// called directly in tests.
func recordHeartbeat(ctx context.Context, details ...any) {
	defer func() { _ = recover() }()
	activity.RecordHeartbeat(ctx, details...)
}

func safeLog(ctx context.Context, msg string, keyvals ...any) {
	defer func() { _ = recover() }()
	activity.GetLogger(ctx).Info(msg, keyvals...)
}
