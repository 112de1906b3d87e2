package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/ahrav/go-clinaudit/internal/activity"
	"github.com/ahrav/go-clinaudit/internal/audit"
)

// Activity timing. The heartbeat timeout must exceed the worst case for one
// item: every attempt on every model timing out plus backoff.
const (
	batchTimeout     = 6 * time.Hour
	heartbeatTimeout = 15 * time.Minute
)

// AuditWorkflow runs one audit batch and returns its summary.
func AuditWorkflow(ctx workflow.Context, in activity.RunInput) (*audit.Summary, error) {
	const currentVersion = 1
	_ = workflow.GetVersion(ctx, "audit.v", workflow.DefaultVersion, currentVersion)

	if err := in.Validate(); err != nil {
		return nil, temporal.NewNonRetryableApplicationError(
			"invalid audit request",
			activity.TypeValidation,
			err,
		)
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: batchTimeout,
		HeartbeatTimeout:    heartbeatTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Minute,
			BackoffCoefficient:     2.0,
			MaximumInterval:        15 * time.Minute,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{activity.TypeValidation, activity.TypeSetup},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var acts *activity.Activities
	var summary audit.Summary
	if err := workflow.ExecuteActivity(ctx, acts.RunBatch, in).Get(ctx, &summary); err != nil {
		return nil, err
	}

	workflow.GetLogger(ctx).Info("audit batch complete",
		"run_id", summary.RunID,
		"processed", summary.Processed,
		"failed", summary.Failed)
	return &summary, nil
}
