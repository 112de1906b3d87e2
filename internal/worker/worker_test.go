package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/testsuite"

	"github.com/ahrav/go-clinaudit/internal/activity"
	"github.com/ahrav/go-clinaudit/internal/audit"
	"github.com/ahrav/go-clinaudit/internal/workflow"
)

type okRunner struct{}

func (okRunner) Run(context.Context) (*audit.Summary, error) {
	return &audit.Summary{RunID: "r"}, nil
}

func TestRegisterAll(t *testing.T) {
	acts := activity.NewActivities(func(context.Context, audit.ItemHook) (activity.Runner, func(), error) {
		return okRunner{}, func() {}, nil
	})

	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	RegisterAll(env, acts)

	env.ExecuteWorkflow(workflow.AuditWorkflow, activity.RunInput{Trigger: activity.TriggerManual})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.TaskQueue = ""
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.WorkflowID = ""
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg.CronSchedule = ""
	assert.NoError(t, cfg.Validate())
}

func TestStartOptions(t *testing.T) {
	now := time.Date(2025, 11, 14, 6, 0, 0, 0, time.UTC)

	cron := StartOptions(DefaultConfig(), now)
	assert.Equal(t, "clinaudit-daily", cron.ID)
	assert.Equal(t, "0 6 * * *", cron.CronSchedule)

	cfg := DefaultConfig()
	cfg.CronSchedule = ""
	manual := StartOptions(cfg, now)
	assert.Equal(t, "clinaudit-manual-20251114T060000", manual.ID)
	assert.Empty(t, manual.CronSchedule)
	assert.Equal(t, "clinaudit", manual.TaskQueue)
}

type recordingStarter struct {
	opts client.StartWorkflowOptions
	args []interface{}
	err  error
}

func (r *recordingStarter) ExecuteWorkflow(_ context.Context, opts client.StartWorkflowOptions, _ interface{}, args ...interface{}) (client.WorkflowRun, error) {
	r.opts, r.args = opts, args
	return nil, r.err
}

func TestSchedule(t *testing.T) {
	now := time.Date(2025, 11, 14, 6, 0, 0, 0, time.UTC)

	rec := &recordingStarter{}
	_, err := Schedule(context.Background(), rec, DefaultConfig(), now)
	require.NoError(t, err)
	require.Len(t, rec.args, 1)
	assert.Equal(t, activity.RunInput{Trigger: activity.TriggerSchedule, RequestedAt: now}, rec.args[0])

	failing := &recordingStarter{err: errors.New("unavailable")}
	_, err = Schedule(context.Background(), failing, DefaultConfig(), now)
	assert.Error(t, err)
}
