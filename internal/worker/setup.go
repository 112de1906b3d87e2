package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	sdkworker "go.temporal.io/sdk/worker"

	"github.com/ahrav/go-clinaudit/internal/activity"
	"github.com/ahrav/go-clinaudit/internal/workflow"
)

// ErrInvalidConfig indicates the Temporal settings are incomplete.
var ErrInvalidConfig = errors.New("invalid temporal configuration")

// Config addresses the Temporal cluster and the cron schedule.
// CronSchedule is a standard five-field expression; empty disables scheduling.
type Config struct {
	HostPort     string `yaml:"host_port"`
	Namespace    string `yaml:"namespace"`
	TaskQueue    string `yaml:"task_queue"`
	WorkflowID   string `yaml:"workflow_id"`
	CronSchedule string `yaml:"cron_schedule"`
}

// DefaultConfig runs the audit daily at 06:00 on a local cluster.
func DefaultConfig() Config {
	return Config{
		HostPort:     client.DefaultHostPort,
		Namespace:    client.DefaultNamespace,
		TaskQueue:    "clinaudit",
		WorkflowID:   "clinaudit-daily",
		CronSchedule: "0 6 * * *",
	}
}

// Validate checks required fields.
func (c Config) Validate() error {
	switch {
	case c.HostPort == "":
		return fmt.Errorf("%w: host_port is required", ErrInvalidConfig)
	case c.TaskQueue == "":
		return fmt.Errorf("%w: task_queue is required", ErrInvalidConfig)
	case c.CronSchedule != "" && c.WorkflowID == "":
		return fmt.Errorf("%w: workflow_id is required with cron_schedule", ErrInvalidConfig)
	}
	return nil
}

// Dial connects to the cluster, routing SDK logs through logger.
func Dial(cfg Config, logger *slog.Logger) (client.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    tlog.NewStructuredLogger(logger.With("component", "temporal")),
	})
	if err != nil {
		return nil, fmt.Errorf("dial temporal %s: %w", cfg.HostPort, err)
	}
	return c, nil
}

// New builds a worker with the audit workflow and activity registered. One
// activity at a time: the pipeline is a single sequential worker.
func New(c client.Client, cfg Config, acts *activity.Activities) sdkworker.Worker {
	w := sdkworker.New(c, cfg.TaskQueue, sdkworker.Options{
		MaxConcurrentActivityExecutionSize: 1,
	})
	RegisterAll(w, acts)
	return w
}

// workflowStarter is the subset of client.Client used by Schedule.
type workflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// StartOptions returns the options for starting the audit workflow. With a
// cron schedule the workflow ID is fixed so repeated starts attach to the
// running schedule instead of creating a second one.
func StartOptions(cfg Config, now time.Time) client.StartWorkflowOptions {
	if cfg.CronSchedule != "" {
		return client.StartWorkflowOptions{
			ID:           cfg.WorkflowID,
			TaskQueue:    cfg.TaskQueue,
			CronSchedule: cfg.CronSchedule,
		}
	}
	return client.StartWorkflowOptions{
		ID:        fmt.Sprintf("clinaudit-manual-%s", now.UTC().Format("20060102T150405")),
		TaskQueue: cfg.TaskQueue,
	}
}

// Schedule starts the audit workflow, on the cron schedule when configured.
func Schedule(ctx context.Context, c workflowStarter, cfg Config, now time.Time) (client.WorkflowRun, error) {
	trigger := activity.TriggerSchedule
	if cfg.CronSchedule == "" {
		trigger = activity.TriggerManual
	}
	in := activity.RunInput{Trigger: trigger, RequestedAt: now}

	run, err := c.ExecuteWorkflow(ctx, StartOptions(cfg, now), workflow.AuditWorkflow, in)
	if err != nil {
		return nil, fmt.Errorf("start audit workflow: %w", err)
	}
	return run, nil
}
