package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-clinaudit/internal/activity"
	"github.com/ahrav/go-clinaudit/internal/app"
	"github.com/ahrav/go-clinaudit/internal/audit"
	"github.com/ahrav/go-clinaudit/internal/config"
	"github.com/ahrav/go-clinaudit/internal/logging"
	"github.com/ahrav/go-clinaudit/internal/metrics"
	"github.com/ahrav/go-clinaudit/internal/worker"
)

func newWorkerCmd(g *globalFlags) *cobra.Command {
	var schedule bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the Temporal worker executing scheduled audits",
		Long: `Worker connects to Temporal and executes audit batches as activities.
With --schedule it also starts the audit workflow on the configured cron
schedule; starting it again attaches to the existing schedule.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			logger, err := newLogger(cmd, cfg)
			if err != nil {
				return err
			}
			defer logger.Close()

			c, err := worker.Dial(cfg.Temporal, logger.Logger)
			if err != nil {
				return err
			}
			defer c.Close()

			w := worker.New(c, cfg.Temporal, activity.NewActivities(runnerFactory(cfg, logger)))

			if schedule {
				run, err := worker.Schedule(cmd.Context(), c, cfg.Temporal, time.Now())
				if err != nil {
					return err
				}
				logger.Info("audit workflow scheduled",
					"workflow_id", run.GetID(),
					"run_id", run.GetRunID(),
					"cron", cfg.Temporal.CronSchedule)
			}

			logger.Info("worker started", "task_queue", cfg.Temporal.TaskQueue)
			return w.Run(interruptCh(cmd.Context()))
		},
	}

	cmd.Flags().BoolVar(&schedule, "schedule", false, "start the audit workflow before serving")
	return cmd
}

// runnerFactory builds a fresh pipeline for every activity attempt so each
// attempt gets its own result file and lock.
func runnerFactory(cfg *config.Config, logger *logging.Logger) activity.RunnerFactory {
	return func(ctx context.Context, hook audit.ItemHook) (activity.Runner, func(), error) {
		m := metrics.New(logger.Logger)
		run, err := app.Build(ctx, cfg, app.Deps{
			Logger:  logger.Logger,
			Metrics: m,
			LogPath: logger.Path,
			Hook:    hook,
		})
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			_ = run.Close()
			pushMetrics(cfg, m, logger)
		}
		return run, cleanup, nil
	}
}

// interruptCh closes when ctx is done, which is how the worker learns about
// SIGINT/SIGTERM.
func interruptCh(ctx context.Context) <-chan interface{} {
	ch := make(chan interface{})
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch
}
