package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-clinaudit/internal/app"
	"github.com/ahrav/go-clinaudit/internal/config"
	"github.com/ahrav/go-clinaudit/internal/logging"
	"github.com/ahrav/go-clinaudit/internal/metrics"
)

func newRunCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Audit one batch, then publish the report",
		Long: `Run fetches the batch, scores every encounter not yet completed in the
ledger, then writes the HTML report, uploads the artifacts and emails the
report when those integrations are configured. It exits non-zero only when the
batch itself cannot be fetched or the run is interrupted.`,
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

			return runOnce(cmd.Context(), cfg, logger)
		},
	}
}

func runOnce(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	m := metrics.New(logger.Logger)
	defer pushMetrics(cfg, m, logger)

	run, err := app.Build(ctx, cfg, app.Deps{
		Logger:  logger.Logger,
		Metrics: m,
		LogPath: logger.Path,
	})
	if err != nil {
		logger.Error("pipeline setup failed", "error", err)
		return err
	}
	defer run.Close()

	if _, err := run.Run(ctx); err != nil {
		logger.Error("audit run failed", "error", err)
		return err
	}
	return nil
}

// pushMetrics sends the run's metrics when a Pushgateway is configured. It
// uses its own deadline so an interrupted run still reports.
func pushMetrics(cfg *config.Config, m *metrics.Metrics, logger *logging.Logger) {
	if cfg.Metrics.PushgatewayURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.Push(ctx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); err != nil {
		logger.Warn("metrics push failed", "error", err)
	}
}
