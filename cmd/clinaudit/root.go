package main

import (
	"github.com/spf13/cobra"

	"github.com/ahrav/go-clinaudit/internal/config"
	"github.com/ahrav/go-clinaudit/internal/logging"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	envFile    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "clinaudit",
		Short: "Resumable audit of emergency-care encounters",
		Long: `clinaudit fetches the day's emergency-care encounters, scores each clinical
record against international guidelines with a language model, and appends the
results to a JSON Lines file. A ledger makes runs resumable: completed
encounters are never scored twice.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", "", "dotenv file (default: .env when present)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(newRunCmd(g))
	root.AddCommand(newWorkerCmd(g))
	root.AddCommand(newLedgerCmd(g))
	return root
}

// load reads the configuration and applies flag overrides.
func (g *globalFlags) load() (*config.Config, error) {
	cfg, err := config.Load(g.configPath, g.envFile)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) (*logging.Logger, error) {
	return logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Dir:    cfg.Logging.Dir,
		Stdout: cmd.OutOrStdout(),
	})
}
