package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-clinaudit/internal/domain"
	"github.com/ahrav/go-clinaudit/internal/ledger"
)

func newLedgerCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the idempotency ledger",
	}
	cmd.AddCommand(newLedgerShowCmd(g))
	return cmd
}

func newLedgerShowCmd(g *globalFlags) *cobra.Command {
	var (
		path   string
		status string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print ledger entries and totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				cfg, err := g.load()
				if err != nil {
					return err
				}
				path = cfg.Output.LedgerPath
			}
			switch domain.LedgerStatus(status) {
			case "", domain.StatusPending, domain.StatusCompleted, domain.StatusFailed:
			default:
				return fmt.Errorf("unknown status %q", status)
			}

			l, err := ledger.Open(path, nil)
			if err != nil {
				return err
			}
			return printLedger(cmd.OutOrStdout(), l, domain.LedgerStatus(status))
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "ledger file (default: output.ledger_path from config)")
	cmd.Flags().StringVar(&status, "status", "", "only show entries with this status")
	return cmd
}

func printLedger(w io.Writer, l *ledger.Ledger, filter domain.LedgerStatus) error {
	entries := l.Snapshot()
	keys := make([]string, 0, len(entries))
	for k, e := range entries {
		if filter == "" || e.Status == filter {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tSTATUS\tERROR")
	for _, k := range keys {
		e := entries[k]
		fmt.Fprintf(tw, "%s\t%s\t%s\n", k, e.Status, e.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	completed, failed, pending := l.Stats()
	_, err := fmt.Fprintf(w, "\n%s: %d entries, %d completed, %d failed, %d pending\n",
		l.Path(), len(entries), completed, failed, pending)
	return err
}
