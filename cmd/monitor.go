package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/quakemap/internal/monitoring"
	"github.com/sells-group/quakemap/internal/store"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Check sync health and strong quakes, alerting via webhook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("monitor"); err != nil {
			return err
		}

		st, err := openMigratedStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		checker := newChecker(st)
		if watch, _ := cmd.Flags().GetBool("watch"); watch {
			checker.Run(ctx)
			return nil
		}

		alerts, err := checker.Check(ctx)
		if err != nil {
			return eris.Wrap(err, "monitor")
		}
		if format, _ := cmd.Flags().GetString("format"); format == "json" {
			return writeJSON(os.Stdout, nonNilAlerts(alerts))
		}
		formatAlerts(os.Stdout, alerts)
		return nil
	},
}

func init() {
	monitorCmd.Flags().Bool("watch", false, "check every monitoring.check_interval_secs until interrupted")
	monitorCmd.Flags().String("format", "table", "output format (table, json)")
	rootCmd.AddCommand(monitorCmd)
}

func newChecker(st store.Store) *monitoring.Checker {
	m := cfg.Monitoring
	return monitoring.NewChecker(
		monitoring.NewCollector(st, m.AlertMagnitude),
		monitoring.NewAlerter(m),
		m,
	)
}

// formatAlerts writes one row per alert.
func formatAlerts(out io.Writer, alerts []monitoring.Alert) {
	if len(alerts) == 0 {
		_, _ = fmt.Fprintln(out, "No alerts.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TYPE\tSEVERITY\tMESSAGE")
	_, _ = fmt.Fprintln(w, "----\t--------\t-------")
	for _, a := range alerts {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", a.Type, a.Severity, a.Message)
	}
	_ = w.Flush()
}

func nonNilAlerts(alerts []monitoring.Alert) []monitoring.Alert {
	if alerts == nil {
		return []monitoring.Alert{}
	}
	return alerts
}
