package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/permitcheck/internal/monitoring"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show last refresh times and table sizes",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("query"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.EnsureState(ctx); err != nil {
			return err
		}
		snap, err := monitoring.NewCollector(st).Collect(ctx)
		if err != nil {
			return err
		}
		alerts := monitoring.NewAlerter(cfg.Monitoring).Evaluate(snap)

		formatStatus(cmd.OutOrStdout(), snap, alerts)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func formatStatus(out io.Writer, snap *monitoring.Snapshot, alerts []monitoring.Alert) {
	state, counts := snap.State, snap.Counts
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tLAST REFRESH")
	for _, row := range []struct {
		name string
		at   *time.Time
	}{
		{"permits", state.PermitsUpdatedAt},
		{"contractors", state.ContractorsUpdatedAt},
		{"property_values", state.PropertyValuesUpdatedAt},
	} {
		last := "never"
		if row.at != nil {
			last = row.at.UTC().Format("2006-01-02 15:04:05")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", row.name, last)
	}
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "addresses\t%d\n", counts.Addresses)
	_, _ = fmt.Fprintf(w, "contractors\t%d\n", counts.Contractors)
	_, _ = fmt.Fprintf(w, "permits\t%d\n", counts.Permits)
	if len(alerts) > 0 {
		_, _ = fmt.Fprintln(w)
		for _, a := range alerts {
			_, _ = fmt.Fprintf(w, "ALERT\t%s\t%s\n", a.Severity, a.Message)
		}
	}
	_ = w.Flush()
}
