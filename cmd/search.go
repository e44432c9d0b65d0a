package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/permitcheck/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search <name>",
	Short: "Fuzzy search contractor names",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("query"); err != nil {
			return err
		}
		ctx := cmd.Context()

		threshold := cfg.Search.Threshold
		if cmd.Flags().Changed("threshold") {
			threshold, _ = cmd.Flags().GetFloat64("threshold")
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		matches, err := search.NewSearcher(st).Search(ctx, strings.Join(args, " "), threshold)
		if err != nil {
			return err
		}
		formatMatches(cmd.OutOrStdout(), matches)
		return nil
	},
}

func init() {
	searchCmd.Flags().Float64("threshold", 0, "minimum fuzz ratio 0-100 (default from config)")
	rootCmd.AddCommand(searchCmd)
}

func formatMatches(out io.Writer, matches []search.Match) {
	if len(matches) == 0 {
		_, _ = fmt.Fprintln(out, "No matches")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SCORE\tNAME")
	for _, m := range matches {
		_, _ = fmt.Fprintf(w, "%d\t%s\n", m.Score, m.Name)
	}
	_ = w.Flush()
}
