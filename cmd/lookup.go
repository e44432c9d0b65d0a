package main

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/permitcheck/internal/search"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Show a contractor's license, permit history and advice",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("query"); err != nil {
			return err
		}
		ctx := cmd.Context()

		name, _ := cmd.Flags().GetString("name")
		license, _ := cmd.Flags().GetString("license")
		noAdvice, _ := cmd.Flags().GetBool("no-advice")

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		adv := newAdvisor(cfg)
		if noAdvice {
			adv = nil
		}
		detail, err := search.NewLookuper(st, adv).Lookup(ctx, search.LookupRequest{Name: name, LicenseID: license})
		if err != nil {
			return eris.Wrap(err, "lookup")
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(detail)
	},
}

func init() {
	lookupCmd.Flags().String("name", "", "contractor name")
	lookupCmd.Flags().String("license", "", "contractor license id (takes priority over --name)")
	lookupCmd.Flags().Bool("no-advice", false, "skip the generated hiring advice")
	rootCmd.AddCommand(lookupCmd)
}
