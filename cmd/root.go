package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/permitcheck/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "permitcheck",
	Short: "Contractor license and building permit search",
	Long:  "Imports Boston building permits, the Massachusetts home-improvement contractor roster and property assessments, reconciles them into one schema and serves fuzzy contractor search.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
