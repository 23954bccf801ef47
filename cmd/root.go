package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/feerecon/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "feerecon",
	Short: "Fee sheet reconciliation and amount resolution",
	Long:  "Matches fee sheet rows against the personnel directory, fills payee details, computes missing amounts with an LLM oracle and highlights duplicates and unmatched rows.",
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
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
