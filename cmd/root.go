package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ledgerline/invoice-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "invoice-cli",
	Short: "Invoice extraction memory",
	Long:  "Processes extracted invoices against learned vendor patterns and correction rules, decides auto-approve vs. human review, and learns new rules from human corrections.",
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
