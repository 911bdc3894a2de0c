package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ledgerline/invoice-cli/internal/model"
)

var learnCmd = &cobra.Command{
	Use:   "learn <output.json> <corrected.json>",
	Short: "Learn rules from a human-corrected invoice",
	Long:  "Diffs the system output against the corrected invoice, induces vendor patterns and correction rules from the changes, and records accept/reject outcomes for every rule that proposed a value.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		eng, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer eng.Close()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read output %s", args[0])
		}
		var system model.OutputContract
		if err := json.Unmarshal(data, &system); err != nil {
			return eris.Wrapf(err, "parse output %s", args[0])
		}

		corrected, err := readInvoice(args[1])
		if err != nil {
			return err
		}

		report, err := eng.Learn(ctx, &system, corrected)
		if err != nil {
			return err
		}

		zap.L().Info("learn complete",
			zap.String("vendor", report.VendorName),
			zap.Int("patterns", report.PatternsLearned),
			zap.Int("corrections", report.CorrectionsLearned),
		)
		return writeJSON(report)
	},
}

func init() {
	rootCmd.AddCommand(learnCmd)
}
