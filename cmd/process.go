package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var processCmd = &cobra.Command{
	Use:   "process <invoice.json>",
	Short: "Process one extracted invoice against learned memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		eng, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer eng.Close()

		inv, err := readInvoice(args[0])
		if err != nil {
			return err
		}

		out, err := eng.Process(ctx, inv)
		if err != nil {
			return err
		}

		zap.L().Info("invoice processed",
			zap.String("vendor", out.Invoice.VendorName),
			zap.Bool("requires_review", out.RequiresHumanReview),
			zap.Float64("confidence", out.Confidence),
		)
		return writeJSON(out)
	},
}

func init() {
	rootCmd.AddCommand(processCmd)
}
