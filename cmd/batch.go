package main

import (
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ledgerline/invoice-cli/internal/model"
)

var batchConcurrency int

var batchCmd = &cobra.Command{
	Use:   "batch <invoice.json>...",
	Short: "Process a batch of extracted invoices",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		eng, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer eng.Close()

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.MaxConcurrentParses
		}

		// Parse concurrently; invoices touching the same vendor memory
		// must process serially, so the engine run stays single-file.
		var g errgroup.Group
		g.SetLimit(concurrency)

		parsed := make([]model.Invoice, len(args))
		var parseFailed atomic.Int64
		for i, path := range args {
			g.Go(func() error {
				inv, err := readInvoice(path)
				if err != nil {
					parseFailed.Add(1)
					zap.L().Error("batch: parse failed", zap.String("path", path), zap.Error(err))
					return nil // keep going, skip the bad file
				}
				parsed[i] = inv
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		outputs := make([]*model.OutputContract, 0, len(parsed))
		var succeeded, failed int
		for i, inv := range parsed {
			if inv.VendorName == "" && inv.RawText == "" {
				continue // parse failure placeholder
			}
			out, err := eng.Process(ctx, inv)
			if err != nil {
				failed++
				zap.L().Error("batch: process failed", zap.String("path", args[i]), zap.Error(err))
				continue
			}
			succeeded++
			outputs = append(outputs, out)
		}

		zap.L().Info("batch complete",
			zap.Int("succeeded", succeeded),
			zap.Int("failed", failed),
			zap.Int64("parse_failed", parseFailed.Load()),
		)
		return writeJSON(outputs)
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "max concurrent file parses (default from config)")
	rootCmd.AddCommand(batchCmd)
}
