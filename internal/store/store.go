package store

import (
	"context"
	"sort"
	"time"

	"github.com/ledgerline/invoice-cli/internal/match"
	"github.com/ledgerline/invoice-cli/internal/model"
)

// VendorMatch is one approximate-match result; Score is the normalized edit
// distance of the closest searched name (0 = identical).
type VendorMatch struct {
	Vendor model.VendorMemory `json:"vendor"`
	Score  float64            `json:"score"`
}

// ProcessedInvoice is the duplicate-detection record persisted after every
// decision.
type ProcessedInvoice struct {
	Fingerprint   string    `json:"fingerprint"`
	InvoiceID     string    `json:"invoice_id"`
	Vendor        string    `json:"vendor"`
	InvoiceNumber string    `json:"invoice_number"`
	TotalAmount   float64   `json:"total_amount"`
	ProcessedAt   time.Time `json:"processed_at"`
}

// Store is the persistence contract the engines depend on. Store failures are
// fatal to the calling operation and propagate uncaught.
type Store interface {
	// Vendor memories
	FindVendorExact(ctx context.Context, name string) (*model.VendorMemory, error) // nil when absent
	SearchVendorsApprox(ctx context.Context, query string, threshold float64) ([]VendorMatch, error)
	ListVendors(ctx context.Context) ([]model.VendorMemory, error)
	UpsertVendor(ctx context.Context, vm model.VendorMemory) error

	// Correction memories (global, vendor-agnostic)
	ListCorrectionMemories(ctx context.Context) ([]model.CorrectionMemory, error)
	UpsertCorrectionMemory(ctx context.Context, cm model.CorrectionMemory) error

	// Resolution memories
	GetResolutionMemory(ctx context.Context, ruleID string) (model.ResolutionMemory, error) // zero default, never absent
	UpsertResolutionMemory(ctx context.Context, rm model.ResolutionMemory) error

	// Duplicate fingerprints
	FingerprintExists(ctx context.Context, hash string) (bool, error)
	RecordProcessedInvoice(ctx context.Context, rec ProcessedInvoice) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// rankVendors scores every vendor's pooled {name, aliases} set against query
// and returns matches with distance strictly below threshold, ascending by
// score. The sort is stable, so insertion order of the vendor list breaks
// ties. Shared by both store implementations so sqlite and postgres rank
// identically.
func rankVendors(vendors []model.VendorMemory, query string, threshold float64) []VendorMatch {
	var matches []VendorMatch
	for _, vm := range vendors {
		names := append([]string{vm.Name}, vm.Fingerprints...)
		best := 2.0 // above any possible distance
		for _, n := range names {
			if d := match.Distance(query, n); d < best {
				best = d
			}
		}
		if best < threshold {
			matches = append(matches, VendorMatch{Vendor: vm, Score: best})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score < matches[j].Score
	})
	return matches
}
