// Package recall assembles the per-invoice processing context: vendor
// identity resolution plus the rules and reinforcement history that apply.
package recall

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ledgerline/invoice-cli/internal/model"
	"github.com/ledgerline/invoice-cli/internal/store"
)

// DefaultThreshold is the approximate-match acceptance threshold: a vendor is
// matched when its best pooled-name distance is strictly below this value.
const DefaultThreshold = 0.4

// Engine resolves vendor identity and gathers applicable memories. It is
// read-only against the store.
type Engine struct {
	store     store.Store
	threshold float64
	now       func() time.Time
}

// New creates a recall engine. A non-positive threshold falls back to
// DefaultThreshold; a nil clock falls back to time.Now.
func New(st store.Store, threshold float64, now func() time.Time) *Engine {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{store: st, threshold: threshold, now: now}
}

// Threshold is the approximate-match acceptance threshold in effect.
func (e *Engine) Threshold() float64 { return e.threshold }

// BuildContext resolves the invoice's vendor (exact name first, then
// approximate over pooled names and aliases), loads the resolution memory for
// every pattern field of the matched vendor, and loads the complete global
// correction-memory list.
func (e *Engine) BuildContext(ctx context.Context, inv model.Invoice) (*model.ProcessingContext, error) {
	pc := &model.ProcessingContext{
		Invoice:     inv,
		Resolutions: make(map[string]model.ResolutionMemory),
	}

	vendor, score, err := e.resolveVendor(ctx, inv.VendorName)
	if err != nil {
		return nil, err
	}
	pc.Vendor = vendor
	pc.VendorScore = score

	if vendor != nil {
		for field := range vendor.Patterns {
			key := model.ResolutionKey(vendor.ID, field)
			rm, err := e.store.GetResolutionMemory(ctx, key)
			if err != nil {
				return nil, err
			}
			pc.Resolutions[key] = rm
		}
		pc.AddAudit(model.StageVendorMatched,
			fmt.Sprintf("matched vendor %q (score %.3f, %d patterns)", vendor.Name, score, len(vendor.Patterns)),
			0.95, e.now())
		zap.L().Debug("recall: vendor matched",
			zap.String("vendor", vendor.Name),
			zap.Float64("score", score),
			zap.Int("patterns", len(vendor.Patterns)),
		)
	} else {
		pc.AddAudit(model.StageNewVendor,
			fmt.Sprintf("no vendor memory for %q", inv.VendorName),
			0.0, e.now())
		zap.L().Debug("recall: new vendor", zap.String("vendor", inv.VendorName))
	}

	// Corrections are global and load regardless of vendor resolution.
	corrections, err := e.store.ListCorrectionMemories(ctx)
	if err != nil {
		return nil, err
	}
	pc.Corrections = corrections
	for _, cm := range corrections {
		rm, err := e.store.GetResolutionMemory(ctx, cm.ID)
		if err != nil {
			return nil, err
		}
		pc.Resolutions[cm.ID] = rm
	}
	pc.AddAudit(model.StageCorrectionsLoaded,
		fmt.Sprintf("loaded %d correction memories", len(corrections)),
		1.0, e.now())

	return pc, nil
}

// resolveVendor returns the matched vendor and its distance score
// (0 for an exact name hit), or nil when nothing is close enough.
func (e *Engine) resolveVendor(ctx context.Context, name string) (*model.VendorMemory, float64, error) {
	vm, err := e.store.FindVendorExact(ctx, name)
	if err != nil {
		return nil, 0, err
	}
	if vm != nil {
		return vm, 0, nil
	}

	matches, err := e.store.SearchVendorsApprox(ctx, name, e.threshold)
	if err != nil {
		return nil, 0, err
	}
	if len(matches) == 0 {
		return nil, 0, nil
	}
	best := matches[0]
	return &best.Vendor, best.Score, nil
}
