// Package engine is the boundary surface of the extraction memory: it wires
// recall, rule execution, decision and induction over one store and exposes
// the two operations callers use, Process and Learn.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ledgerline/invoice-cli/internal/cognitive"
	"github.com/ledgerline/invoice-cli/internal/decision"
	"github.com/ledgerline/invoice-cli/internal/induction"
	"github.com/ledgerline/invoice-cli/internal/model"
	"github.com/ledgerline/invoice-cli/internal/recall"
	"github.com/ledgerline/invoice-cli/internal/store"
)

// Options configures an Engine. Store is required; zero values elsewhere fall
// back to defaults.
type Options struct {
	Store store.Store
	// SimilarityThreshold bounds approximate vendor matching; 0 means the
	// recall default.
	SimilarityThreshold float64
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Engine owns the four stages and the store they share.
type Engine struct {
	store     store.Store
	recall    *recall.Engine
	cognitive *cognitive.Engine
	decision  *decision.Engine
	induction *induction.Engine
	now       func() time.Time
}

func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, eris.New("engine: store is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:     opts.Store,
		recall:    recall.New(opts.Store, opts.SimilarityThreshold, now),
		cognitive: cognitive.New(now),
		decision:  decision.New(opts.Store, now),
		induction: induction.New(now),
		now:       now,
	}, nil
}

// Process runs one invoice through recall, rule application and decision,
// returning the output contract. The input invoice is not mutated.
func (e *Engine) Process(ctx context.Context, inv model.Invoice) (*model.OutputContract, error) {
	if err := inv.Validate(); err != nil {
		return nil, eris.Wrap(err, "engine: process")
	}
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}

	pc, err := e.recall.BuildContext(ctx, inv)
	if err != nil {
		return nil, eris.Wrap(err, "engine: process")
	}
	proposals := e.cognitive.Apply(pc)
	out, err := e.decision.Decide(ctx, pc, proposals)
	if err != nil {
		return nil, eris.Wrap(err, "engine: process")
	}
	return out, nil
}

// LearnReport summarizes what one correction taught the system.
type LearnReport struct {
	VendorID            string `json:"vendor_id"`
	VendorName          string `json:"vendor_name"`
	NewVendor           bool   `json:"new_vendor"`
	PatternsLearned     int    `json:"patterns_learned"`
	CorrectionsLearned  int    `json:"corrections_learned"`
	ResolutionsRecorded int    `json:"resolutions_recorded"`
}

// Learn folds a human-corrected invoice back into memory: it induces rules
// from the difference against the system output, attaches patterns to the
// vendor memory, persists correction rules, and records accept/reject
// outcomes for every rule that proposed a value.
func (e *Engine) Learn(ctx context.Context, system *model.OutputContract, corrected model.Invoice) (*LearnReport, error) {
	if system == nil {
		return nil, eris.New("engine: learn: system output is required")
	}
	if err := system.Validate(); err != nil {
		return nil, eris.Wrap(err, "engine: learn")
	}
	if err := corrected.Validate(); err != nil {
		return nil, eris.Wrap(err, "engine: learn")
	}

	induced := e.induction.InduceRules(system.Invoice, corrected)

	vm, created, err := e.resolveVendorForLearning(ctx, corrected.VendorName)
	if err != nil {
		return nil, eris.Wrap(err, "engine: learn")
	}

	at := e.now()
	dirty := created
	if alias := system.Invoice.VendorName; alias != "" && alias != vm.Name && !hasFingerprint(vm, alias) {
		// remember the misspelling the upstream extraction produced so
		// the next occurrence resolves exactly
		vm.Fingerprints = append(vm.Fingerprints, alias)
		dirty = true
	}
	for field, p := range induced.Patterns {
		vm.SetPattern(field, p)
		dirty = true
	}
	if dirty {
		vm.UpdatedAt = at
		if err := e.store.UpsertVendor(ctx, *vm); err != nil {
			return nil, eris.Wrap(err, "engine: learn: upsert vendor")
		}
	}

	for _, cm := range induced.Corrections {
		if err := e.store.UpsertCorrectionMemory(ctx, cm); err != nil {
			return nil, eris.Wrap(err, "engine: learn: upsert correction")
		}
	}

	recorded, err := e.decision.RecordResolutions(ctx, system.Proposals, system.Invoice, corrected)
	if err != nil {
		return nil, eris.Wrap(err, "engine: learn: record resolutions")
	}

	zap.L().Info("learned from correction",
		zap.String("vendor", vm.Name),
		zap.Bool("new_vendor", created),
		zap.Int("patterns", len(induced.Patterns)),
		zap.Int("corrections", len(induced.Corrections)),
		zap.Int("resolutions", recorded),
	)
	return &LearnReport{
		VendorID:            vm.ID,
		VendorName:          vm.Name,
		NewVendor:           created,
		PatternsLearned:     len(induced.Patterns),
		CorrectionsLearned:  len(induced.Corrections),
		ResolutionsRecorded: recorded,
	}, nil
}

// resolveVendorForLearning finds the memory the corrected vendor name refers
// to, creating a fresh one when neither exact nor approximate lookup hits.
func (e *Engine) resolveVendorForLearning(ctx context.Context, name string) (*model.VendorMemory, bool, error) {
	vm, err := e.store.FindVendorExact(ctx, name)
	if err != nil {
		return nil, false, err
	}
	if vm != nil {
		return vm, false, nil
	}

	matches, err := e.store.SearchVendorsApprox(ctx, name, e.recall.Threshold())
	if err != nil {
		return nil, false, err
	}
	if len(matches) > 0 {
		v := matches[0].Vendor
		return &v, false, nil
	}

	at := e.now()
	return &model.VendorMemory{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: at,
		UpdatedAt: at,
	}, true, nil
}

func hasFingerprint(vm *model.VendorMemory, alias string) bool {
	for _, f := range vm.Fingerprints {
		if f == alias {
			return true
		}
	}
	return false
}

// GetVendorMemory resolves a vendor by exact then approximate name match;
// nil when nothing is close enough.
func (e *Engine) GetVendorMemory(ctx context.Context, name string) (*model.VendorMemory, error) {
	vm, err := e.store.FindVendorExact(ctx, name)
	if err != nil {
		return nil, eris.Wrap(err, "engine: get vendor")
	}
	if vm != nil {
		return vm, nil
	}
	matches, err := e.store.SearchVendorsApprox(ctx, name, e.recall.Threshold())
	if err != nil {
		return nil, eris.Wrap(err, "engine: get vendor")
	}
	if len(matches) == 0 {
		return nil, nil
	}
	v := matches[0].Vendor
	return &v, nil
}

// AllVendorMemories lists every vendor memory in creation order.
func (e *Engine) AllVendorMemories(ctx context.Context) ([]model.VendorMemory, error) {
	vms, err := e.store.ListVendors(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "engine: list vendors")
	}
	return vms, nil
}

// Close releases the underlying store.
func (e *Engine) Close() error {
	return e.store.Close()
}
