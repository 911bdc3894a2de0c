package induction

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ledgerline/invoice-cli/internal/model"
)

// InducedRules is the output of one learning step: extraction patterns keyed
// by contract field plus standalone correction rules.
type InducedRules struct {
	Patterns    map[string]model.VendorPattern
	Corrections []model.CorrectionMemory
}

// Empty reports whether the learning step produced nothing.
func (r InducedRules) Empty() bool {
	return len(r.Patterns) == 0 && len(r.Corrections) == 0
}

// Engine synthesizes extraction rules from the difference between a system
// output and its human correction.
type Engine struct {
	now func() time.Time
}

func New(now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{now: now}
}

// InduceRules diffs the two invoices and dispatches each changed field to a
// synthesis strategy. Identical invoices induce nothing.
func (e *Engine) InduceRules(system, corrected model.Invoice) InducedRules {
	diffs := DiffRecords(system, corrected)
	raw := corrected.RawText
	if raw == "" {
		raw = system.RawText
	}
	at := e.now()

	out := InducedRules{}
	for _, d := range diffs {
		switch {
		case isDateField(d.Field):
			v, ok := d.New.(string)
			if !ok {
				continue
			}
			if p := synthesizeDateRule(v, raw, at); p != nil {
				out.setPattern(d.Field, *p)
			}
		case isAmountField(d.Field):
			v, ok := toFloat(d.New)
			if !ok {
				continue
			}
			if c := synthesizeArithmetic(d.Field, v, corrected, raw, at); c != nil {
				out.Corrections = append(out.Corrections, *c)
				continue
			}
			if p := synthesizeNumericRule(d.Field, v, raw, at); p != nil {
				out.setPattern(d.Field, *p)
			}
		case strings.Contains(strings.ToLower(d.Field), "sku"):
			sku, ok := d.New.(string)
			if !ok || d.ItemIndex < 0 || d.ItemIndex >= len(corrected.LineItems) {
				continue
			}
			desc := corrected.LineItems[d.ItemIndex].Description
			if desc == "" {
				continue
			}
			out.mergeMapping(synthesizeMapping(desc, sku, at))
		case strings.EqualFold(d.Field, model.FieldPaymentTerms):
			v, ok := d.New.(string)
			if !ok {
				continue
			}
			if p := synthesizeSkontoRule(v, raw, at); p != nil {
				out.setPattern(d.Field, *p)
			} else if p := synthesizeTextRule(v, raw, at); p != nil {
				out.setPattern(d.Field, *p)
			}
		case strings.EqualFold(d.Field, model.FieldPONumber):
			v, ok := d.New.(string)
			if !ok {
				continue
			}
			if p := synthesizePORule(v, raw, at); p != nil {
				out.setPattern(d.Field, *p)
			}
		default:
			v, ok := d.New.(string)
			if !ok {
				continue
			}
			if p := synthesizeTextRule(v, raw, at); p != nil {
				out.setPattern(d.Field, *p)
			}
		}
	}

	if !out.Empty() {
		zap.L().Debug("induced rules from correction",
			zap.Int("patterns", len(out.Patterns)),
			zap.Int("corrections", len(out.Corrections)))
	}
	return out
}

func (r *InducedRules) setPattern(field string, p model.VendorPattern) {
	if r.Patterns == nil {
		r.Patterns = make(map[string]model.VendorPattern)
	}
	r.Patterns[field] = p
}

// mergeMapping folds a new SKU lookup table into an existing one induced
// earlier in the same learning step, keeping first-seen entry order.
func (r *InducedRules) mergeMapping(p *model.VendorPattern) {
	if p == nil {
		return
	}
	existing, ok := r.Patterns[model.FieldSKU]
	if !ok || existing.Kind != model.PatternMap || existing.Logic == nil || p.Logic == nil {
		r.setPattern(model.FieldSKU, *p)
		return
	}
	seen := make(map[string]bool, len(existing.Logic.Table))
	for _, e := range existing.Logic.Table {
		seen[e.Key] = true
	}
	for _, e := range p.Logic.Table {
		if !seen[e.Key] {
			existing.Logic.Table = append(existing.Logic.Table, e)
		}
	}
	r.Patterns[model.FieldSKU] = existing
}

func isDateField(field string) bool {
	return strings.Contains(strings.ToLower(field), "date")
}

var amountMarkers = []string{"amount", "total", "net", "tax", "price", "quantity"}

func isAmountField(field string) bool {
	f := strings.ToLower(field)
	for _, m := range amountMarkers {
		if strings.Contains(f, m) {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
