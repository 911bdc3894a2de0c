// Package cognitive executes learned rules against an invoice and scores each
// resulting proposal. It never writes to the store.
package cognitive

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ledgerline/invoice-cli/internal/model"
	"github.com/ledgerline/invoice-cli/internal/rules"
)

const defaultFieldConfidence = 0.90

// Engine applies vendor patterns, vendor defaults and global correction rules
// in three ordered passes.
type Engine struct {
	now func() time.Time
}

// New creates a cognitive engine; a nil clock falls back to time.Now.
func New(now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{now: now}
}

// Apply runs the three passes and returns the proposal per field. Later
// passes never replace a proposal holding strictly greater confidence.
func (e *Engine) Apply(pc *model.ProcessingContext) map[string]model.FieldConfidence {
	proposals := make(map[string]model.FieldConfidence)
	rec := pc.Invoice.Record()

	if pc.Vendor != nil {
		e.applyVendorPatterns(pc, rec, proposals)
		e.applyVendorDefaults(pc, proposals)
	}
	e.applyCorrections(pc, rec, proposals)

	return proposals
}

// applyVendorPatterns is pass 1: every learned pattern of the matched vendor.
// Fields are visited in sorted order so audit output is deterministic.
func (e *Engine) applyVendorPatterns(pc *model.ProcessingContext, rec map[string]any, proposals map[string]model.FieldConfidence) {
	fields := make([]string, 0, len(pc.Vendor.Patterns))
	for f := range pc.Vendor.Patterns {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, field := range fields {
		pattern := pc.Vendor.Patterns[field]
		ruleID := model.ResolutionKey(pc.Vendor.ID, field)

		var value any
		targetField := field
		if pattern.Kind == model.PatternMap && field == model.FieldSKU {
			value = e.applySKUMap(pc.Invoice, pattern)
			targetField = model.FieldLineItems
		} else {
			value = rules.Eval(pattern.Logic, rec)
		}
		if value == nil {
			continue
		}

		resolution := resolutionFor(pc, ruleID)
		conf := Calculate(pattern.Confidence, resolution, e.now())
		propose(proposals, model.FieldConfidence{
			Field:      targetField,
			Value:      value,
			Confidence: conf,
			Source:     model.SourceVendorPattern,
			RuleID:     ruleID,
		}, false)
		pc.AddAudit(model.StagePatternApplied,
			fmt.Sprintf("pattern %s -> %s", field, targetField), conf, e.now())
		zap.L().Debug("cognitive: pattern applied",
			zap.String("field", targetField),
			zap.Float64("confidence", conf),
		)
	}
}

// applySKUMap runs a MAP pattern against every line item lacking a SKU and
// returns the updated slice, or nil when no lookup hit.
func (e *Engine) applySKUMap(inv model.Invoice, pattern model.VendorPattern) any {
	if len(inv.LineItems) == 0 {
		return nil
	}
	items := make([]model.LineItem, len(inv.LineItems))
	copy(items, inv.LineItems)

	hit := false
	for i := range items {
		if items[i].SKU != "" {
			continue
		}
		v := rules.Eval(pattern.Logic, map[string]any{"description": items[i].Description})
		if sku, ok := v.(string); ok && sku != "" {
			items[i].SKU = sku
			hit = true
		}
	}
	if !hit {
		return nil
	}
	return items
}

// applyVendorDefaults is pass 2: default values for fields nothing proposed.
func (e *Engine) applyVendorDefaults(pc *model.ProcessingContext, proposals map[string]model.FieldConfidence) {
	fields := make([]string, 0, len(pc.Vendor.Defaults))
	for f := range pc.Vendor.Defaults {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, field := range fields {
		if _, ok := proposals[field]; ok {
			continue
		}
		if _, present := pc.Invoice.Field(field); present {
			continue // defaults never displace an extracted value
		}
		proposals[field] = model.FieldConfidence{
			Field:      field,
			Value:      pc.Vendor.Defaults[field],
			Confidence: defaultFieldConfidence,
			Source:     model.SourceVendorPattern,
		}
		pc.AddAudit(model.StageDefaultApplied,
			fmt.Sprintf("default %s", field), defaultFieldConfidence, e.now())
	}
}

// applyCorrections is pass 3: global correction rules whose trigger holds.
func (e *Engine) applyCorrections(pc *model.ProcessingContext, rec map[string]any, proposals map[string]model.FieldConfidence) {
	for _, cm := range pc.Corrections {
		if !rules.EvalBool(cm.Trigger, rec) {
			continue
		}
		value := rules.Eval(cm.Action, rec)
		if value == nil {
			continue
		}
		field, ok := InferTargetField(cm.Action)
		if !ok {
			continue // rule has no effect
		}

		conf := Calculate(cm.Confidence, resolutionFor(pc, cm.ID), e.now())
		applied := propose(proposals, model.FieldConfidence{
			Field:      field,
			Value:      value,
			Confidence: conf,
			Source:     model.SourceCorrectionRule,
			RuleID:     cm.ID,
		}, true)
		if applied {
			pc.AddAudit(model.StageCorrectionApplied,
				fmt.Sprintf("correction %s -> %s", cm.ID, field), conf, e.now())
			zap.L().Debug("cognitive: correction applied",
				zap.String("rule", cm.ID),
				zap.String("field", field),
				zap.Float64("confidence", conf),
			)
		}
	}
}

// canonicalTargets is the fixed priority order for inferring which field a
// correction rule writes: tax before net before total, first hit wins. A
// formula referencing several canonical fields resolves to the first in this
// order.
var canonicalTargets = []struct {
	needle string
	field  string
}{
	{"tax", model.FieldTaxAmount},
	{"net", model.FieldNetAmount},
	{"total", model.FieldTotalAmount},
}

// InferTargetField derives a correction rule's output field by substring
// search over its serialized action expression.
func InferTargetField(action *rules.Expr) (string, bool) {
	raw, err := json.Marshal(action)
	if err != nil {
		return "", false
	}
	serialized := strings.ToLower(string(raw))
	for _, t := range canonicalTargets {
		if strings.Contains(serialized, t.needle) {
			return t.field, true
		}
	}
	return "", false
}

// propose installs fc unless an existing proposal for the field holds
// strictly greater confidence. With allowEqual false the existing proposal
// also wins ties. Reports whether fc was installed.
func propose(proposals map[string]model.FieldConfidence, fc model.FieldConfidence, allowEqual bool) bool {
	if existing, ok := proposals[fc.Field]; ok {
		if existing.Confidence > fc.Confidence {
			return false
		}
		if !allowEqual && existing.Confidence == fc.Confidence {
			return false
		}
	}
	proposals[fc.Field] = fc
	return true
}

func resolutionFor(pc *model.ProcessingContext, ruleID string) *model.ResolutionMemory {
	if rm, ok := pc.Resolutions[ruleID]; ok {
		return &rm
	}
	return nil
}
