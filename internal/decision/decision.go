// Package decision merges proposals into the output contract and decides
// whether a human has to look at the result.
package decision

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/ledgerline/invoice-cli/internal/model"
	"github.com/ledgerline/invoice-cli/internal/store"
)

const (
	rawFieldConfidence = 0.70 // raw invoice value copied without a proposal
	criticalThreshold  = 0.90 // minimum confidence on total, date, vendor
	overallThreshold   = 0.80
	amountTolerance    = 0.01
	vendorMatchedConf  = 0.95
)

// criticalFields must be present and confident or the invoice escalates.
var criticalFields = []string{model.FieldTotalAmount, model.FieldDate, model.FieldVendor}

// Engine finalizes one processing run.
type Engine struct {
	store store.Store
	now   func() time.Time
}

// New creates a decision engine; a nil clock falls back to time.Now.
func New(st store.Store, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{store: st, now: now}
}

// Decide merges proposals with raw invoice values, runs the escalation
// policy and persists the duplicate fingerprint. The returned contract is
// complete and never mutated afterwards.
func (e *Engine) Decide(ctx context.Context, pc *model.ProcessingContext, proposals map[string]model.FieldConfidence) (*model.OutputContract, error) {
	final := pc.Invoice
	confidences := make(map[string]float64, len(model.ContractFields))

	for _, field := range model.ContractFields {
		if p, ok := proposals[field]; ok {
			final.SetField(field, p.Value)
			confidences[field] = p.Confidence
			continue
		}
		if _, present := pc.Invoice.Field(field); present {
			confidences[field] = rawFieldConfidence
		} else {
			confidences[field] = 0.0
		}
	}
	if pc.Vendor != nil {
		confidences[model.FieldVendor] = vendorMatchedConf
	} else if final.VendorName != "" {
		confidences[model.FieldVendor] = rawFieldConfidence
	} else {
		confidences[model.FieldVendor] = 0.0
	}

	overall := meanConfidence(confidences)

	fingerprint := Fingerprint(final)
	duplicate, err := e.store.FingerprintExists(ctx, fingerprint)
	if err != nil {
		return nil, err
	}

	review, reason := e.escalate(pc, final, confidences, overall, duplicate)

	// Record the fingerprint even when escalating; a later identical
	// submission must be detectable regardless of this one's outcome.
	if !duplicate {
		err := e.store.RecordProcessedInvoice(ctx, store.ProcessedInvoice{
			Fingerprint:   fingerprint,
			InvoiceID:     final.ID,
			Vendor:        final.VendorName,
			InvoiceNumber: final.InvoiceNumber,
			TotalAmount:   amountOrZero(final.TotalAmount),
			ProcessedAt:   e.now(),
		})
		if err != nil {
			return nil, err
		}
	}

	action := "auto-approve"
	if review {
		action = "escalate"
	}
	pc.AddAudit(model.StageDecide, fmt.Sprintf("%s: %s", action, reason), overall, e.now())
	zap.L().Info("decision: decided",
		zap.String("invoice", final.InvoiceNumber),
		zap.String("action", action),
		zap.String("reason", reason),
		zap.Float64("confidence", overall),
	)

	return &model.OutputContract{
		Invoice:             final,
		RequiresHumanReview: review,
		Reasoning:           reason,
		Confidence:          overall,
		Proposals:           proposals,
		Audit:               pc.Audit,
		ProcessedAt:         e.now(),
	}, nil
}

// escalate applies the fixed-priority policy; the first firing rule wins and
// later rules are not evaluated.
func (e *Engine) escalate(pc *model.ProcessingContext, final model.Invoice, confidences map[string]float64, overall float64, duplicate bool) (bool, string) {
	if duplicate {
		return true, "duplicate invoice: fingerprint already recorded"
	}
	if pc.Vendor == nil {
		return true, fmt.Sprintf("new vendor: no memory for %q", final.VendorName)
	}
	for _, field := range criticalFields {
		if _, present := final.Field(field); !present {
			return true, fmt.Sprintf("critical field missing: %s", field)
		}
		if confidences[field] < criticalThreshold {
			return true, fmt.Sprintf("critical field low confidence: %s (%.2f)", field, confidences[field])
		}
	}
	if overall < overallThreshold {
		return true, fmt.Sprintf("overall confidence %.2f below threshold %.2f", overall, overallThreshold)
	}
	if len(final.LineItems) > 0 && final.TotalAmount != nil {
		sum := 0.0
		for _, li := range final.LineItems {
			sum += li.Amount
		}
		if math.Abs(*final.TotalAmount-sum) > amountTolerance {
			return true, fmt.Sprintf("amount mismatch: total %.2f vs line items %.2f", *final.TotalAmount, sum)
		}
	}
	return false, "auto-approved"
}

// Fingerprint hashes the identity tuple used for duplicate detection.
func Fingerprint(inv model.Invoice) string {
	total := ""
	if inv.TotalAmount != nil {
		total = fmt.Sprintf("%.2f", *inv.TotalAmount)
	}
	h := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%s|%s",
		inv.VendorName, inv.InvoiceNumber, inv.Date, total))
	return hex.EncodeToString(h[:])
}

func meanConfidence(confidences map[string]float64) float64 {
	if len(confidences) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, c := range confidences {
		sum += c
	}
	return sum / float64(len(confidences))
}

func amountOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
