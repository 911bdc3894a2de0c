package induction

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline/invoice-cli/internal/model"
	"github.com/ledgerline/invoice-cli/internal/rules"
)

const (
	vatRate         = 0.19
	vatDivisor      = 1.19
	amountTolerance = 0.01
)

// inclusiveMarkers signal that the printed total already contains VAT.
var inclusiveMarkers = []string{"inkl", "brutto", "gross", "incl"}

// synthesizeArithmetic tests whether a corrected amount is explained by a
// standard VAT relationship between the invoice's other amounts. A fitting
// hypothesis becomes a vendor-independent correction rule; the caller falls
// back to regex synthesis when none fits.
func synthesizeArithmetic(field string, value float64, corrected model.Invoice, raw string, at time.Time) *model.CorrectionMemory {
	total := corrected.TotalAmount
	net := corrected.NetAmount

	switch field {
	case model.FieldTaxAmount:
		// Inclusive VAT: tax is backed out of a gross total. Only
		// plausible when the document says the total includes tax.
		if total != nil && hasInclusiveMarker(raw) &&
			math.Abs(value-(*total-*total/vatDivisor)) <= amountTolerance {
			marker := matchedMarker(raw)
			return &model.CorrectionMemory{
				ID: ruleID("tax_inclusive_vat"),
				Trigger: rules.Call(rules.OpAnd,
					rules.Call(rules.OpGt, rules.Var(model.FieldTotalAmount), rules.Lit(0.0)),
					rules.Call(rules.OpEmpty, rules.Var(model.FieldTaxAmount)),
					rules.Call(rules.OpContains, rules.Var(model.FieldRawText), rules.Lit(marker))),
				Action: guarded(model.FieldTaxAmount,
					rules.Call(rules.OpSub,
						rules.Var(model.FieldTotalAmount),
						rules.Call(rules.OpDiv, rules.Var(model.FieldTotalAmount), rules.Lit(vatDivisor)))),
				Description: "tax backed out of VAT-inclusive total",
				Confidence:  0.95,
				Decay:       1.0,
				CreatedAt:   at,
				UpdatedAt:   at,
			}
		}
		// Exclusive VAT: tax is the standard rate on the net amount.
		if net != nil && math.Abs(value-*net*vatRate) <= amountTolerance {
			return &model.CorrectionMemory{
				ID: ruleID("tax_exclusive_vat"),
				Trigger: rules.Call(rules.OpAnd,
					rules.Call(rules.OpGt, rules.Var(model.FieldNetAmount), rules.Lit(0.0)),
					rules.Call(rules.OpEmpty, rules.Var(model.FieldTaxAmount))),
				Action: guarded(model.FieldTaxAmount,
					rules.Call(rules.OpMul, rules.Var(model.FieldNetAmount), rules.Lit(vatRate))),
				Description: "tax as standard VAT on the net amount",
				Confidence:  0.90,
				Decay:       1.0,
				CreatedAt:   at,
				UpdatedAt:   at,
			}
		}
	case model.FieldNetAmount:
		// Net recovered from a gross total.
		if total != nil && math.Abs(value-*total/vatDivisor) <= amountTolerance {
			return &model.CorrectionMemory{
				ID: ruleID("net_from_gross"),
				Trigger: rules.Call(rules.OpAnd,
					rules.Call(rules.OpGt, rules.Var(model.FieldTotalAmount), rules.Lit(0.0)),
					rules.Call(rules.OpEmpty, rules.Var(model.FieldNetAmount))),
				Action: guarded(model.FieldNetAmount,
					rules.Call(rules.OpDiv, rules.Var(model.FieldTotalAmount), rules.Lit(vatDivisor))),
				Description: "net recovered from VAT-inclusive total",
				Confidence:  0.90,
				Decay:       1.0,
				CreatedAt:   at,
				UpdatedAt:   at,
			}
		}
	}
	return nil
}

// guarded wraps a formula so it only replaces an empty target. The target
// field name inside the guard also lets downstream application identify which
// field the action writes.
func guarded(target string, formula *rules.Expr) *rules.Expr {
	return rules.Call(rules.OpIf,
		rules.Call(rules.OpEmpty, rules.Var(target)),
		formula,
		rules.Var(target))
}

func hasInclusiveMarker(raw string) bool {
	return matchedMarker(raw) != ""
}

func matchedMarker(raw string) string {
	lower := strings.ToLower(raw)
	for _, m := range inclusiveMarkers {
		if strings.Contains(lower, m) {
			return m
		}
	}
	return ""
}

func ruleID(formula string) string {
	return formula + ":" + uuid.NewString()[:8]
}
