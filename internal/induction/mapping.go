package induction

import (
	"strings"
	"time"

	"github.com/ledgerline/invoice-cli/internal/model"
	"github.com/ledgerline/invoice-cli/internal/rules"
)

const minTokenLen = 4

// synthesizeMapping builds a description-to-SKU lookup from a corrected line
// item. The full lowercased description is the primary key; individual tokens
// longer than three characters follow as containment fallbacks, in
// description order.
func synthesizeMapping(description, sku string, at time.Time) *model.VendorPattern {
	norm := strings.ToLower(strings.TrimSpace(description))
	if norm == "" || sku == "" {
		return nil
	}

	table := []rules.MapEntry{{Key: norm, Value: sku}}
	seen := map[string]bool{norm: true}
	for _, tok := range strings.Fields(norm) {
		if len([]rune(tok)) < minTokenLen || seen[tok] {
			continue
		}
		seen[tok] = true
		table = append(table, rules.MapEntry{Key: tok, Value: sku})
	}

	return &model.VendorPattern{
		Kind:       model.PatternMap,
		Logic:      rules.Lookup(table, rules.Var("description")),
		Confidence: 0.85,
		Evidence:   description,
		CreatedAt:  at,
	}
}
