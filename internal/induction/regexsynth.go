package induction

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ledgerline/invoice-cli/internal/model"
	"github.com/ledgerline/invoice-cli/internal/rules"
)

const evidenceWindow = 20

// dateLabels are tried in order against the raw text. German invoice labels
// come first because they carry the most signal (Leistungsdatum is never
// anything but a service date).
var dateLabels = []string{
	"Leistungsdatum", "Service Date", "Datum", "Date", "Rechnungsdatum", "Invoice Date",
}

// capture group for any of the date shapes the primitives can normalize
const dateShapeGroup = `(\d{1,2}\.\d{1,2}\.\d{2,4}|\d{4}-\d{2}-\d{2})`

// synthesizeDateRule builds a labeled date-extraction pattern for a corrected
// ISO date. Each known label is tried against each textual variant of the
// date; the first label found adjacent to the value in the raw text wins.
// Without a label match it falls back to an unlabeled digit-shape pattern at
// lower confidence.
func synthesizeDateRule(isoValue, raw string, at time.Time) *model.VendorPattern {
	variants := dateVariants(isoValue)
	if len(variants) == 0 {
		return nil
	}

	for _, label := range dateLabels {
		for _, v := range variants {
			probe, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(label) + `[:\s]*` + regexp.QuoteMeta(v))
			if err != nil {
				continue
			}
			loc := probe.FindStringIndex(raw)
			if loc == nil {
				continue
			}
			pattern := `(?i)` + regexp.QuoteMeta(label) + `[:\s]*` + dateShapeGroup
			return &model.VendorPattern{
				Kind:       model.PatternRegex,
				Logic:      extractDate(pattern),
				Confidence: 0.95,
				Evidence:   evidence(raw, loc),
				CreatedAt:  at,
			}
		}
	}

	// Unlabeled fallback: match on the digit shape of the variant as it
	// appears in the text.
	for _, v := range variants {
		shape := digitShape(v)
		probe, err := regexp.Compile(shape)
		if err != nil {
			continue
		}
		loc := probe.FindStringIndex(raw)
		if loc == nil {
			continue
		}
		return &model.VendorPattern{
			Kind:       model.PatternRegex,
			Logic:      extractDate("(" + shape + ")"),
			Confidence: 0.70,
			Evidence:   evidence(raw, loc),
			CreatedAt:  at,
		}
	}
	return nil
}

func extractDate(pattern string) *rules.Expr {
	return rules.Call(rules.OpDateISO,
		rules.Call(rules.OpRegexExtract,
			rules.Lit(pattern), rules.Var(model.FieldRawText), rules.Lit(1)))
}

// dateVariants renders an ISO date in the shapes invoices print it in:
// ISO, DD.MM.YYYY and DD.MM.YY.
func dateVariants(iso string) []string {
	t, err := time.Parse("2006-01-02", iso)
	if err != nil {
		return nil
	}
	return []string{
		t.Format("2006-01-02"),
		t.Format("02.01.2006"),
		t.Format("02.01.06"),
	}
}

// digitShape generalizes a date literal into a character-shape regex:
// digits become \d, separators are quoted.
func digitShape(literal string) string {
	var b strings.Builder
	for _, r := range literal {
		if r >= '0' && r <= '9' {
			b.WriteString(`\d`)
		} else {
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return b.String()
}

// amountLabels maps a marker inside the field name to the labels invoices
// print next to that amount.
var amountLabels = []struct {
	marker string
	labels []string
}{
	{"net", []string{"Netto", "Net"}},
	{"total", []string{"Gesamt", "Total", "Summe"}},
	{"tax", []string{"MwSt", "Tax", "VAT"}},
}

// synthesizeNumericRule builds a labeled amount-extraction pattern. The
// corrected value is rendered in decimal-point and decimal-comma variants and
// probed next to each label known for the field.
func synthesizeNumericRule(field string, value float64, raw string, at time.Time) *model.VendorPattern {
	labels := labelsFor(field)
	for _, label := range labels {
		for _, v := range numberVariants(value) {
			probe, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(label) + `[.:\s]*` + regexp.QuoteMeta(v))
			if err != nil {
				continue
			}
			loc := probe.FindStringIndex(raw)
			if loc == nil {
				continue
			}
			pattern := `(?i)` + regexp.QuoteMeta(label) + `[.:\s]*(\d+(?:[.,]\d+)?)`
			return &model.VendorPattern{
				Kind: model.PatternRegex,
				Logic: rules.Call(rules.OpNumber,
					rules.Call(rules.OpRegexExtract,
						rules.Lit(pattern), rules.Var(model.FieldRawText), rules.Lit(1))),
				Confidence: 0.85,
				Evidence:   evidence(raw, loc),
				CreatedAt:  at,
			}
		}
	}
	return nil
}

func labelsFor(field string) []string {
	f := strings.ToLower(field)
	var out []string
	for _, g := range amountLabels {
		if strings.Contains(f, g.marker) {
			out = append(out, g.labels...)
		}
	}
	return append(out, field)
}

// numberVariants renders an amount the ways invoices print it: minimal and
// two-decimal forms, each with point and comma separators.
func numberVariants(v float64) []string {
	minimal := strconv.FormatFloat(v, 'f', -1, 64)
	padded := strconv.FormatFloat(v, 'f', 2, 64)
	variants := []string{
		minimal,
		strings.ReplaceAll(minimal, ".", ","),
		padded,
		strings.ReplaceAll(padded, ".", ","),
	}
	seen := make(map[string]bool, len(variants))
	out := variants[:0]
	for _, s := range variants {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

var skontoValueRe = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*%\s*Skonto`)

// synthesizeSkontoRule handles the German early-payment discount idiom
// ("2% Skonto bei Zahlung innerhalb 14 Tagen"). It only fires when both the
// corrected value and the raw text carry the Skonto shape.
func synthesizeSkontoRule(value, raw string, at time.Time) *model.VendorPattern {
	if !skontoValueRe.MatchString(value) {
		return nil
	}
	pattern := `(?i)(\d+(?:[.,]\d+)?\s*%\s*Skonto[^\n.]*)`
	probe := regexp.MustCompile(pattern)
	loc := probe.FindStringIndex(raw)
	if loc == nil {
		return nil
	}
	return &model.VendorPattern{
		Kind: model.PatternRegex,
		Logic: rules.Call(rules.OpRegexExtract,
			rules.Lit(pattern), rules.Var(model.FieldRawText), rules.Lit(1)),
		Confidence: 0.85,
		Evidence:   evidence(raw, loc),
		CreatedAt:  at,
	}
}

// synthesizePORule generalizes a purchase-order literal into character
// classes: letter runs become [A-Za-z]{n}, digit runs \d{n}, separators are
// kept verbatim. "PO-2023-0815" generalizes to [A-Za-z]{2}-\d{4}-\d{4}.
func synthesizePORule(value, raw string, at time.Time) *model.VendorPattern {
	shape := charClassShape(value)
	if shape == "" {
		return nil
	}
	pattern := `\b(` + shape + `)\b`
	probe, err := regexp.Compile(pattern)
	if err != nil {
		return nil
	}
	loc := probe.FindStringIndex(raw)
	if loc == nil {
		return nil
	}
	return &model.VendorPattern{
		Kind: model.PatternRegex,
		Logic: rules.Call(rules.OpRegexExtract,
			rules.Lit(pattern), rules.Var(model.FieldRawText), rules.Lit(1)),
		Confidence: 0.85,
		Evidence:   evidence(raw, loc),
		CreatedAt:  at,
	}
}

func charClassShape(literal string) string {
	var b strings.Builder
	runStart := -1
	runClass := ""
	flush := func(end int) {
		if runStart < 0 {
			return
		}
		b.WriteString(runClass)
		if n := end - runStart; n > 1 {
			b.WriteString("{" + strconv.Itoa(n) + "}")
		}
		runStart = -1
	}
	rs := []rune(literal)
	for i, r := range rs {
		var class string
		switch {
		case r >= '0' && r <= '9':
			class = `\d`
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			class = `[A-Za-z]`
		}
		if class == "" {
			flush(i)
			b.WriteString(regexp.QuoteMeta(string(r)))
			continue
		}
		if runStart < 0 || class != runClass {
			flush(i)
			runStart, runClass = i, class
		}
	}
	flush(len(rs))
	return b.String()
}

// synthesizeTextRule is the generic fallback: anchor on the literal value as
// it appears in the raw text.
func synthesizeTextRule(value, raw string, at time.Time) *model.VendorPattern {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	pattern := `(?i)(` + regexp.QuoteMeta(value) + `)`
	probe, err := regexp.Compile(pattern)
	if err != nil {
		return nil
	}
	loc := probe.FindStringIndex(raw)
	if loc == nil {
		return nil
	}
	return &model.VendorPattern{
		Kind: model.PatternRegex,
		Logic: rules.Call(rules.OpRegexExtract,
			rules.Lit(pattern), rules.Var(model.FieldRawText), rules.Lit(1)),
		Confidence: 0.70,
		Evidence:   evidence(raw, loc),
		CreatedAt:  at,
	}
}

// evidence clips a window around a match location for audit display.
func evidence(raw string, loc []int) string {
	if len(loc) < 2 {
		return ""
	}
	start := loc[0] - evidenceWindow
	if start < 0 {
		start = 0
	}
	end := loc[1] + evidenceWindow
	if end > len(raw) {
		end = len(raw)
	}
	return raw[start:end]
}
