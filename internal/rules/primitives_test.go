package rules

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegexExtract(t *testing.T) {
	raw := "Rechnung Nr. 2023-0815\nLeistungsdatum: 01.12.2023"

	e := Call(OpRegexExtract,
		Lit(`Leistungsdatum[:\s]*(\d{2}\.\d{2}\.\d{4})`), Lit(raw), Lit(1))
	assert.Equal(t, "01.12.2023", Eval(e, nil))
}

func TestRegexExtract_NoMatchYieldsNil(t *testing.T) {
	e := Call(OpRegexExtract, Lit(`Datum[:\s]*(\d+)`), Lit("no dates here"), Lit(1))
	assert.Nil(t, Eval(e, nil))
}

func TestRegexExtract_MalformedPatternYieldsNil(t *testing.T) {
	e := Call(OpRegexExtract, Lit(`([`), Lit("text"), Lit(1))
	assert.Nil(t, Eval(e, nil))
}

func TestRegexExtract_OversizedPatternYieldsNil(t *testing.T) {
	huge := strings.Repeat("a", maxPatternLen+1)
	e := Call(OpRegexExtract, Lit(huge), Lit("aaa"), Lit(0))
	assert.Nil(t, Eval(e, nil))
}

func TestRegexExtract_GroupOutOfRangeYieldsNil(t *testing.T) {
	e := Call(OpRegexExtract, Lit(`(\d+)`), Lit("42"), Lit(5))
	assert.Nil(t, Eval(e, nil))
}

func TestRegexTest(t *testing.T) {
	assert.Equal(t, true, Eval(Call(OpRegexTest, Lit(`\d+%\s*Skonto`), Lit("2% Skonto bei Zahlung")), nil))
	assert.Equal(t, false, Eval(Call(OpRegexTest, Lit(`\d+%\s*Skonto`), Lit("netto 30 Tage")), nil))
}

func TestMapLookup_ExactBeforeContainment(t *testing.T) {
	table := []MapEntry{
		{Key: "beratung projekt hamburg-ny", Value: "SRV-001"},
		{Key: "beratung", Value: "SRV-GENERIC"},
	}

	// Exact normalized key wins even though the generic token also matches.
	e := Lookup(table, Lit("Beratung Projekt Hamburg-NY"))
	assert.Equal(t, "SRV-001", Eval(e, nil))

	// Containment falls back in table order.
	e = Lookup(table, Lit("Beratung und Konzeption"))
	assert.Equal(t, "SRV-GENERIC", Eval(e, nil))
}

func TestMapLookup_NoHitYieldsNil(t *testing.T) {
	table := []MapEntry{{Key: "wartung", Value: "SRV-002"}}
	assert.Nil(t, Eval(Lookup(table, Lit("lizenzkosten")), nil))
	assert.Nil(t, Eval(Lookup(table, Lit("   ")), nil))
}

func TestDateNormalization(t *testing.T) {
	assert.Equal(t, "2023-12-01", Eval(Call(OpDateISO, Lit("01.12.2023")), nil))
	assert.Equal(t, "2023-12-01", Eval(Call(OpDateISO, Lit("2023-12-01")), nil))
	assert.Equal(t, "2023-12-01", Eval(Call(OpDateISO, Lit("01.12.23")), nil))
	assert.Equal(t, "01.12.2023", Eval(Call(OpDateGerman, Lit("2023-12-01")), nil))
	assert.Nil(t, Eval(Call(OpDateISO, Lit("not a date")), nil))
}

func TestExtractNumber(t *testing.T) {
	assert.Equal(t, 1190.5, Eval(Call(OpNumber, Lit("Gesamt: 1190,5 EUR")), nil))
	assert.Equal(t, 1190.5, Eval(Call(OpNumber, Lit("Total 1190.5")), nil))
	assert.Equal(t, -42.0, Eval(Call(OpNumber, Lit("balance -42")), nil))
	assert.Nil(t, Eval(Call(OpNumber, Lit("no numbers")), nil))
}

func TestExtractCurrency(t *testing.T) {
	assert.Equal(t, "EUR", Eval(Call(OpCurrency, Lit("Betrag: 119,00 eur")), nil))
	assert.Equal(t, "USD", Eval(Call(OpCurrency, Lit("Total: $99.00")), nil))
	assert.Equal(t, "EUR", Eval(Call(OpCurrency, Lit("119,00 €")), nil))
	assert.Nil(t, Eval(Call(OpCurrency, Lit("Betrag: 119,00")), nil))
}
