package model

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validInvoice() Invoice {
	return Invoice{
		VendorName:    "Acme GmbH",
		InvoiceNumber: "RE-2023-001",
		Date:          "2023-12-01",
		TotalAmount:   Float(119.0),
		RawText:       "Rechnung RE-2023-001\nGesamt: 119,00 EUR",
	}
}

// --- Record / Field / SetField ---

func TestInvoice_RecordOmitsAbsentAmounts(t *testing.T) {
	inv := validInvoice()
	rec := inv.Record()

	assert.Equal(t, 119.0, rec[FieldTotalAmount])
	_, hasTax := rec[FieldTaxAmount]
	assert.False(t, hasTax)
}

func TestInvoice_RecordDistinguishesExplicitZero(t *testing.T) {
	inv := validInvoice()
	inv.TaxAmount = Float(0)

	rec := inv.Record()
	assert.Equal(t, 0.0, rec[FieldTaxAmount])
}

func TestInvoice_RecordFlattensLineItems(t *testing.T) {
	inv := validInvoice()
	inv.LineItems = []LineItem{{Description: "Beratung", Quantity: 2, UnitPrice: 50, Amount: 100, SKU: "SRV-1"}}

	rec := inv.Record()
	items, ok := rec[FieldLineItems].([]map[string]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Equal(t, "Beratung", items[0]["description"])
	assert.Equal(t, "SRV-1", items[0][FieldSKU])
}

func TestInvoice_SetFieldIgnoresGarbage(t *testing.T) {
	inv := validInvoice()

	assert.False(t, inv.SetField(FieldTotalAmount, "not a number"))
	assert.Equal(t, 119.0, *inv.TotalAmount)

	assert.False(t, inv.SetField("unknownField", 1.0))
	assert.True(t, inv.SetField(FieldTaxAmount, 19.0))
	assert.Equal(t, 19.0, *inv.TaxAmount)
}

// --- Validation ---

func TestInvoice_ValidateRequiredFields(t *testing.T) {
	inv := validInvoice()
	require.NoError(t, inv.Validate())

	missing := inv
	missing.VendorName = ""
	err := missing.Validate()
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestInvoice_ValidateRejectsBadDates(t *testing.T) {
	inv := validInvoice()
	inv.Date = "01.12.2023"
	assert.Error(t, inv.Validate())

	inv.Date = "2023-02-30" // right shape, not a calendar date
	assert.Error(t, inv.Validate())
}

func TestInvoice_ValidateRejectsNegativeAmounts(t *testing.T) {
	inv := validInvoice()
	inv.NetAmount = Float(-1)
	assert.Error(t, inv.Validate())
}

func TestInvoice_ValidateRejectsUnknownCurrency(t *testing.T) {
	inv := validInvoice()
	inv.Currency = "XXX"
	assert.Error(t, inv.Validate())

	inv.Currency = "EUR"
	assert.NoError(t, inv.Validate())
}

func TestOutputContract_ValidateConfidenceBounds(t *testing.T) {
	oc := OutputContract{Invoice: validInvoice(), Confidence: 1.5}
	assert.Error(t, oc.Validate())

	oc.Confidence = 0.9
	assert.NoError(t, oc.Validate())
}

// --- Resolution memory ---

func TestResolutionMemory_RecordBumpsCounters(t *testing.T) {
	var rm ResolutionMemory
	at := time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)

	rm.Record(FieldTaxAmount, OutcomeAccepted, at)
	rm.Record(FieldTaxAmount, OutcomeRejected, at)

	assert.Equal(t, 2, rm.TotalApplications)
	assert.Equal(t, 1, rm.AcceptedCount)
	assert.Equal(t, 1, rm.RejectedCount)
	require.NotNil(t, rm.LastUsedAt)
	assert.Equal(t, at, *rm.LastUsedAt)
}

func TestResolutionMemory_HistoryEvictsOldestBeyondCap(t *testing.T) {
	var rm ResolutionMemory
	at := time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < MaxResolutionHistory+5; i++ {
		rm.Record(fmt.Sprintf("f%d", i), OutcomeAccepted, at)
	}

	assert.Len(t, rm.History, MaxResolutionHistory)
	// Counters keep the full tally; only the history window is bounded.
	assert.Equal(t, MaxResolutionHistory+5, rm.TotalApplications)
	// The oldest 5 entries fell off the front.
	assert.Equal(t, "f5", rm.History[0].Field)
	assert.Equal(t, fmt.Sprintf("f%d", MaxResolutionHistory+4), rm.History[len(rm.History)-1].Field)
}

func TestResolutionKey(t *testing.T) {
	assert.Equal(t, "v1:taxAmount", ResolutionKey("v1", FieldTaxAmount))
}
