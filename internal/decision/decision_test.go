package decision

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ledgerline/invoice-cli/internal/model"
	"github.com/ledgerline/invoice-cli/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func fixedNow() time.Time {
	return time.Date(2023, 12, 15, 12, 0, 0, 0, time.UTC)
}

func newTestEngine(t *testing.T) (*Engine, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return New(st, fixedNow), st
}

func matchedContext() *model.ProcessingContext {
	return &model.ProcessingContext{
		Invoice: model.Invoice{
			ID:            "inv-1",
			VendorName:    "Acme GmbH",
			InvoiceNumber: "RE-2023-001",
			Date:          "2023-12-01",
			TotalAmount:   model.Float(119.0),
			TaxAmount:     model.Float(19.0),
			NetAmount:     model.Float(100.0),
			Currency:      "EUR",
			RawText:       "Rechnung RE-2023-001",
		},
		Vendor:      &model.VendorMemory{ID: "v1", Name: "Acme GmbH"},
		Resolutions: map[string]model.ResolutionMemory{},
	}
}

// highConfidenceProposals covers every scored field so the mean clears the
// overall threshold.
func highConfidenceProposals() map[string]model.FieldConfidence {
	out := map[string]model.FieldConfidence{}
	for _, f := range model.ContractFields {
		out[f] = model.FieldConfidence{Field: f, Confidence: 0.95, Source: model.SourceVendorPattern}
	}
	// Keep the merged values identical to the invoice.
	out[model.FieldDate] = model.FieldConfidence{Field: model.FieldDate, Value: "2023-12-01", Confidence: 0.95}
	out[model.FieldTotalAmount] = model.FieldConfidence{Field: model.FieldTotalAmount, Value: 119.0, Confidence: 0.95}
	out[model.FieldTaxAmount] = model.FieldConfidence{Field: model.FieldTaxAmount, Value: 19.0, Confidence: 0.95}
	out[model.FieldNetAmount] = model.FieldConfidence{Field: model.FieldNetAmount, Value: 100.0, Confidence: 0.95}
	out[model.FieldCurrency] = model.FieldConfidence{Field: model.FieldCurrency, Value: "EUR", Confidence: 0.95}
	out[model.FieldServiceDate] = model.FieldConfidence{Field: model.FieldServiceDate, Value: "2023-12-01", Confidence: 0.95}
	out[model.FieldDueDate] = model.FieldConfidence{Field: model.FieldDueDate, Value: "2023-12-31", Confidence: 0.95}
	out[model.FieldPaymentTerms] = model.FieldConfidence{Field: model.FieldPaymentTerms, Value: "30 Tage netto", Confidence: 0.95}
	out[model.FieldPONumber] = model.FieldConfidence{Field: model.FieldPONumber, Value: "PO-1", Confidence: 0.95}
	delete(out, model.FieldLineItems) // no line items on the test invoice
	return out
}

func TestDecide_AutoApprovesConfidentInvoice(t *testing.T) {
	eng, _ := newTestEngine(t)

	out, err := eng.Decide(context.Background(), matchedContext(), highConfidenceProposals())
	require.NoError(t, err)

	assert.False(t, out.RequiresHumanReview)
	assert.Equal(t, "auto-approved", out.Reasoning)
	assert.Greater(t, out.Confidence, 0.80)
}

func TestDecide_ProposalOverridesRawValue(t *testing.T) {
	eng, _ := newTestEngine(t)

	pc := matchedContext()
	pc.Invoice.TaxAmount = model.Float(0)

	proposals := highConfidenceProposals()
	proposals[model.FieldTaxAmount] = model.FieldConfidence{
		Field: model.FieldTaxAmount, Value: 19.0, Confidence: 0.92, RuleID: "tax_inclusive_vat:abc",
	}

	out, err := eng.Decide(context.Background(), pc, proposals)
	require.NoError(t, err)
	assert.Equal(t, 19.0, *out.Invoice.TaxAmount)
}

func TestDecide_NewVendorEscalates(t *testing.T) {
	eng, _ := newTestEngine(t)

	pc := matchedContext()
	pc.Vendor = nil

	out, err := eng.Decide(context.Background(), pc, highConfidenceProposals())
	require.NoError(t, err)
	assert.True(t, out.RequiresHumanReview)
	assert.Contains(t, out.Reasoning, "new vendor")
}

func TestDecide_MissingCriticalFieldEscalates(t *testing.T) {
	eng, _ := newTestEngine(t)

	pc := matchedContext()
	pc.Invoice.Date = ""
	proposals := highConfidenceProposals()
	delete(proposals, model.FieldDate)

	out, err := eng.Decide(context.Background(), pc, proposals)
	require.NoError(t, err)
	assert.True(t, out.RequiresHumanReview)
	assert.Contains(t, out.Reasoning, "critical field missing: date")
}

func TestDecide_LowCriticalConfidenceEscalates(t *testing.T) {
	eng, _ := newTestEngine(t)

	proposals := highConfidenceProposals()
	proposals[model.FieldTotalAmount] = model.FieldConfidence{
		Field: model.FieldTotalAmount, Value: 119.0, Confidence: 0.5,
	}

	out, err := eng.Decide(context.Background(), matchedContext(), proposals)
	require.NoError(t, err)
	assert.True(t, out.RequiresHumanReview)
	assert.Contains(t, out.Reasoning, "critical field low confidence: totalAmount")
}

func TestDecide_LowOverallConfidenceEscalates(t *testing.T) {
	eng, _ := newTestEngine(t)

	// Critical fields confident, but everything else uncertain drags the
	// mean below 0.80.
	pc := matchedContext()
	pc.Invoice.Currency = ""
	pc.Invoice.TaxAmount = nil
	pc.Invoice.NetAmount = nil

	proposals := map[string]model.FieldConfidence{
		model.FieldDate:        {Field: model.FieldDate, Value: "2023-12-01", Confidence: 0.95},
		model.FieldTotalAmount: {Field: model.FieldTotalAmount, Value: 119.0, Confidence: 0.95},
	}

	out, err := eng.Decide(context.Background(), pc, proposals)
	require.NoError(t, err)
	assert.True(t, out.RequiresHumanReview)
	assert.Contains(t, out.Reasoning, "overall confidence")
}

func TestDecide_LineItemSumMismatchEscalates(t *testing.T) {
	eng, _ := newTestEngine(t)

	pc := matchedContext()
	pc.Invoice.LineItems = []model.LineItem{
		{Description: "Beratung", Amount: 50.0},
		{Description: "Wartung", Amount: 50.0},
	}
	proposals := highConfidenceProposals()
	proposals[model.FieldLineItems] = model.FieldConfidence{
		Field: model.FieldLineItems, Value: pc.Invoice.LineItems, Confidence: 0.95,
	}

	// Line items sum to 100.00, total is 119.00.
	out, err := eng.Decide(context.Background(), pc, proposals)
	require.NoError(t, err)
	assert.True(t, out.RequiresHumanReview)
	assert.Contains(t, out.Reasoning, "amount mismatch")
}

func TestDecide_DuplicateFingerprintEscalates(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	first, err := eng.Decide(ctx, matchedContext(), highConfidenceProposals())
	require.NoError(t, err)
	require.False(t, first.RequiresHumanReview)

	// Same vendor, number, date and total: same fingerprint.
	second, err := eng.Decide(ctx, matchedContext(), highConfidenceProposals())
	require.NoError(t, err)
	assert.True(t, second.RequiresHumanReview)
	assert.Contains(t, second.Reasoning, "duplicate invoice")
}

func TestDecide_RecordsFingerprintEvenWhenEscalating(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	pc := matchedContext()
	pc.Vendor = nil // forces escalation

	out, err := eng.Decide(ctx, pc, highConfidenceProposals())
	require.NoError(t, err)
	require.True(t, out.RequiresHumanReview)

	exists, err := st.FingerprintExists(ctx, Fingerprint(out.Invoice))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestFingerprint_SensitiveToIdentityTuple(t *testing.T) {
	base := matchedContext().Invoice

	same := base
	assert.Equal(t, Fingerprint(base), Fingerprint(same))

	diff := base
	diff.InvoiceNumber = "RE-2023-002"
	assert.NotEqual(t, Fingerprint(base), Fingerprint(diff))

	// Raw text differences do not change identity.
	ocr := base
	ocr.RawText = "noisy rescan of the same invoice"
	assert.Equal(t, Fingerprint(base), Fingerprint(ocr))
}

// --- Resolution recording ---

func TestRecordResolutions_AcceptedWhenHumanKeptValue(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	system := matchedContext().Invoice
	corrected := system // untouched

	proposals := map[string]model.FieldConfidence{
		model.FieldTaxAmount: {Field: model.FieldTaxAmount, Value: 19.0, Confidence: 0.9, RuleID: "v1:taxAmount"},
	}

	n, err := eng.RecordResolutions(ctx, proposals, system, corrected)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rm, err := st.GetResolutionMemory(ctx, "v1:taxAmount")
	require.NoError(t, err)
	assert.Equal(t, 1, rm.AcceptedCount)
	assert.Equal(t, 0, rm.RejectedCount)
}

func TestRecordResolutions_RejectedWhenHumanOverrode(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	system := matchedContext().Invoice
	corrected := system
	corrected.TaxAmount = model.Float(20.0)

	proposals := map[string]model.FieldConfidence{
		model.FieldTaxAmount: {Field: model.FieldTaxAmount, Value: 19.0, Confidence: 0.9, RuleID: "v1:taxAmount"},
	}

	n, err := eng.RecordResolutions(ctx, proposals, system, corrected)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rm, err := st.GetResolutionMemory(ctx, "v1:taxAmount")
	require.NoError(t, err)
	assert.Equal(t, 1, rm.RejectedCount)
}

func TestRecordResolutions_SkipsProposalsWithoutRuleID(t *testing.T) {
	eng, _ := newTestEngine(t)

	system := matchedContext().Invoice
	proposals := map[string]model.FieldConfidence{
		model.FieldCurrency: {Field: model.FieldCurrency, Value: "EUR", Confidence: 0.9}, // vendor default
	}

	n, err := eng.RecordResolutions(context.Background(), proposals, system, system)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
