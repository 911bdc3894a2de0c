package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/invoice-cli/internal/model"
	"github.com/ledgerline/invoice-cli/internal/rules"
)

func newMockPostgres(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return newPostgresWithPool(mock), mock
}

func TestPostgres_Migrate(t *testing.T) {
	st, mock := newMockPostgres(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS vendors").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, st.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindVendorExact(t *testing.T) {
	st, mock := newMockPostgres(t)

	vm := model.VendorMemory{ID: "v1", Name: "Acme GmbH"}
	doc, err := json.Marshal(vm)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT doc FROM vendors WHERE name").
		WithArgs("Acme GmbH").
		WillReturnRows(pgxmock.NewRows([]string{"doc"}).AddRow(doc))

	got, err := st.FindVendorExact(context.Background(), "Acme GmbH")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "v1", got.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindVendorExact_MissingIsNil(t *testing.T) {
	st, mock := newMockPostgres(t)

	mock.ExpectQuery("SELECT doc FROM vendors WHERE name").
		WithArgs("Nobody").
		WillReturnRows(pgxmock.NewRows([]string{"doc"}))

	got, err := st.FindVendorExact(context.Background(), "Nobody")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertVendor(t *testing.T) {
	st, mock := newMockPostgres(t)

	at := time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)
	vm := model.VendorMemory{ID: "v1", Name: "Acme GmbH", CreatedAt: at, UpdatedAt: at}
	doc, err := json.Marshal(vm)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO vendors").
		WithArgs("v1", "Acme GmbH", doc, at, at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, st.UpsertVendor(context.Background(), vm))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SearchApproxRanksInProcess(t *testing.T) {
	st, mock := newMockPostgres(t)

	acme, err := json.Marshal(model.VendorMemory{ID: "v1", Name: "Acme GmbH"})
	require.NoError(t, err)
	widget, err := json.Marshal(model.VendorMemory{ID: "v2", Name: "Widget Corp"})
	require.NoError(t, err)

	mock.ExpectQuery("SELECT doc FROM vendors ORDER BY").
		WillReturnRows(pgxmock.NewRows([]string{"doc"}).AddRow(acme).AddRow(widget))

	matches, err := st.SearchVendorsApprox(context.Background(), "Acmee GmbH", 0.4)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "v1", matches[0].Vendor.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListCorrectionMemories(t *testing.T) {
	st, mock := newMockPostgres(t)

	cm := model.CorrectionMemory{
		ID:      "tax_inclusive_vat:abc",
		Trigger: rules.Call(rules.OpEmpty, rules.Var(model.FieldTaxAmount)),
	}
	doc, err := json.Marshal(cm)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT doc FROM corrections").
		WillReturnRows(pgxmock.NewRows([]string{"doc"}).AddRow(doc))

	cms, err := st.ListCorrectionMemories(context.Background())
	require.NoError(t, err)
	require.Len(t, cms, 1)
	assert.Equal(t, rules.OpEmpty, cms[0].Trigger.Op)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetResolutionMemory_ZeroDefault(t *testing.T) {
	st, mock := newMockPostgres(t)

	mock.ExpectQuery("SELECT doc FROM resolutions").
		WithArgs("v1:taxAmount").
		WillReturnRows(pgxmock.NewRows([]string{"doc"}))

	rm, err := st.GetResolutionMemory(context.Background(), "v1:taxAmount")
	require.NoError(t, err)
	assert.Equal(t, "v1:taxAmount", rm.RuleID)
	assert.Zero(t, rm.TotalApplications)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FingerprintExists(t *testing.T) {
	st, mock := newMockPostgres(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("deadbeef").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := st.FingerprintExists(context.Background(), "deadbeef")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_RecordProcessedInvoice(t *testing.T) {
	st, mock := newMockPostgres(t)

	at := time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO processed_invoices").
		WithArgs("deadbeef", "inv-1", "Acme GmbH", "RE-1", 119.0, at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, st.RecordProcessedInvoice(context.Background(), ProcessedInvoice{
		Fingerprint:   "deadbeef",
		InvoiceID:     "inv-1",
		Vendor:        "Acme GmbH",
		InvoiceNumber: "RE-1",
		TotalAmount:   119.0,
		ProcessedAt:   at,
	}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
