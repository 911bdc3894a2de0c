package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/ledgerline/invoice-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Memory aggregates
// are stored as JSON documents; only the columns needed for lookups are
// broken out.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS vendors (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	doc        TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS corrections (
	id         TEXT PRIMARY KEY,
	doc        TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS resolutions (
	rule_id    TEXT PRIMARY KEY,
	doc        TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS processed_invoices (
	fingerprint    TEXT PRIMARY KEY,
	invoice_id     TEXT NOT NULL,
	vendor         TEXT NOT NULL,
	invoice_number TEXT NOT NULL,
	total_amount   REAL NOT NULL,
	processed_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_vendors_name ON vendors(name);
CREATE INDEX IF NOT EXISTS idx_processed_vendor ON processed_invoices(vendor);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) FindVendorExact(ctx context.Context, name string) (*model.VendorMemory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT doc FROM vendors WHERE name = ? ORDER BY created_at LIMIT 1`, name)

	var doc string
	err := row.Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find vendor")
	}
	var vm model.VendorMemory
	if err := json.Unmarshal([]byte(doc), &vm); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal vendor")
	}
	return &vm, nil
}

func (s *SQLiteStore) SearchVendorsApprox(ctx context.Context, query string, threshold float64) ([]VendorMatch, error) {
	vendors, err := s.ListVendors(ctx)
	if err != nil {
		return nil, err
	}
	return rankVendors(vendors, query, threshold), nil
}

func (s *SQLiteStore) ListVendors(ctx context.Context) ([]model.VendorMemory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM vendors ORDER BY created_at, id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list vendors")
	}
	defer rows.Close()

	var vendors []model.VendorMemory
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan vendor")
		}
		var vm model.VendorMemory
		if err := json.Unmarshal([]byte(doc), &vm); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal vendor")
		}
		vendors = append(vendors, vm)
	}
	return vendors, eris.Wrap(rows.Err(), "sqlite: list vendors iterate")
}

func (s *SQLiteStore) UpsertVendor(ctx context.Context, vm model.VendorMemory) error {
	doc, err := json.Marshal(vm)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal vendor")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO vendors (id, name, doc, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, doc = excluded.doc, updated_at = excluded.updated_at`,
		vm.ID, vm.Name, string(doc), vm.CreatedAt.UTC(), vm.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert vendor %s", vm.ID)
}

func (s *SQLiteStore) ListCorrectionMemories(ctx context.Context) ([]model.CorrectionMemory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM corrections ORDER BY created_at, id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list corrections")
	}
	defer rows.Close()

	var cms []model.CorrectionMemory
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan correction")
		}
		var cm model.CorrectionMemory
		if err := json.Unmarshal([]byte(doc), &cm); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal correction")
		}
		cms = append(cms, cm)
	}
	return cms, eris.Wrap(rows.Err(), "sqlite: list corrections iterate")
}

func (s *SQLiteStore) UpsertCorrectionMemory(ctx context.Context, cm model.CorrectionMemory) error {
	doc, err := json.Marshal(cm)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal correction")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO corrections (id, doc, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
		cm.ID, string(doc), cm.CreatedAt.UTC(), cm.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert correction %s", cm.ID)
}

func (s *SQLiteStore) GetResolutionMemory(ctx context.Context, ruleID string) (model.ResolutionMemory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT doc FROM resolutions WHERE rule_id = ?`, ruleID)

	var doc string
	err := row.Scan(&doc)
	if err == sql.ErrNoRows {
		// Lazily created: a rule that was never resolved has an all-zero record.
		return model.ResolutionMemory{RuleID: ruleID}, nil
	}
	if err != nil {
		return model.ResolutionMemory{}, eris.Wrap(err, "sqlite: get resolution")
	}
	var rm model.ResolutionMemory
	if err := json.Unmarshal([]byte(doc), &rm); err != nil {
		return model.ResolutionMemory{}, eris.Wrap(err, "sqlite: unmarshal resolution")
	}
	return rm, nil
}

func (s *SQLiteStore) UpsertResolutionMemory(ctx context.Context, rm model.ResolutionMemory) error {
	doc, err := json.Marshal(rm)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal resolution")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO resolutions (rule_id, doc, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(rule_id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
		rm.RuleID, string(doc), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert resolution %s", rm.RuleID)
}

func (s *SQLiteStore) FingerprintExists(ctx context.Context, hash string) (bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM processed_invoices WHERE fingerprint = ?`, hash)
	var one int
	err := row.Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "sqlite: fingerprint exists")
	}
	return true, nil
}

func (s *SQLiteStore) RecordProcessedInvoice(ctx context.Context, rec ProcessedInvoice) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO processed_invoices (fingerprint, invoice_id, vendor, invoice_number, total_amount, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(fingerprint) DO NOTHING`,
		rec.Fingerprint, rec.InvoiceID, rec.Vendor, rec.InvoiceNumber, rec.TotalAmount, rec.ProcessedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: record processed invoice %s", rec.Fingerprint)
}
