package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/ledgerline/invoice-cli/internal/model"
)

// pgPool is the minimal pool surface the store needs; pgxpool.Pool and the
// pgxmock pool both satisfy it.
type pgPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool with jsonb documents.
type PostgresStore struct {
	pool pgPool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// newPostgresWithPool wires an externally owned pool; used by tests.
func newPostgresWithPool(pool pgPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS vendors (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	doc        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS corrections (
	id         TEXT PRIMARY KEY,
	doc        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS resolutions (
	rule_id    TEXT PRIMARY KEY,
	doc        JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS processed_invoices (
	fingerprint    TEXT PRIMARY KEY,
	invoice_id     TEXT NOT NULL,
	vendor         TEXT NOT NULL,
	invoice_number TEXT NOT NULL,
	total_amount   DOUBLE PRECISION NOT NULL,
	processed_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_vendors_name ON vendors(name);
CREATE INDEX IF NOT EXISTS idx_processed_vendor ON processed_invoices(vendor);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) FindVendorExact(ctx context.Context, name string) (*model.VendorMemory, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT doc FROM vendors WHERE name = $1 ORDER BY created_at LIMIT 1`, name)

	var doc []byte
	err := row.Scan(&doc)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find vendor")
	}
	var vm model.VendorMemory
	if err := json.Unmarshal(doc, &vm); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal vendor")
	}
	return &vm, nil
}

func (s *PostgresStore) SearchVendorsApprox(ctx context.Context, query string, threshold float64) ([]VendorMatch, error) {
	vendors, err := s.ListVendors(ctx)
	if err != nil {
		return nil, err
	}
	// Scoring happens in-process so sqlite and postgres rank identically.
	return rankVendors(vendors, query, threshold), nil
}

func (s *PostgresStore) ListVendors(ctx context.Context) ([]model.VendorMemory, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT doc FROM vendors ORDER BY created_at, id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list vendors")
	}
	defer rows.Close()

	var vendors []model.VendorMemory
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "postgres: scan vendor")
		}
		var vm model.VendorMemory
		if err := json.Unmarshal(doc, &vm); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal vendor")
		}
		vendors = append(vendors, vm)
	}
	return vendors, eris.Wrap(rows.Err(), "postgres: list vendors iterate")
}

func (s *PostgresStore) UpsertVendor(ctx context.Context, vm model.VendorMemory) error {
	doc, err := json.Marshal(vm)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal vendor")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO vendors (id, name, doc, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at`,
		vm.ID, vm.Name, doc, vm.CreatedAt.UTC(), vm.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert vendor %s", vm.ID)
}

func (s *PostgresStore) ListCorrectionMemories(ctx context.Context) ([]model.CorrectionMemory, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT doc FROM corrections ORDER BY created_at, id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list corrections")
	}
	defer rows.Close()

	var cms []model.CorrectionMemory
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "postgres: scan correction")
		}
		var cm model.CorrectionMemory
		if err := json.Unmarshal(doc, &cm); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal correction")
		}
		cms = append(cms, cm)
	}
	return cms, eris.Wrap(rows.Err(), "postgres: list corrections iterate")
}

func (s *PostgresStore) UpsertCorrectionMemory(ctx context.Context, cm model.CorrectionMemory) error {
	doc, err := json.Marshal(cm)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal correction")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO corrections (id, doc, created_at, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at`,
		cm.ID, doc, cm.CreatedAt.UTC(), cm.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert correction %s", cm.ID)
}

func (s *PostgresStore) GetResolutionMemory(ctx context.Context, ruleID string) (model.ResolutionMemory, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT doc FROM resolutions WHERE rule_id = $1`, ruleID)

	var doc []byte
	err := row.Scan(&doc)
	if err == pgx.ErrNoRows {
		return model.ResolutionMemory{RuleID: ruleID}, nil
	}
	if err != nil {
		return model.ResolutionMemory{}, eris.Wrap(err, "postgres: get resolution")
	}
	var rm model.ResolutionMemory
	if err := json.Unmarshal(doc, &rm); err != nil {
		return model.ResolutionMemory{}, eris.Wrap(err, "postgres: unmarshal resolution")
	}
	return rm, nil
}

func (s *PostgresStore) UpsertResolutionMemory(ctx context.Context, rm model.ResolutionMemory) error {
	doc, err := json.Marshal(rm)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal resolution")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO resolutions (rule_id, doc, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (rule_id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at`,
		rm.RuleID, doc, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert resolution %s", rm.RuleID)
}

func (s *PostgresStore) FingerprintExists(ctx context.Context, hash string) (bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_invoices WHERE fingerprint = $1)`, hash)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, eris.Wrap(err, "postgres: fingerprint exists")
	}
	return exists, nil
}

func (s *PostgresStore) RecordProcessedInvoice(ctx context.Context, rec ProcessedInvoice) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO processed_invoices (fingerprint, invoice_id, vendor, invoice_number, total_amount, processed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (fingerprint) DO NOTHING`,
		rec.Fingerprint, rec.InvoiceID, rec.Vendor, rec.InvoiceNumber, rec.TotalAmount, rec.ProcessedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: record processed invoice %s", rec.Fingerprint)
}
