package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"

	"github.com/ledgerline/invoice-cli/internal/engine"
	"github.com/ledgerline/invoice-cli/internal/model"
	"github.com/ledgerline/invoice-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "invoice.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEngine builds the migrated engine every command runs against.
func initEngine(ctx context.Context) (*engine.Engine, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	eng, err := engine.New(engine.Options{
		Store:               st,
		SimilarityThreshold: cfg.Match.SimilarityThreshold,
	})
	if err != nil {
		st.Close()
		return nil, err
	}
	return eng, nil
}

// readInvoice loads one invoice JSON document from a file, or stdin for "-".
func readInvoice(path string) (model.Invoice, error) {
	var inv model.Invoice

	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return inv, eris.Wrapf(err, "read invoice %s", path)
	}

	if err := json.Unmarshal(data, &inv); err != nil {
		return inv, eris.Wrapf(err, "parse invoice %s", path)
	}
	return inv, nil
}

// writeJSON pretty-prints v to stdout.
func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
