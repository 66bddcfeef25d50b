package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/viper"

	"github.com/tallyprep/tallyprep/internal/catalog"
	"github.com/tallyprep/tallyprep/internal/config"
	"github.com/tallyprep/tallyprep/internal/dispatch"
	"github.com/tallyprep/tallyprep/internal/export"
	"github.com/tallyprep/tallyprep/internal/ingest"
	"github.com/tallyprep/tallyprep/internal/matching"
	"github.com/tallyprep/tallyprep/internal/model"
	"github.com/tallyprep/tallyprep/internal/session"
)

// initCatalog opens the catalog database and wraps it in a cached provider.
func initCatalog() (*catalog.Provider, *catalog.SQLiteSource, error) {
	source, err := catalog.NewSQLiteSource(config.CatalogDBPath())
	if err != nil {
		return nil, nil, err
	}
	return catalog.NewProvider(source, slog.Default()), source, nil
}

// initExporter builds the configured export destination. Sheets needs
// credentials; csv needs an output path.
func initExporter(ctx context.Context, format, outPath string) (export.Exporter, error) {
	if format == "" {
		format = viper.GetString("export.format")
	}

	switch format {
	case "sheets":
		cfg, err := config.SheetsConfig()
		if err != nil {
			return nil, err
		}
		return export.NewSheetsExporter(ctx, cfg, slog.Default())
	default:
		if outPath == "" {
			outPath = "receipt.csv"
		}
		return export.NewCSVExporter(outPath), nil
	}
}

// initDispatcher wires the dispatcher with store, provider, matcher, and an
// optional exporter.
func initDispatcher(provider *catalog.Provider, exporter export.Exporter) (*dispatch.Dispatcher, *session.Store) {
	store := session.NewStore(config.SessionConfig())
	matcher := matching.NewEngine(config.MatchingConfig())
	return dispatch.New(store, provider, matcher, exporter, config.PageSize(), slog.Default()), store
}

// loadReceipt parses a recognition dump file into a receipt.
func loadReceipt(path string) (*model.Receipt, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ingest.ParseItems(f)
}
