package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tallyprep/tallyprep/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteSource backs the catalog with a local SQLite database.
type SQLiteSource struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteSource opens (creating if necessary) the catalog database.
func NewSQLiteSource(dbPath string) (*SQLiteSource, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("dbPath must not be empty")
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteSource{db: db, dbPath: dbPath}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

func (s *SQLiteSource) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS catalog_entries (
		id TEXT PRIMARY KEY,
		canonical_name TEXT NOT NULL,
		unit TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		priority INTEGER NOT NULL DEFAULT 0,
		seq INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_catalog_entries_seq ON catalog_entries(seq);`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate catalog schema: %w", err)
	}
	return nil
}

// Fetch loads all catalog entries ordered by insertion sequence.
func (s *SQLiteSource) Fetch(ctx context.Context) ([]model.CatalogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, canonical_name, unit, category, priority, seq
		FROM catalog_entries
		ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.CatalogEntry
	for rows.Next() {
		var entry model.CatalogEntry
		if err := rows.Scan(&entry.ID, &entry.CanonicalName, &entry.Unit,
			&entry.Category, &entry.Priority, &entry.Seq); err != nil {
			return nil, fmt.Errorf("failed to scan catalog entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read catalog entries: %w", err)
	}
	return entries, nil
}

// ReplaceAll swaps the stored catalog for the given entries in one
// transaction. Used by the import command.
func (s *SQLiteSource) ReplaceAll(ctx context.Context, entries []model.CatalogEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM catalog_entries`); err != nil {
		return fmt.Errorf("failed to clear catalog: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO catalog_entries (id, canonical_name, unit, category, priority, seq)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, entry := range entries {
		if entry.ID == "" || entry.CanonicalName == "" {
			return fmt.Errorf("catalog entry %d is missing id or name", i)
		}
		if _, err := stmt.ExecContext(ctx, entry.ID, entry.CanonicalName,
			entry.Unit, entry.Category, entry.Priority, i); err != nil {
			return fmt.Errorf("failed to insert catalog entry %q: %w", entry.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit catalog import: %w", err)
	}
	return nil
}
