package fixture

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS fixtures (
	domain    TEXT NOT NULL,
	operation TEXT NOT NULL,
	entity    TEXT NOT NULL DEFAULT '',
	payload   BLOB NOT NULL,
	PRIMARY KEY (domain, operation, entity)
);`

const selectFixtures = `SELECT domain, operation, entity, payload FROM fixtures ORDER BY domain, operation, entity`

const insertFixture = `INSERT INTO fixtures (domain, operation, entity, payload) VALUES (?, ?, ?, ?)`

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	return db, nil
}

func withLogging(inner dbtx, logger *slog.Logger) dbtx {
	if logger == nil {
		return inner
	}
	return loggingDB{inner: inner, logger: logger}
}

// OpenSQLite reads a recorded dataset into memory. The database is closed
// before returning.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("fixture dataset %q: %w", path, err)
	}

	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := withLogging(db, logger).QueryContext(ctx, selectFixtures)
	if err != nil {
		return nil, fmt.Errorf("query fixtures: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var payload []byte
		if err := rows.Scan(&rec.Key.Domain, &rec.Key.Operation, &rec.Key.Entity, &payload); err != nil {
			return nil, fmt.Errorf("scan fixture: %w", err)
		}
		rec.Payload = payload
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fixtures: %w", err)
	}

	return FromRecords(records)
}

// SaveSQLite writes every record of the store into a new database at path.
// An existing file is refused.
func SaveSQLite(ctx context.Context, path string, store *Store, logger *slog.Logger) (err error) {
	if _, statErr := os.Stat(path); statErr == nil {
		return fmt.Errorf("fixture dataset %q already exists", path)
	} else if !errors.Is(statErr, os.ErrNotExist) {
		return statErr
	}

	db, err := openDB(path)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := withLogging(db, logger).ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	q := withLogging(tx, logger)
	for _, rec := range store.Records() {
		if _, err = q.ExecContext(ctx, insertFixture, rec.Key.Domain, rec.Key.Operation, rec.Key.Entity, []byte(rec.Payload)); err != nil {
			return fmt.Errorf("insert fixture %s: %w", rec.Key, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Load picks the loader from the file extension: .yaml, .yml and .json are
// read as YAML documents, anything else as a SQLite database.
func Load(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("fixture dataset %q: %w", path, err)
		}
		defer f.Close()
		return LoadYAML(f)
	default:
		return OpenSQLite(ctx, path, logger)
	}
}
