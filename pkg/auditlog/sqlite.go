package auditlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS activations (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	ts_millis INTEGER NOT NULL,
	level     TEXT NOT NULL,
	session   TEXT NOT NULL DEFAULT '',
	patch     TEXT NOT NULL,
	scope     TEXT NOT NULL DEFAULT '',
	message   TEXT NOT NULL,
	attrs     TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS activations_session ON activations (session, id);`

const insertEntry = `INSERT INTO activations (ts_millis, level, session, patch, scope, message, attrs) VALUES (?, ?, ?, ?, ?, ?, ?)`

const selectEntries = `SELECT ts_millis, level, session, patch, scope, message, attrs FROM activations WHERE ? = '' OR session = ? ORDER BY id`

// SQLiteSink appends entries to the activations table of a SQLite file.
// The file and table are created when missing.
type SQLiteSink struct {
	db *sql.DB
}

func OpenSQLite(ctx context.Context, path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply audit schema: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) Insert(ctx context.Context, e Entry) error {
	attrs := []byte("{}")
	if len(e.Attrs) > 0 {
		raw, err := json.Marshal(e.Attrs)
		if err != nil {
			return fmt.Errorf("encode attrs of %s: %w", e.Patch, err)
		}
		attrs = raw
	}

	if _, err := s.db.ExecContext(ctx, insertEntry,
		e.Time.UnixMilli(), e.Level, e.Session, e.Patch, e.Scope, e.Message, string(attrs),
	); err != nil {
		return fmt.Errorf("insert activation %s: %w", e.Patch, err)
	}
	return nil
}

// Entries returns the stored entries in insertion order, limited to one
// session unless session is empty.
func (s *SQLiteSink) Entries(ctx context.Context, session string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, selectEntries, session, session)
	if err != nil {
		return nil, fmt.Errorf("query activations: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e      Entry
			millis int64
			attrs  string
		)
		if err := rows.Scan(&millis, &e.Level, &e.Session, &e.Patch, &e.Scope, &e.Message, &attrs); err != nil {
			return nil, fmt.Errorf("scan activation: %w", err)
		}
		e.Time = time.UnixMilli(millis).UTC()
		if attrs != "" && attrs != "{}" {
			if err := json.Unmarshal([]byte(attrs), &e.Attrs); err != nil {
				return nil, fmt.Errorf("decode attrs of %s: %w", e.Patch, err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activations: %w", err)
	}
	return entries, nil
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
