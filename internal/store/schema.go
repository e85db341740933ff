// Package store provides the SQLite-backed persistence for projects, state
// fields, entries, and the lexical entry index.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS projects (
	project_id TEXT NOT NULL,
	user_id    TEXT NOT NULL DEFAULT 'local',
	created_at TEXT NOT NULL,
	PRIMARY KEY (project_id, user_id)
);

-- is_list_item=0 renders "- key: value", is_list_item=1 renders "- value".
CREATE TABLE IF NOT EXISTS project_state_fields (
	project_id   TEXT    NOT NULL,
	user_id      TEXT    NOT NULL DEFAULT 'local',
	section      TEXT    NOT NULL,
	key          TEXT    NOT NULL,
	value        TEXT    NOT NULL,
	is_list_item INTEGER NOT NULL DEFAULT 0,
	updated_at   TEXT    NOT NULL,
	PRIMARY KEY (project_id, user_id, section, key)
);

-- tags holds a JSON array of strings.
CREATE TABLE IF NOT EXISTS entries (
	entry_id    TEXT PRIMARY KEY,
	project_id  TEXT NOT NULL,
	user_id     TEXT NOT NULL DEFAULT 'local',
	title       TEXT NOT NULL,
	type        TEXT NOT NULL DEFAULT 'session',
	source_tool TEXT NOT NULL DEFAULT 'unknown',
	tags        TEXT NOT NULL DEFAULT '[]',
	timestamp   TEXT NOT NULL,
	content     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entries_owner_ts ON entries(project_id, user_id, timestamp);

CREATE TABLE IF NOT EXISTS users (
	user_id    TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	last_seen  TEXT NOT NULL
);
`

// entryMetadataColumns are added to entries tables created before entries
// carried a type, a source tool and tags.
var entryMetadataColumns = []struct{ name, def string }{
	{"type", `TEXT NOT NULL DEFAULT 'session'`},
	{"source_tool", `TEXT NOT NULL DEFAULT 'unknown'`},
	{"tags", `TEXT NOT NULL DEFAULT '[]'`},
}

func migrateEntries(conn *sql.DB) error {
	rows, err := conn.Query(`PRAGMA table_info(entries)`)
	if err != nil {
		return err
	}
	have := make(map[string]bool)
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, colType    string
			dflt             any
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			rows.Close()
			return err
		}
		have[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, col := range entryMetadataColumns {
		if have[col.name] {
			continue
		}
		if _, err := conn.Exec(`ALTER TABLE entries ADD COLUMN ` + col.name + ` ` + col.def); err != nil {
			return fmt.Errorf("add column %s: %w", col.name, err)
		}
	}
	return nil
}

// timeLayout is fixed width so that lexical order of stored timestamps
// equals chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("store: parse time %q: %w", s, err)
	}
	return t.UTC(), nil
}

// DB wraps a sql.DB with memory-specific operations.
type DB struct {
	conn     *sql.DB
	now      func() time.Time
	fullText bool
}

// Option configures a DB.
type Option func(*DB)

// WithClock overrides the time source used for project and user timestamps.
func WithClock(now func() time.Time) Option {
	return func(db *DB) {
		db.now = now
	}
}

// Open opens (or creates) the SQLite database and applies the schema. The
// FTS5 index is used when the SQLite library was built with it (the
// sqlite_fts5 build tag); otherwise search falls back to LIKE scans.
func Open(dsn string, opts ...Option) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply core schema: %w", err)
	}
	if err := migrateEntries(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: migrate entries: %w", err)
	}
	fullText, err := initFTS(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply fts schema: %w", err)
	}
	db := &DB{conn: conn, now: time.Now, fullText: fullText}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

// FullText reports whether entries are searched through the FTS5 index.
func (db *DB) FullText() bool {
	return db.fullText
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
