package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/starford/noosphere/internal/apperr"
	"github.com/starford/noosphere/internal/models"
)

const entryColumns = `entry_id, project_id, user_id, title, type, source_tool, tags, timestamp, content`

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(b), nil
}

func decodeTags(raw string) ([]string, error) {
	tags := []string{}
	if raw == "" {
		return tags, nil
	}
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, fmt.Errorf("decode tags %q: %w", raw, err)
	}
	return tags, nil
}

// InsertEntry stores a new entry and creates its project if needed. The
// search index is maintained by the storage engine in the same transaction.
func (db *DB) InsertEntry(ctx context.Context, e models.Entry) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if err := db.ensureProject(ctx, tx, e.ProjectID, e.UserID); err != nil {
		return err
	}

	tags, err := encodeTags(e.Tags)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if e.Type == "" {
		e.Type = models.EntryTypeSession
	}
	if e.SourceTool == "" {
		e.SourceTool = models.DefaultSourceTool
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.EntryID, e.ProjectID, e.UserID, e.Title, e.Type, e.SourceTool, tags, formatTime(e.Timestamp), e.Content)
	if err != nil {
		return fmt.Errorf("store: insert entry: %w", err)
	}

	return tx.Commit()
}

// GetEntry returns the entry only when it belongs to userID.
func (db *DB) GetEntry(ctx context.Context, entryID, userID string) (*models.Entry, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE entry_id = ? AND user_id = ?`,
		entryID, userID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get entry: %w", err)
	}
	return e, nil
}

// RecentEntries returns at most limit entries, newest first.
func (db *DB) RecentEntries(ctx context.Context, projectID, userID string, limit int) ([]models.Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	return db.queryEntries(ctx, `
		SELECT `+entryColumns+` FROM entries
		WHERE project_id = ? AND user_id = ?
		ORDER BY timestamp DESC, entry_id DESC
		LIMIT ?
	`, projectID, userID, limit)
}

// AllEntries returns every entry of a project, oldest first.
func (db *DB) AllEntries(ctx context.Context, projectID, userID string) ([]models.Entry, error) {
	return db.queryEntries(ctx, `
		SELECT `+entryColumns+` FROM entries
		WHERE project_id = ? AND user_id = ?
		ORDER BY timestamp ASC, entry_id ASC
	`, projectID, userID)
}

// CountEntries returns the number of entries in a project.
func (db *DB) CountEntries(ctx context.Context, projectID, userID string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries WHERE project_id = ? AND user_id = ?`,
		projectID, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count entries: %w", err)
	}
	return n, nil
}

func (db *DB) queryEntries(ctx context.Context, query string, args ...any) ([]models.Entry, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query entries: %w", err)
	}
	defer rows.Close()

	var out []models.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan entry: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (*models.Entry, error) {
	var (
		e        models.Entry
		tags, ts string
	)
	if err := r.Scan(&e.EntryID, &e.ProjectID, &e.UserID, &e.Title, &e.Type, &e.SourceTool, &tags, &ts, &e.Content); err != nil {
		return nil, err
	}
	t, err := parseTime(ts)
	if err != nil {
		return nil, err
	}
	e.Timestamp = t
	if e.Tags, err = decodeTags(tags); err != nil {
		return nil, err
	}
	return &e, nil
}
