package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/noosphere/internal/models"
)

// initFTS creates the index and reports whether it is available. The index
// is an external-content FTS5 table over entries(title, content) kept in
// sync by triggers, so index rows change in the same transaction as their
// entry. SQLite builds without FTS5 report false and no error.
func initFTS(conn *sql.DB) (bool, error) {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
			title, content,
			content=entries,
			content_rowid=rowid,
			tokenize='porter unicode61'
		);

		CREATE TRIGGER IF NOT EXISTS entries_ai AFTER INSERT ON entries BEGIN
			INSERT INTO entries_fts(rowid, title, content)
				VALUES (new.rowid, new.title, new.content);
		END;

		CREATE TRIGGER IF NOT EXISTS entries_ad AFTER DELETE ON entries BEGIN
			INSERT INTO entries_fts(entries_fts, rowid, title, content)
				VALUES ('delete', old.rowid, old.title, old.content);
		END;

		CREATE TRIGGER IF NOT EXISTS entries_au AFTER UPDATE ON entries BEGIN
			INSERT INTO entries_fts(entries_fts, rowid, title, content)
				VALUES ('delete', old.rowid, old.title, old.content);
			INSERT INTO entries_fts(rowid, title, content)
				VALUES (new.rowid, new.title, new.content);
		END;
	`)
	if err != nil && strings.Contains(err.Error(), "no such module: fts5") {
		return false, nil
	}
	return err == nil, err
}

// searchFTS runs an FTS5 query matching any keyword, scoped to one project
// and user, best match first.
func (db *DB) searchFTS(ctx context.Context, projectID, userID string, keywords []string, limit int) ([]models.SearchResult, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT e.entry_id,
		       e.title,
		       e.type,
		       e.source_tool,
		       e.tags,
		       snippet(entries_fts, 1, '[', ']', '...', 32),
		       e.timestamp
		FROM entries_fts
		JOIN entries e ON e.rowid = entries_fts.rowid
		WHERE entries_fts MATCH ?
		  AND e.project_id = ?
		  AND e.user_id = ?
		ORDER BY rank
		LIMIT ?
	`, matchQuery(keywords), projectID, userID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	defer rows.Close()

	var out []models.SearchResult
	for rows.Next() {
		var (
			r        models.SearchResult
			tags, ts string
		)
		if err := rows.Scan(&r.EntryID, &r.Title, &r.Type, &r.SourceTool, &tags, &r.Snippet, &ts); err != nil {
			return nil, fmt.Errorf("store: scan search result: %w", err)
		}
		if r.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		if r.Tags, err = decodeTags(tags); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
