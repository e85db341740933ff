package store

import (
	"context"
	"fmt"

	"github.com/starford/noosphere/internal/models"
)

// UpsertFields writes fields in order within a single transaction, creating
// the project if needed. Scalar fields overwrite the row with the same
// (section, key); list items are plain inserts and fail on a key collision,
// which aborts the whole batch.
func (db *DB) UpsertFields(ctx context.Context, projectID, userID string, fields []models.StateField) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if err := db.ensureProject(ctx, tx, projectID, userID); err != nil {
		return err
	}

	upsert, err := tx.PrepareContext(ctx, `
		INSERT INTO project_state_fields (project_id, user_id, section, key, value, is_list_item, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(project_id, user_id, section, key) DO UPDATE SET
			value        = excluded.value,
			is_list_item = excluded.is_list_item,
			updated_at   = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("store: prepare field upsert: %w", err)
	}
	defer upsert.Close()

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO project_state_fields (project_id, user_id, section, key, value, is_list_item, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?)
	`)
	if err != nil {
		return fmt.Errorf("store: prepare list insert: %w", err)
	}
	defer insert.Close()

	for _, f := range fields {
		stmt := upsert
		if f.IsListItem {
			stmt = insert
		}
		if _, err := stmt.ExecContext(ctx, projectID, userID, f.Section, f.Key, f.Value, formatTime(f.UpdatedAt)); err != nil {
			return fmt.Errorf("store: write field %s/%s: %w", f.Section, f.Key, err)
		}
	}

	return tx.Commit()
}

// LoadFields returns all state fields of a project ordered by write time.
func (db *DB) LoadFields(ctx context.Context, projectID, userID string) ([]models.StateField, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT section, key, value, is_list_item, updated_at
		FROM project_state_fields
		WHERE project_id = ? AND user_id = ?
		ORDER BY updated_at ASC, rowid ASC
	`, projectID, userID)
	if err != nil {
		return nil, fmt.Errorf("store: load fields: %w", err)
	}
	defer rows.Close()

	var out []models.StateField
	for rows.Next() {
		var (
			f  models.StateField
			ts string
		)
		if err := rows.Scan(&f.Section, &f.Key, &f.Value, &f.IsListItem, &ts); err != nil {
			return nil, fmt.Errorf("store: scan field: %w", err)
		}
		if f.UpdatedAt, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
