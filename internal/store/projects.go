package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/noosphere/internal/apperr"
	"github.com/starford/noosphere/internal/models"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const ensureProjectSQL = `
	INSERT INTO projects (project_id, user_id, created_at)
	VALUES (?, ?, ?)
	ON CONFLICT(project_id, user_id) DO NOTHING
`

func (db *DB) ensureProject(ctx context.Context, ex execer, projectID, userID string) error {
	if _, err := ex.ExecContext(ctx, ensureProjectSQL, projectID, userID, formatTime(db.now())); err != nil {
		return fmt.Errorf("store: ensure project: %w", err)
	}
	return nil
}

// EnsureProject creates the project if it does not exist. Repeated calls are no-ops.
func (db *DB) EnsureProject(ctx context.Context, projectID, userID string) error {
	return db.ensureProject(ctx, db.conn, projectID, userID)
}

// GetProject returns the project owned by userID, or apperr.ErrNotFound.
func (db *DB) GetProject(ctx context.Context, projectID, userID string) (*models.Project, error) {
	var created string
	err := db.conn.QueryRowContext(ctx,
		`SELECT created_at FROM projects WHERE project_id = ? AND user_id = ?`,
		projectID, userID).Scan(&created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get project: %w", err)
	}
	ts, err := parseTime(created)
	if err != nil {
		return nil, err
	}
	return &models.Project{ProjectID: projectID, UserID: userID, CreatedAt: ts}, nil
}

// ListProjects returns every project of userID with its entry count, latest
// activity and Summary value, most recent activity first.
func (db *DB) ListProjects(ctx context.Context, userID string) ([]models.ProjectSummary, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT
			p.project_id,
			p.created_at,
			COUNT(e.entry_id),
			MAX(e.timestamp),
			(SELECT f.value FROM project_state_fields f
			 WHERE f.project_id = p.project_id AND f.user_id = p.user_id AND f.section = 'Summary'
			 ORDER BY f.updated_at DESC, f.rowid DESC
			 LIMIT 1)
		FROM projects p
		LEFT JOIN entries e ON e.project_id = p.project_id AND e.user_id = p.user_id
		WHERE p.user_id = ?
		GROUP BY p.project_id, p.user_id, p.created_at
		ORDER BY COALESCE(MAX(e.timestamp), p.created_at) DESC, p.project_id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list projects: %w", err)
	}
	defer rows.Close()

	var out []models.ProjectSummary
	for rows.Next() {
		var (
			ps       models.ProjectSummary
			created  string
			lastSeen sql.NullString
			summary  sql.NullString
		)
		if err := rows.Scan(&ps.ProjectID, &created, &ps.EntryCount, &lastSeen, &summary); err != nil {
			return nil, fmt.Errorf("store: scan project: %w", err)
		}
		activity := created
		if lastSeen.Valid {
			activity = lastSeen.String
		}
		if ps.LastActivity, err = parseTime(activity); err != nil {
			return nil, err
		}
		ps.Summary = summary.String
		out = append(out, ps)
	}
	return out, rows.Err()
}

// EnsureUser records userID, refreshing last_seen when it already exists.
func (db *DB) EnsureUser(ctx context.Context, userID string) error {
	now := formatTime(db.now())
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO users (user_id, created_at, last_seen)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET last_seen = excluded.last_seen
	`, userID, now, now)
	if err != nil {
		return fmt.Errorf("store: ensure user: %w", err)
	}
	return nil
}
