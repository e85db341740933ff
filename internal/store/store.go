package store

import (
	"context"

	"github.com/starford/noosphere/internal/models"
)

// Store defines the persistence operations used by the memory engine.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type Store interface {
	EnsureProject(ctx context.Context, projectID, userID string) error
	GetProject(ctx context.Context, projectID, userID string) (*models.Project, error)
	ListProjects(ctx context.Context, userID string) ([]models.ProjectSummary, error)
	EnsureUser(ctx context.Context, userID string) error

	UpsertFields(ctx context.Context, projectID, userID string, fields []models.StateField) error
	LoadFields(ctx context.Context, projectID, userID string) ([]models.StateField, error)

	InsertEntry(ctx context.Context, e models.Entry) error
	GetEntry(ctx context.Context, entryID, userID string) (*models.Entry, error)
	RecentEntries(ctx context.Context, projectID, userID string, limit int) ([]models.Entry, error)
	AllEntries(ctx context.Context, projectID, userID string) ([]models.Entry, error)
	CountEntries(ctx context.Context, projectID, userID string) (int, error)
	SearchEntries(ctx context.Context, projectID, userID string, keywords []string, limit int) ([]models.SearchResult, error)

	Ping(ctx context.Context) error
	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)
