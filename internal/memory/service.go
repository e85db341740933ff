// Package memory is the facade every transport uses: it composes the state
// projector, the entry store and the synthesizer, and records metrics and
// change events around them.
package memory

import (
	"context"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/noosphere/internal/apperr"
	"github.com/starford/noosphere/internal/classify"
	"github.com/starford/noosphere/internal/entries"
	"github.com/starford/noosphere/internal/markdown"
	"github.com/starford/noosphere/internal/metrics"
	"github.com/starford/noosphere/internal/models"
	"github.com/starford/noosphere/internal/sse"
	"github.com/starford/noosphere/internal/state"
	"github.com/starford/noosphere/internal/store"
	"github.com/starford/noosphere/internal/synthesis"
)

// DefaultRecentLimit is the number of entries Browse synthesizes.
const DefaultRecentLimit = 10

const maxProjectIDLength = 256

// Notifier receives change events after successful writes.
type Notifier interface {
	PublishMemoryEvent(kind, userID, projectID, entryID string)
}

// Service coordinates the projector, entry store and synthesizer.
type Service struct {
	db          store.Store
	state       *state.Projector
	entries     *entries.Store
	synth       *synthesis.Synthesizer
	classifier  *classify.Classifier
	notifier    Notifier
	logger      *slog.Logger
	now         func() time.Time
	recentLimit int
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier publishes change events to n.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClassifier sets the classifier used by Browse.
func WithClassifier(c *classify.Classifier) Option {
	return func(s *Service) { s.classifier = c }
}

// WithClock sets the time source for generated ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRecentLimit sets how many entries Browse synthesizes.
func WithRecentLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.recentLimit = n
		}
	}
}

// NewService creates a memory service over db.
func NewService(db store.Store, opts ...Option) *Service {
	s := &Service{
		db:          db,
		logger:      slog.Default(),
		now:         time.Now,
		recentLimit: DefaultRecentLimit,
	}
	for _, o := range opts {
		o(s)
	}
	if s.classifier == nil {
		s.classifier = classify.Default()
	}
	s.state = state.NewProjector(db, s.now)
	s.entries = entries.New(db, s.now)
	s.synth = synthesis.New(s.classifier, synthesis.WithObserver(func(c classify.Class) {
		metrics.IncClassified(string(c))
	}))
	return s
}

func validateProjectID(projectID string) error {
	err := validation.Validate(projectID, validation.Required, validation.Length(1, maxProjectIDLength))
	if err != nil {
		return apperr.Invalidf("project_id: %v", err)
	}
	return nil
}

func (s *Service) notify(kind, userID, projectID, entryID string) {
	if s.notifier != nil {
		s.notifier.PublishMemoryEvent(kind, userID, projectID, entryID)
	}
}

// EnsureProject creates the project if needed.
func (s *Service) EnsureProject(ctx context.Context, projectID, userID string) (err error) {
	defer func(start time.Time) { metrics.ObserveOperation("ensure_project", start, err) }(time.Now())
	if err := validateProjectID(projectID); err != nil {
		return err
	}
	return s.state.EnsureProject(ctx, projectID, userID)
}

// ApplyDeltas applies deltas atomically.
func (s *Service) ApplyDeltas(ctx context.Context, projectID, userID string, deltas []models.Delta) (err error) {
	defer func(start time.Time) { metrics.ObserveOperation("apply_deltas", start, err) }(time.Now())
	if err := validateProjectID(projectID); err != nil {
		return err
	}
	if err := s.state.ApplyDeltas(ctx, projectID, userID, deltas); err != nil {
		return err
	}
	if len(deltas) > 0 {
		s.recordDeltas(deltas)
		s.notify(sse.StateUpdated, userID, projectID, "")
	}
	return nil
}

func (s *Service) recordDeltas(deltas []models.Delta) {
	var scalar, list int
	for _, d := range deltas {
		if d.IsListAppend() {
			list++
		} else {
			scalar++
		}
	}
	metrics.AddDeltas(scalar, list)
}

// Document returns the structured projection of a project's state.
func (s *Service) Document(ctx context.Context, projectID, userID string) (doc *models.Document, err error) {
	defer func(start time.Time) { metrics.ObserveOperation("reconstruct", start, err) }(time.Now())
	return s.state.Reconstruct(ctx, projectID, userID)
}

// Reconstruct returns the rendered document, or apperr.ErrNotFound.
func (s *Service) Reconstruct(ctx context.Context, projectID, userID string) (string, error) {
	doc, err := s.Document(ctx, projectID, userID)
	if err != nil {
		return "", err
	}
	return markdown.RenderDocument(*doc), nil
}

// ListProjects returns userID's projects, most recent activity first.
func (s *Service) ListProjects(ctx context.Context, userID string) (out []models.ProjectSummary, err error) {
	defer func(start time.Time) { metrics.ObserveOperation("list_projects", start, err) }(time.Now())
	return s.state.ListProjects(ctx, userID)
}

// CreateEntry stores a new entry and returns its id.
func (s *Service) CreateEntry(ctx context.Context, projectID, userID string, d entries.Draft) (id string, err error) {
	defer func(start time.Time) { metrics.ObserveOperation("create_entry", start, err) }(time.Now())
	if err := validateProjectID(projectID); err != nil {
		return "", err
	}
	id, err = s.entries.Create(ctx, projectID, userID, d)
	if err != nil {
		return "", err
	}
	s.notify(sse.EntryCreated, userID, projectID, id)
	return id, nil
}

// GetEntry returns an entry owned by userID.
func (s *Service) GetEntry(ctx context.Context, entryID, userID string) (e *models.Entry, err error) {
	defer func(start time.Time) { metrics.ObserveOperation("get_entry", start, err) }(time.Now())
	return s.entries.Get(ctx, entryID, userID)
}

// RecentEntries returns at most limit entries, newest first.
func (s *Service) RecentEntries(ctx context.Context, projectID, userID string, limit int) (out []models.Entry, err error) {
	defer func(start time.Time) { metrics.ObserveOperation("recent_entries", start, err) }(time.Now())
	return s.entries.Recent(ctx, projectID, userID, limit)
}

// AllEntries returns every entry of a project, oldest first.
func (s *Service) AllEntries(ctx context.Context, projectID, userID string) ([]models.Entry, error) {
	return s.entries.All(ctx, projectID, userID)
}

// EntryCount returns the number of entries in a project.
func (s *Service) EntryCount(ctx context.Context, projectID, userID string) (int, error) {
	return s.entries.Count(ctx, projectID, userID)
}

// SearchEntries runs a keyword search scoped to one project and user.
func (s *Service) SearchEntries(ctx context.Context, projectID, userID string, keywords []string) (out []models.SearchResult, err error) {
	defer func(start time.Time) { metrics.ObserveOperation("search_entries", start, err) }(time.Now())
	out, err = s.entries.Search(ctx, projectID, userID, keywords)
	if err == nil {
		metrics.ObserveSearchResults(len(out))
	}
	return out, err
}

// SynthesizeBrowse renders document with entries grouped by class.
func (s *Service) SynthesizeBrowse(document string, list []models.Entry) string {
	return s.synth.Browse(document, list)
}

// Ping checks the storage connection.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
