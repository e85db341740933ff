// Package entries creates, reads and searches immutable memory entries.
package entries

import (
	"context"
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/noosphere/internal/apperr"
	"github.com/starford/noosphere/internal/markdown"
	"github.com/starford/noosphere/internal/models"
	"github.com/starford/noosphere/internal/store"
)

// Store is the entry half of the memory model.
type Store struct {
	db  store.Store
	now func() time.Time
}

// New creates an entry Store over db. now may be nil.
func New(db store.Store, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{db: db, now: now}
}

// Draft is the caller-supplied part of a new entry. An empty Type means
// models.EntryTypeSession and an empty SourceTool means
// models.DefaultSourceTool.
type Draft struct {
	Title      string
	Sections   markdown.Sections
	Type       string
	SourceTool string
	Tags       []string
}

var errEmptyHeading = errors.New("heading must not be empty")

func validateSection(value any) error {
	s, _ := value.(markdown.Section)
	if strings.TrimSpace(s.Heading) == "" {
		return errEmptyHeading
	}
	if strings.ContainsAny(s.Heading, "\r\n") {
		return errors.New("heading must be a single line")
	}
	return nil
}

// Validate checks a draft without touching storage.
func (d Draft) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Title, validation.Required),
		validation.Field(&d.Sections, validation.Required, validation.Each(validation.By(validateSection))),
		validation.Field(&d.Type, validation.In(models.EntryTypeSession, models.EntryTypeFoundational)),
		validation.Field(&d.Tags, validation.Each(validation.Required)),
	)
}

// NewID returns a time-prefixed entry id with a random suffix.
func NewID(t time.Time) string {
	u := uuid.New()
	return t.UTC().Format("e_20060102_150405_") + strings.ReplaceAll(u.String(), "-", "")[:8]
}

// Create stores a new entry built from d and returns its id.
func (s *Store) Create(ctx context.Context, projectID, userID string, d Draft) (string, error) {
	if projectID == "" {
		return "", apperr.Invalidf("project_id: cannot be blank")
	}
	if err := d.Validate(); err != nil {
		return "", apperr.Invalid(err)
	}

	ts := s.now().UTC()
	e := models.Entry{
		EntryID:    NewID(ts),
		ProjectID:  projectID,
		UserID:     userID,
		Title:      d.Title,
		Type:       d.Type,
		SourceTool: d.SourceTool,
		Tags:       d.Tags,
		Timestamp:  ts,
		Content:    d.Sections.Render(),
	}
	if e.Type == "" {
		e.Type = models.EntryTypeSession
	}
	if e.SourceTool == "" {
		e.SourceTool = models.DefaultSourceTool
	}
	if err := s.db.InsertEntry(ctx, e); err != nil {
		return "", err
	}
	return e.EntryID, nil
}

// Get returns the entry when it belongs to userID, otherwise apperr.ErrNotFound.
func (s *Store) Get(ctx context.Context, entryID, userID string) (*models.Entry, error) {
	return s.db.GetEntry(ctx, entryID, userID)
}

// Recent returns at most limit entries, newest first.
func (s *Store) Recent(ctx context.Context, projectID, userID string, limit int) ([]models.Entry, error) {
	return s.db.RecentEntries(ctx, projectID, userID, limit)
}

// Count returns the number of entries in a project.
func (s *Store) Count(ctx context.Context, projectID, userID string) (int, error) {
	return s.db.CountEntries(ctx, projectID, userID)
}

// All returns every entry of a project, oldest first.
func (s *Store) All(ctx context.Context, projectID, userID string) ([]models.Entry, error) {
	return s.db.AllEntries(ctx, projectID, userID)
}

// Search matches any of keywords against entry titles and bodies. Results
// are ranked best first and capped at store.MaxSearchResults. No keywords
// means no results.
func (s *Store) Search(ctx context.Context, projectID, userID string, keywords []string) ([]models.SearchResult, error) {
	if len(keywords) == 0 {
		return []models.SearchResult{}, nil
	}
	res, err := s.db.SearchEntries(ctx, projectID, userID, keywords, store.MaxSearchResults)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = []models.SearchResult{}
	}
	return res, nil
}

// ExtractSection returns the body of the named section of an entry body.
func ExtractSection(content, name string) (string, bool) {
	return markdown.ExtractSection(content, name)
}

type frontmatter struct {
	EntryID    string   `yaml:"entry_id"`
	ProjectID  string   `yaml:"project_id"`
	Title      string   `yaml:"title"`
	SourceTool string   `yaml:"source_tool"`
	Timestamp  string   `yaml:"timestamp"`
	Tags       []string `yaml:"tags,flow"`
	Type       string   `yaml:"type"`
}

// Render formats an entry as Markdown with a YAML frontmatter block.
func Render(e models.Entry) (string, error) {
	tags := e.Tags
	if tags == nil {
		tags = []string{}
	}
	return markdown.WithFrontmatter(frontmatter{
		EntryID:    e.EntryID,
		ProjectID:  e.ProjectID,
		Title:      e.Title,
		SourceTool: e.SourceTool,
		Timestamp:  e.Timestamp.UTC().Format(time.RFC3339Nano),
		Tags:       tags,
		Type:       e.Type,
	}, e.Content)
}
