// Package state applies state deltas to a project's living document and
// projects the stored fields back into a canonical document.
package state

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/noosphere/internal/apperr"
	"github.com/starford/noosphere/internal/models"
	"github.com/starford/noosphere/internal/store"
)

// CanonicalSections is the fixed order in which well-known sections render.
// Other sections follow in alphabetical order.
var CanonicalSections = []string{
	"Summary",
	"Current Architecture",
	"Active Decisions",
	"Current State",
	"Recent Activity",
	"Continuation Hints",
}

// SummarySection is the section whose value appears in project listings.
const SummarySection = "Summary"

// Projector owns the state-field half of the memory model.
type Projector struct {
	store store.Store
	keys  *KeyGen
	now   func() time.Time

	// mu guards last, the newest updated_at handed out so far.
	mu   sync.Mutex
	last time.Time
}

// NewProjector creates a Projector over s. now may be nil.
func NewProjector(s store.Store, now func() time.Time) *Projector {
	if now == nil {
		now = time.Now
	}
	return &Projector{store: s, keys: &KeyGen{}, now: now}
}

// ValidateDelta checks a single delta without touching storage.
func ValidateDelta(d models.Delta) error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Section, validation.Required),
		validation.Field(&d.Key,
			validation.When(!d.IsListAppend(), validation.Required.Error("is required unless add is set")),
			validation.When(d.IsListAppend(), validation.Empty.Error("must be empty when add is set")),
		),
		validation.Field(&d.Value,
			validation.When(!d.IsListAppend(), validation.NotNil.Error("is required unless add is set")),
			validation.When(d.IsListAppend(), validation.Nil.Error("must be empty when add is set")),
		),
	)
}

// ValidateDeltas validates a batch, reporting the first bad delta's index.
func ValidateDeltas(deltas []models.Delta) error {
	for i, d := range deltas {
		if err := ValidateDelta(d); err != nil {
			return apperr.Invalid(fmt.Errorf("state_deltas[%d]: %w", i, err))
		}
	}
	return nil
}

// EnsureProject creates the project if it does not exist yet.
func (p *Projector) EnsureProject(ctx context.Context, projectID, userID string) error {
	return p.store.EnsureProject(ctx, projectID, userID)
}

// stamps reserves n consecutive nanosecond timestamps that are strictly after
// every timestamp reserved before, even when the clock stalls or steps back.
func (p *Projector) stamps(n int) time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	base := p.now().UTC()
	if !base.After(p.last) {
		base = p.last.Add(time.Nanosecond)
	}
	p.last = base.Add(time.Duration(n-1) * time.Nanosecond)
	return base
}

// ApplyDeltas applies deltas atomically and in order. Every delta gets a
// distinct updated_at, increasing within the batch and across batches, so
// that list items keep their insertion order.
func (p *Projector) ApplyDeltas(ctx context.Context, projectID, userID string, deltas []models.Delta) error {
	if err := ValidateDeltas(deltas); err != nil {
		return err
	}
	if len(deltas) == 0 {
		return nil
	}

	base := p.stamps(len(deltas))
	fields := make([]models.StateField, len(deltas))
	for i, d := range deltas {
		ts := base.Add(time.Duration(i) * time.Nanosecond)
		if d.IsListAppend() {
			fields[i] = models.StateField{
				Section:    d.Section,
				Key:        p.keys.Next(ts),
				Value:      *d.Add,
				IsListItem: true,
				UpdatedAt:  ts,
			}
			continue
		}
		fields[i] = models.StateField{
			Section:   d.Section,
			Key:       d.Key,
			Value:     *d.Value,
			UpdatedAt: ts,
		}
	}
	return p.store.UpsertFields(ctx, projectID, userID, fields)
}

// Reconstruct loads the project's fields and projects them into a Document.
// It returns apperr.ErrNotFound when the project does not exist for userID.
func (p *Projector) Reconstruct(ctx context.Context, projectID, userID string) (*models.Document, error) {
	project, err := p.store.GetProject(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	fields, err := p.store.LoadFields(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	doc := Project(*project, fields)
	return &doc, nil
}

// ListProjects returns userID's projects, most recent activity first.
func (p *Projector) ListProjects(ctx context.Context, userID string) ([]models.ProjectSummary, error) {
	return p.store.ListProjects(ctx, userID)
}

// Project is the pure projection from field rows to a Document. Fields are
// grouped by section and ordered by updated_at within a section; sections
// follow CanonicalSections, then the rest alphabetically. Empty sections are
// omitted.
func Project(project models.Project, fields []models.StateField) models.Document {
	sorted := make([]models.StateField, len(fields))
	copy(sorted, fields)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UpdatedAt.Before(sorted[j].UpdatedAt)
	})

	doc := models.Document{ProjectID: project.ProjectID, LastUpdated: project.CreatedAt}
	groups := make(map[string][]models.DocumentLine)
	for i, f := range sorted {
		if i == 0 || f.UpdatedAt.After(doc.LastUpdated) {
			doc.LastUpdated = f.UpdatedAt
		}
		line := models.DocumentLine{Value: f.Value, IsListItem: f.IsListItem}
		if !f.IsListItem {
			line.Key = f.Key
		}
		groups[f.Section] = append(groups[f.Section], line)
	}

	for _, name := range CanonicalSections {
		if lines := groups[name]; len(lines) > 0 {
			doc.Sections = append(doc.Sections, models.DocumentSection{Name: name, Lines: lines})
		}
		delete(groups, name)
	}

	rest := make([]string, 0, len(groups))
	for name := range groups {
		rest = append(rest, name)
	}
	sort.Strings(rest)
	for _, name := range rest {
		doc.Sections = append(doc.Sections, models.DocumentSection{Name: name, Lines: groups[name]})
	}
	return doc
}
