package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/noosphere/internal/apperr"
	"github.com/starford/noosphere/internal/entries"
	"github.com/starford/noosphere/internal/markdown"
	"github.com/starford/noosphere/internal/models"
	"github.com/starford/noosphere/internal/state"
)

// ProtocolComment closes every project view and reminds the reader to push
// their work back.
const ProtocolComment = `<!-- Noosphere protocol: When you complete significant work, make a
key decision, or end this session, call ` + "`push`" + ` with a summary including
what you did and what comes next. This enables other tools to pick up
where you left off. -->`

// PushRequest is a combined entry and state update. The entry is written
// only when both Title and Sections are given; otherwise the entry fields
// are ignored.
type PushRequest struct {
	ProjectID   string            `json:"project_id"`
	Title       string            `json:"title,omitempty"`
	Type        string            `json:"type,omitempty"`
	SourceTool  string            `json:"source_tool,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Sections    markdown.Sections `json:"sections,omitempty"`
	StateDeltas []models.Delta    `json:"state_deltas,omitempty"`
}

// PushResult reports what a push wrote.
type PushResult struct {
	EntryID     string `json:"entry_id,omitempty"`
	EntryStatus string `json:"entry_status,omitempty"`
	StateStatus string `json:"state_status,omitempty"`
	Status      string `json:"status,omitempty"`
	Message     string `json:"message,omitempty"`
}

func (r PushRequest) hasEntry() bool {
	return r.Title != "" && len(r.Sections) > 0
}

func (r PushRequest) draft() entries.Draft {
	return entries.Draft{
		Title:      r.Title,
		Sections:   r.Sections,
		Type:       r.Type,
		SourceTool: r.SourceTool,
		Tags:       r.Tags,
	}
}

// Validate checks the whole request so that nothing is written when any
// part of it is malformed.
func (r PushRequest) Validate() error {
	if err := validateProjectID(r.ProjectID); err != nil {
		return err
	}
	if r.hasEntry() {
		if err := r.draft().Validate(); err != nil {
			return apperr.Invalid(err)
		}
	}
	return state.ValidateDeltas(r.StateDeltas)
}

// Push ensures the project, then creates an entry and applies state deltas
// when they are present.
func (s *Service) Push(ctx context.Context, userID string, req PushRequest) (*PushResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.EnsureProject(ctx, req.ProjectID, userID); err != nil {
		return nil, err
	}

	res := &PushResult{}
	if req.hasEntry() {
		id, err := s.CreateEntry(ctx, req.ProjectID, userID, req.draft())
		if err != nil {
			return nil, err
		}
		res.EntryID = id
		res.EntryStatus = "created"
	}
	if len(req.StateDeltas) > 0 {
		if err := s.ApplyDeltas(ctx, req.ProjectID, userID, req.StateDeltas); err != nil {
			return nil, err
		}
		res.StateStatus = "updated"
	}

	if res.EntryID == "" && res.StateStatus == "" {
		return &PushResult{Status: "noop", Message: "No entry or state_deltas provided."}, nil
	}
	s.logger.Debug("push",
		slog.String("project_id", req.ProjectID),
		slog.String("entry_id", res.EntryID),
		slog.Int("deltas", len(req.StateDeltas)),
	)
	return res, nil
}

// Browse renders the project list when projectID is empty, otherwise the
// synthesized view of one project.
func (s *Service) Browse(ctx context.Context, userID, projectID string) (string, error) {
	if projectID == "" {
		return s.browseProjects(ctx, userID)
	}

	document, err := s.Reconstruct(ctx, projectID, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return fmt.Sprintf("Project %q not found. Use `push` to create it.\n\n%s", projectID, ProtocolComment), nil
	}
	if err != nil {
		return "", err
	}

	total, err := s.EntryCount(ctx, projectID, userID)
	if err != nil {
		return "", err
	}
	recent, err := s.RecentEntries(ctx, projectID, userID, s.recentLimit)
	if err != nil {
		return "", err
	}

	out := s.SynthesizeBrowse(document, recent)
	if total > len(recent) {
		out += fmt.Sprintf("\n*Showing %d of %d entries. Use `search` to find older entries.*", len(recent), total)
	}
	return out + "\n" + ProtocolComment, nil
}

func (s *Service) browseProjects(ctx context.Context, userID string) (string, error) {
	projects, err := s.ListProjects(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(projects) == 0 {
		return "No projects found. Use `push` with a project_id to create your first project.", nil
	}
	lines := make([]string, len(projects))
	for i, p := range projects {
		summary := ""
		if p.Summary != "" {
			summary = " — " + p.Summary
		}
		lines[i] = fmt.Sprintf("- **%s**%s\n  %d entries · last activity: %s",
			p.ProjectID, summary, p.EntryCount, p.LastActivity.UTC().Format(time.RFC3339))
	}
	return strings.Join(lines, "\n\n"), nil
}

// Read renders an entry with its frontmatter, or only the named section.
// Missing entries and sections produce a message rather than an error.
func (s *Service) Read(ctx context.Context, userID, entryID, section string) (string, error) {
	e, err := s.GetEntry(ctx, entryID, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return fmt.Sprintf("Entry %q not found.", entryID), nil
	}
	if err != nil {
		return "", err
	}

	if section != "" {
		body, ok := entries.ExtractSection(e.Content, section)
		if !ok {
			msg := fmt.Sprintf("Section %q not found in entry %q.", section, entryID)
			if headings := markdown.Headings(e.Content); len(headings) > 0 {
				msg += " Available sections: " + strings.Join(headings, ", ") + "."
			}
			return msg, nil
		}
		return "## " + section + "\n" + body, nil
	}
	return entries.Render(*e)
}
