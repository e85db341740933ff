// Package export writes projects as Markdown files: one STATE.md with the
// reconstructed document and one file per entry.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/starford/noosphere/internal/checksum"
	"github.com/starford/noosphere/internal/entries"
	"github.com/starford/noosphere/internal/models"
	"github.com/starford/noosphere/internal/storage"
)

// StateFile is the name of the exported document inside a project directory.
const StateFile = "STATE.md"

// Source is the read side of the memory service used by an export.
type Source interface {
	Reconstruct(ctx context.Context, projectID, userID string) (string, error)
	AllEntries(ctx context.Context, projectID, userID string) ([]models.Entry, error)
	ListProjects(ctx context.Context, userID string) ([]models.ProjectSummary, error)
}

// Report counts the files an export touched.
type Report struct {
	Projects  int `json:"projects"`
	Written   int `json:"written"`
	Unchanged int `json:"unchanged"`
	Removed   int `json:"removed"`
}

// Exporter copies projects from a Source into a storage.Provider.
type Exporter struct {
	src    Source
	dst    storage.Provider
	logger *slog.Logger
}

// New creates an Exporter.
func New(src Source, dst storage.Provider, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{src: src, dst: dst, logger: logger}
}

// All exports every project of userID.
func (e *Exporter) All(ctx context.Context, userID string) (Report, error) {
	var total Report
	projects, err := e.src.ListProjects(ctx, userID)
	if err != nil {
		return total, err
	}
	for _, p := range projects {
		r, err := e.Project(ctx, p.ProjectID, userID)
		if err != nil {
			return total, err
		}
		total.Projects++
		total.Written += r.Written
		total.Unchanged += r.Unchanged
		total.Removed += r.Removed
	}
	return total, nil
}

// Project exports one project. Files whose content is unchanged are not
// rewritten, and entry files without a matching entry are removed.
func (e *Exporter) Project(ctx context.Context, projectID, userID string) (Report, error) {
	report := Report{Projects: 1}

	existing, err := e.dst.List(projectID)
	if err != nil {
		return report, err
	}
	sums := make(map[string]string, len(existing))
	for _, f := range existing {
		sums[f.Path] = f.Checksum
	}

	keep := make(map[string]struct{})
	write := func(p string, content string) error {
		keep[p] = struct{}{}
		data := []byte(content)
		if sums[p] == checksum.Sum(data) {
			report.Unchanged++
			return nil
		}
		if err := e.dst.Write(p, data); err != nil {
			return err
		}
		report.Written++
		e.logger.Debug("export: wrote", slog.String("path", p))
		return nil
	}

	doc, err := e.src.Reconstruct(ctx, projectID, userID)
	if err != nil {
		return report, fmt.Errorf("export %s: %w", projectID, err)
	}
	if err := write(path.Join(projectID, StateFile), doc); err != nil {
		return report, err
	}

	list, err := e.src.AllEntries(ctx, projectID, userID)
	if err != nil {
		return report, err
	}
	for _, entry := range list {
		out, err := entries.Render(entry)
		if err != nil {
			return report, err
		}
		if err := write(path.Join(projectID, "entries", entry.EntryID+".md"), out); err != nil {
			return report, err
		}
	}

	entryDir := path.Join(projectID, "entries")
	for p := range sums {
		if _, ok := keep[p]; ok || path.Dir(p) != entryDir || !strings.HasPrefix(path.Base(p), "e_") {
			continue
		}
		if err := e.dst.Delete(p); err != nil {
			return report, err
		}
		report.Removed++
		e.logger.Debug("export: removed", slog.String("path", p))
	}

	e.logger.Info("export: project done",
		slog.String("project_id", projectID),
		slog.Int("written", report.Written),
		slog.Int("unchanged", report.Unchanged),
		slog.Int("removed", report.Removed),
	)
	return report, nil
}
