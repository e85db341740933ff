package markdown

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/noosphere/internal/models"
)

// RenderDocument renders a projected document: a frontmatter preamble with
// the project id and last update, then one "## Section" block per section.
func RenderDocument(doc models.Document) string {
	lines := []string{
		"---",
		"project_id: " + doc.ProjectID,
		"updated: " + doc.LastUpdated.UTC().Format(time.RFC3339),
		"---",
		"",
	}
	for _, sec := range doc.Sections {
		lines = append(lines, "## "+sec.Name)
		for _, l := range sec.Lines {
			if l.IsListItem {
				lines = append(lines, "- "+l.Value)
			} else {
				lines = append(lines, "- "+l.Key+": "+l.Value)
			}
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// WithFrontmatter prefixes body with meta encoded as a YAML frontmatter block.
func WithFrontmatter(meta any, body string) (string, error) {
	fm, err := yaml.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("markdown: encode frontmatter: %w", err)
	}
	var b strings.Builder
	b.WriteString("---\n")
	b.Write(fm)
	b.WriteString("---\n\n")
	b.WriteString(body)
	return b.String(), nil
}
