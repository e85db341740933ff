// Package synthesis renders a project's document together with its recent
// entries grouped by content class.
package synthesis

import (
	"strings"

	"github.com/starford/noosphere/internal/classify"
	"github.com/starford/noosphere/internal/markdown"
	"github.com/starford/noosphere/internal/models"
)

// NoEntries replaces the grouped sections when a project has no entries.
const NoEntries = "*No entries yet. Save something to record your first entry.*"

// groups is the render order of the class sections.
var groups = []struct {
	class   classify.Class
	heading string
}{
	{classify.Decision, "Key Decisions"},
	{classify.Active, "Recent Activity"},
	{classify.Speculative, "Under Consideration"},
	{classify.Informational, "Other Entries"},
}

// Synthesizer composes documents and classified entries.
type Synthesizer struct {
	classifier *classify.Classifier
	observe    func(classify.Class)
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithObserver registers fn to be called once per classified entry.
func WithObserver(fn func(classify.Class)) Option {
	return func(s *Synthesizer) { s.observe = fn }
}

// New creates a Synthesizer. A nil classifier uses the default lexicon.
func New(c *classify.Classifier, opts ...Option) *Synthesizer {
	if c == nil {
		c = classify.Default()
	}
	s := &Synthesizer{classifier: c}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Browse renders document followed by one section per non-empty class.
// Entries keep their input order within a class. Only the entry body is
// classified; titles are short labels and would skew the counts.
func (s *Synthesizer) Browse(document string, entries []models.Entry) string {
	parts := []string{document}
	if len(entries) == 0 {
		parts = append(parts, "\n"+NoEntries)
		return strings.Join(parts, "\n")
	}

	byClass := make(map[classify.Class][]string, len(groups))
	for _, e := range entries {
		class := s.classifier.Classify(e.Content)
		if s.observe != nil {
			s.observe(class)
		}
		byClass[class] = append(byClass[class], formatEntry(e))
	}

	for _, g := range groups {
		lines := byClass[g.class]
		if len(lines) == 0 {
			continue
		}
		parts = append(parts, "## "+g.heading+"\n")
		parts = append(parts, lines...)
		parts = append(parts, "")
	}
	return strings.Join(parts, "\n")
}

func formatEntry(e models.Entry) string {
	meta := e.Timestamp.UTC().Format("Jan 2, 2006")
	if e.Type != "" {
		meta = e.Type + " · " + meta
	}
	line := "- **" + e.Title + "** (*" + meta + "*)"
	if lead := markdown.Lead(e.Content); lead != "" {
		line += " — " + lead
	}
	return line
}
