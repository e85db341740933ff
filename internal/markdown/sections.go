// Package markdown serializes and parses the light heading convention used
// for entries and the project document.
package markdown

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Section is one "## Heading" block of an entry body.
type Section struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// Sections is an ordered list of sections. It decodes from either a JSON
// array of {heading, body} objects or a JSON object of heading -> body, in
// which case the object's key order is kept.
type Sections []Section

// UnmarshalJSON implements json.Unmarshaler.
func (s *Sections) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*s = nil
		return nil
	}
	if trimmed[0] == '[' {
		var list []Section
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return err
		}
		*s = list
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("markdown: sections must be an object or array")
	}
	var out Sections
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		heading, _ := tok.(string)
		var body string
		if err := dec.Decode(&body); err != nil {
			return fmt.Errorf("markdown: section %q: %w", heading, err)
		}
		out = append(out, Section{Heading: heading, Body: body})
	}
	*s = out
	return nil
}

// FromMap converts an unordered heading -> body map, sorting headings.
func FromMap(m map[string]string) Sections {
	headings := make([]string, 0, len(m))
	for h := range m {
		headings = append(headings, h)
	}
	sort.Strings(headings)
	out := make(Sections, len(headings))
	for i, h := range headings {
		out[i] = Section{Heading: h, Body: m[h]}
	}
	return out
}

// Render joins sections as "## Heading\nbody" blocks separated by blank lines.
func (s Sections) Render() string {
	blocks := make([]string, len(s))
	for i, sec := range s {
		blocks[i] = "## " + sec.Heading + "\n" + sec.Body
	}
	return strings.Join(blocks, "\n\n")
}

// ExtractSection returns the trimmed body under the first "## name" heading,
// up to the next "## " heading or the end of content. The name is matched
// literally and case-sensitively.
func ExtractSection(content, name string) (string, bool) {
	re, err := regexp.Compile(`(?:^|\n)## ` + regexp.QuoteMeta(name) + `\n([\s\S]*?)(?:\n## |\z)`)
	if err != nil {
		return "", false
	}
	m := re.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// Headings lists the "## " headings of content in order.
func Headings(content string) []string {
	var out []string
	for _, line := range strings.Split(content, "\n") {
		if h, ok := strings.CutPrefix(line, "## "); ok {
			out = append(out, strings.TrimSpace(h))
		}
	}
	return out
}

const (
	leadLines    = 3
	leadMaxRunes = 200
)

// Lead returns the first few non-heading, non-blank lines of content joined
// into one line and truncated with an ellipsis.
func Lead(content string) string {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == leadLines {
			break
		}
	}
	lead := strings.TrimSpace(strings.Join(lines, " "))
	runes := []rune(lead)
	if len(runes) > leadMaxRunes {
		return string(runes[:leadMaxRunes-3]) + "..."
	}
	return lead
}
