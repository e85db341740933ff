// Package models defines the domain types for noosphere.
package models

import "time"

// Project is the per-user container for state fields and entries.
type Project struct {
	ProjectID string    `json:"project_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// StateField is one fact of a project's living document.
type StateField struct {
	Section    string    `json:"section"`
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	IsListItem bool      `json:"is_list_item"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Delta is a single state mutation. When Add is set the delta appends a list
// item to Section; otherwise it upserts Key in Section with Value. Value is a
// pointer so that an absent value is told apart from an empty one.
type Delta struct {
	Section string  `json:"section"`
	Key     string  `json:"key,omitempty"`
	Value   *string `json:"value,omitempty"`
	Add     *string `json:"add,omitempty"`
}

// IsListAppend reports whether d appends a list item.
func (d Delta) IsListAppend() bool {
	return d.Add != nil
}

// Upsert returns a scalar delta.
func Upsert(section, key, value string) Delta {
	return Delta{Section: section, Key: key, Value: &value}
}

// Append returns a list-append delta.
func Append(section, value string) Delta {
	return Delta{Section: section, Add: &value}
}

// Entry types. Foundational entries record long-lived context such as the
// initial architecture; session entries record one working session.
const (
	EntryTypeSession      = "session"
	EntryTypeFoundational = "foundational"
)

// DefaultSourceTool is recorded when the writer does not name itself.
const DefaultSourceTool = "unknown"

// Entry is an immutable memory record.
type Entry struct {
	EntryID    string    `json:"entry_id"`
	ProjectID  string    `json:"project_id"`
	UserID     string    `json:"-"`
	Title      string    `json:"title"`
	Type       string    `json:"type"`
	SourceTool string    `json:"source_tool"`
	Tags       []string  `json:"tags"`
	Timestamp  time.Time `json:"timestamp"`
	Content    string    `json:"content"`
}

// SearchResult is one ranked search hit with a highlighted excerpt.
type SearchResult struct {
	EntryID    string    `json:"entry_id"`
	Title      string    `json:"title"`
	Type       string    `json:"type"`
	SourceTool string    `json:"source_tool"`
	Tags       []string  `json:"tags"`
	Snippet    string    `json:"snippet"`
	Timestamp  time.Time `json:"timestamp"`
}

// ProjectSummary is a row of the project listing.
type ProjectSummary struct {
	ProjectID    string    `json:"project_id"`
	Summary      string    `json:"summary"`
	LastActivity time.Time `json:"last_activity"`
	EntryCount   int       `json:"entry_count"`
}

// DocumentLine is one rendered line of a document section.
type DocumentLine struct {
	Key        string `json:"key,omitempty"`
	Value      string `json:"value"`
	IsListItem bool   `json:"is_list_item"`
}

// DocumentSection is an ordered group of lines under one heading.
type DocumentSection struct {
	Name  string         `json:"name"`
	Lines []DocumentLine `json:"lines"`
}

// Document is the canonical projection of a project's state fields.
type Document struct {
	ProjectID   string            `json:"project_id"`
	LastUpdated time.Time         `json:"last_updated"`
	Sections    []DocumentSection `json:"sections"`
}
