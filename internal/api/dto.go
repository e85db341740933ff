package api

import (
	"github.com/starford/noosphere/internal/markdown"
	"github.com/starford/noosphere/internal/memory"
	"github.com/starford/noosphere/internal/models"
)

// PushRequest is the request body for POST /projects/{projectID}/push. The
// project id comes from the path.
type PushRequest struct {
	Title       string            `json:"title,omitempty" example:"Switched storage to SQLite"`
	Type        string            `json:"type,omitempty" enums:"session,foundational" example:"session"`
	SourceTool  string            `json:"source_tool,omitempty" example:"cursor"`
	Tags        []string          `json:"tags,omitempty"`
	Sections    markdown.Sections `json:"sections,omitempty"`
	StateDeltas []models.Delta    `json:"state_deltas,omitempty"`
}

// PushResult is returned by a push (aliased from the domain layer).
type PushResult = memory.PushResult

// DeltasRequest is the request body for POST /projects/{projectID}/deltas.
type DeltasRequest struct {
	StateDeltas []models.Delta `json:"state_deltas" validate:"required"`
}

// CreateEntryRequest is the request body for POST /projects/{projectID}/entries.
// Sections may be a JSON object (key order kept) or an array of {heading, body}.
type CreateEntryRequest struct {
	Title      string            `json:"title" example:"Kickoff" validate:"required"`
	Type       string            `json:"type,omitempty" enums:"session,foundational" example:"foundational"`
	SourceTool string            `json:"source_tool,omitempty" example:"cursor"`
	Tags       []string          `json:"tags,omitempty"`
	Sections   markdown.Sections `json:"sections" validate:"required"`
}

// CreateEntryResponse is returned after an entry is created.
type CreateEntryResponse struct {
	EntryID string `json:"entry_id" example:"e_20260304_050607_1a2b3c4d" validate:"required"`
}

// ProjectListResponse wraps the project listing.
type ProjectListResponse struct {
	Projects []models.ProjectSummary `json:"projects" validate:"required"`
}

// EntryListResponse wraps recent entries of a project.
type EntryListResponse struct {
	Entries []models.Entry `json:"entries" validate:"required"`
	Total   int            `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []models.SearchResult `json:"results" validate:"required"`
}

// SectionResponse is a single section of an entry.
type SectionResponse struct {
	EntryID string `json:"entry_id" validate:"required"`
	Section string `json:"section" validate:"required"`
	Body    string `json:"body"`
}
