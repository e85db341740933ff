package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/noosphere/internal/apperr"
	"github.com/starford/noosphere/internal/auth"
	"github.com/starford/noosphere/internal/checksum"
	"github.com/starford/noosphere/internal/entries"
	"github.com/starford/noosphere/internal/markdown"
	"github.com/starford/noosphere/internal/memory"
	"github.com/starford/noosphere/internal/models"
)

const (
	maxBodyBytes        = 10 << 20
	defaultEntriesLimit = 20
	maxEntriesLimit     = 200
)

// Handler holds API route handlers.
type Handler struct {
	svc *memory.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *memory.Service) *Handler {
	return &Handler{svc: svc}
}

// urlParam returns a path parameter, decoding escaped slashes so that
// project ids like "acme/api" can be sent as acme%2Fapi.
func urlParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func userID(r *http.Request) string {
	return auth.UserOr(r.Context(), auth.DefaultUser)
}

func wantsMarkdown(r *http.Request) bool {
	return r.URL.Query().Get("format") == "markdown" ||
		strings.Contains(r.Header.Get("Accept"), "text/markdown")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// ListProjects handles GET /api/projects.
//
//	@Summary		List the caller's projects, most recent activity first
//	@Tags			projects
//	@Produce		json
//	@Success		200	{object}	ProjectListResponse
//	@Security		BearerAuth
//	@Router			/projects [get]
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.svc.ListProjects(r.Context(), userID(r))
	if err != nil {
		writeError(w, "list projects", err)
		return
	}
	if projects == nil {
		projects = []models.ProjectSummary{}
	}
	writeJSON(w, http.StatusOK, ProjectListResponse{Projects: projects})
}

// GetDocument handles GET /api/projects/{projectID}/document.
//
//	@Summary		Reconstruct a project's state document
//	@Tags			projects
//	@Produce		json,text/markdown
//	@Param			projectID		path		string	true	"Project id (slashes escaped)"
//	@Param			format			query		string	false	"Response format"	Enums(json, markdown)
//	@Param			If-None-Match	header		string	false	"ETag of a cached copy"
//	@Success		200				{object}	models.Document
//	@Success		304				"Not modified"
//	@Failure		404				{object}	errResponse
//	@Security		BearerAuth
//	@Router			/projects/{projectID}/document [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.Document(r.Context(), urlParam(r, "projectID"), userID(r))
	if err != nil {
		writeError(w, "reconstruct", err)
		return
	}
	rendered := markdown.RenderDocument(*doc)
	etag := checksum.ETag([]byte(rendered))
	w.Header().Set("ETag", etag)
	if checksum.Matches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if wantsMarkdown(r) {
		writeMarkdown(w, http.StatusOK, rendered)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Browse handles GET /api/projects/{projectID}/browse.
//
//	@Summary		Synthesized view: document plus classified recent entries
//	@Tags			projects
//	@Produce		text/markdown
//	@Param			projectID	path	string	true	"Project id (slashes escaped)"
//	@Success		200			{string}	string
//	@Security		BearerAuth
//	@Router			/projects/{projectID}/browse [get]
func (h *Handler) Browse(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Browse(r.Context(), userID(r), urlParam(r, "projectID"))
	if err != nil {
		writeError(w, "browse", err)
		return
	}
	writeMarkdown(w, http.StatusOK, out)
}

// Push handles POST /api/projects/{projectID}/push.
//
//	@Summary		Record an entry, state deltas, or both
//	@Tags			projects
//	@Accept			json
//	@Produce		json
//	@Param			projectID	path		string		true	"Project id (slashes escaped)"
//	@Param			body		body		PushRequest	true	"Entry and/or deltas"
//	@Success		200			{object}	PushResult
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/projects/{projectID}/push [post]
func (h *Handler) Push(w http.ResponseWriter, r *http.Request) {
	var req PushRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.svc.Push(r.Context(), userID(r), memory.PushRequest{
		ProjectID:   urlParam(r, "projectID"),
		Title:       req.Title,
		Type:        req.Type,
		SourceTool:  req.SourceTool,
		Tags:        req.Tags,
		Sections:    req.Sections,
		StateDeltas: req.StateDeltas,
	})
	if err != nil {
		writeError(w, "push", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ApplyDeltas handles POST /api/projects/{projectID}/deltas.
//
//	@Summary		Apply state deltas atomically
//	@Tags			projects
//	@Accept			json
//	@Param			projectID	path	string			true	"Project id (slashes escaped)"
//	@Param			body		body	DeltasRequest	true	"Ordered deltas"
//	@Success		204			"Applied"
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/projects/{projectID}/deltas [post]
func (h *Handler) ApplyDeltas(w http.ResponseWriter, r *http.Request) {
	var req DeltasRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.svc.ApplyDeltas(r.Context(), urlParam(r, "projectID"), userID(r), req.StateDeltas); err != nil {
		writeError(w, "apply deltas", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListEntries handles GET /api/projects/{projectID}/entries.
//
//	@Summary		Most recent entries of a project
//	@Tags			entries
//	@Produce		json
//	@Param			projectID	path		string	true	"Project id (slashes escaped)"
//	@Param			limit		query		int		false	"Max entries (default 20, max 200)"
//	@Success		200			{object}	EntryListResponse
//	@Security		BearerAuth
//	@Router			/projects/{projectID}/entries [get]
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	projectID, uid := urlParam(r, "projectID"), userID(r)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = defaultEntriesLimit
	}
	limit = min(limit, maxEntriesLimit)

	list, err := h.svc.RecentEntries(r.Context(), projectID, uid, limit)
	if err != nil {
		writeError(w, "recent entries", err)
		return
	}
	total, err := h.svc.EntryCount(r.Context(), projectID, uid)
	if err != nil {
		writeError(w, "count entries", err)
		return
	}
	if list == nil {
		list = []models.Entry{}
	}
	writeJSON(w, http.StatusOK, EntryListResponse{Entries: list, Total: total})
}

// CreateEntry handles POST /api/projects/{projectID}/entries.
//
//	@Summary		Create an immutable entry
//	@Tags			entries
//	@Accept			json
//	@Produce		json
//	@Param			projectID	path		string				true	"Project id (slashes escaped)"
//	@Param			body		body		CreateEntryRequest	true	"Entry"
//	@Success		201			{object}	CreateEntryResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/projects/{projectID}/entries [post]
func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req CreateEntryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := h.svc.CreateEntry(r.Context(), urlParam(r, "projectID"), userID(r), entries.Draft{
		Title:      req.Title,
		Sections:   req.Sections,
		Type:       req.Type,
		SourceTool: req.SourceTool,
		Tags:       req.Tags,
	})
	if err != nil {
		writeError(w, "create entry", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateEntryResponse{EntryID: id})
}

// Search handles GET /api/projects/{projectID}/search.
//
//	@Summary		Keyword search over a project's entries
//	@Tags			entries
//	@Produce		json
//	@Param			projectID	path		string		true	"Project id (slashes escaped)"
//	@Param			q			query		[]string	true	"Keywords; repeat the parameter for more than one"
//	@Success		200			{object}	SearchResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/projects/{projectID}/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var keywords []string
	for _, q := range r.URL.Query()["q"] {
		if q = strings.TrimSpace(q); q != "" {
			keywords = append(keywords, q)
		}
	}
	if len(keywords) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	results, err := h.svc.SearchEntries(r.Context(), urlParam(r, "projectID"), userID(r), keywords)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	if results == nil {
		results = []models.SearchResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// GetEntry handles GET /api/entries/{entryID}.
//
//	@Summary		Get an entry, or one section of it
//	@Tags			entries
//	@Produce		json,text/markdown
//	@Param			entryID	path		string	true	"Entry id"
//	@Param			section	query		string	false	"Section heading"
//	@Param			format	query		string	false	"Response format"	Enums(json, markdown)
//	@Success		200		{object}	models.Entry
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entries/{entryID} [get]
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	entryID := urlParam(r, "entryID")
	e, err := h.svc.GetEntry(r.Context(), entryID, userID(r))
	if err != nil {
		writeError(w, "get entry", err)
		return
	}

	if section := r.URL.Query().Get("section"); section != "" {
		body, ok := entries.ExtractSection(e.Content, section)
		if !ok {
			writeError(w, "get entry", apperr.ErrNotFound)
			return
		}
		writeJSON(w, http.StatusOK, SectionResponse{EntryID: entryID, Section: section, Body: body})
		return
	}

	if wantsMarkdown(r) {
		out, err := entries.Render(*e)
		if err != nil {
			writeError(w, "render entry", err)
			return
		}
		writeMarkdown(w, http.StatusOK, out)
		return
	}
	writeJSON(w, http.StatusOK, e)
}
