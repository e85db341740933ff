package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/noosphere/internal/auth"
	"github.com/starford/noosphere/internal/memory"
)

// NewRouter creates a chi router with all API routes mounted behind the
// auth middleware. sseHandler, if non-nil, is mounted at GET /events.
func NewRouter(svc *memory.Service, res *auth.Resolver, hook UserHook, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(res, hook))

	r.Get("/projects", h.ListProjects)
	r.Route("/projects/{projectID}", func(r chi.Router) {
		r.Get("/document", h.GetDocument)
		r.Get("/browse", h.Browse)
		r.Post("/push", h.Push)
		r.Post("/deltas", h.ApplyDeltas)
		r.Get("/entries", h.ListEntries)
		r.Post("/entries", h.CreateEntry)
		r.Get("/search", h.Search)
	})

	r.Get("/entries/{entryID}", h.GetEntry)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
