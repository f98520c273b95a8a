package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/laguz/internal/docservice"
	"github.com/starford/laguz/internal/indexer"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(docs *docservice.Service, rebuilder *indexer.Rebuilder, sched *indexer.Scheduler,
	authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(docs, rebuilder, sched)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Documents CRUD and lifecycle.
	r.Get("/documents", h.ListDocuments)
	r.Post("/documents", h.CreateDocument)
	r.Get("/documents/{id}", h.GetDocument)
	r.Put("/documents/{id}", h.UpdateDocument)
	r.Post("/documents/{id}/move", h.MoveDocument)
	r.Post("/documents/{id}/trash", h.TrashDocument)
	r.Post("/documents/{id}/restore", h.RestoreDocument)
	r.Delete("/documents/{id}", h.PurgeDocument)

	// Derived task rows.
	r.Get("/tasks", h.ListTasks)

	// Search and saved views.
	r.Get("/search", h.Search)
	r.Post("/views/query", h.QueryView)

	// Index maintenance.
	r.Post("/index/rebuild", h.RebuildIndex)
	r.Get("/index/status", h.IndexStatus)

	// Purge log.
	r.Get("/tombstones", h.Tombstones)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
