package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/docservice"
	"github.com/starford/laguz/internal/indexer"
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/search"
	"github.com/starford/laguz/internal/store"
)

// Handler holds API route handlers.
type Handler struct {
	docs      *docservice.Service
	rebuilder *indexer.Rebuilder
	sched     *indexer.Scheduler
}

// NewHandler creates a new Handler. rebuilder and sched may be nil; the
// index endpoints then report empty state.
func NewHandler(docs *docservice.Service, rebuilder *indexer.Rebuilder, sched *indexer.Scheduler) *Handler {
	return &Handler{docs: docs, rebuilder: rebuilder, sched: sched}
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("conflict"))
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody("already exists"))
	case errors.Is(err, apperr.ErrJobRunning):
		writeJSON(w, http.StatusConflict, errorBody("job already running"))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// ListDocuments handles GET /api/documents. An optional ?parent= query
// narrows to a folder's direct children.
//
//	@Summary	List documents
//	@Tags		documents
//	@Produce	json
//	@Param		parent	query		string	false	"Folder id"
//	@Success	200		{object}	DocumentListResponse
//	@Security	BearerAuth
//	@Router		/documents [get]
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	var (
		docs []models.Document
		err  error
	)
	if parent := r.URL.Query().Get("parent"); parent != "" {
		docs, err = h.docs.Children(r.Context(), parent)
	} else {
		docs, err = h.docs.List(r.Context())
	}
	if err != nil {
		writeError(w, err, "list documents")
		return
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{Documents: docs, Total: len(docs)})
}

// GetDocument handles GET /api/documents/{id}.
//
//	@Summary	Get a single document
//	@Tags		documents
//	@Produce	json
//	@Param		id	path		string	true	"Document id"
//	@Success	200	{object}	DocumentResponse
//	@Failure	404	{object}	errResponse
//	@Security	BearerAuth
//	@Router		/documents/{id} [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := h.docs.Get(r.Context(), id)
	if err != nil {
		writeError(w, err, "get document")
		return
	}
	writeJSON(w, http.StatusOK, DocumentResponse{Document: doc, Path: h.docs.Path(id)})
}

// CreateDocument handles POST /api/documents.
//
//	@Summary	Create a document
//	@Tags		documents
//	@Accept		json
//	@Produce	json
//	@Param		body	body		CreateDocumentRequest	true	"Document to create"
//	@Success	201		{object}	DocumentResponse
//	@Failure	400		{object}	errResponse
//	@Failure	409		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/documents [post]
func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req CreateDocumentRequest
	if !readJSON(w, r, &req) {
		return
	}
	doc, err := h.docs.Create(r.Context(), docservice.CreateInput{
		ID:       req.ID,
		Type:     models.DocType(req.Type),
		ParentID: req.ParentID,
		Title:    req.Title,
		Blocks:   req.Blocks,
		Tags:     req.Tags,
		Props:    req.Props,
	})
	if err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) || errors.Is(err, apperr.ErrConflict) || errors.Is(err, apperr.ErrNotFound) {
			writeError(w, err, "create document")
		} else {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		}
		return
	}
	writeJSON(w, http.StatusCreated, DocumentResponse{Document: doc, Path: h.docs.Path(doc.ID)})
}

// UpdateDocument handles PUT /api/documents/{id}.
//
//	@Summary	Replace document content
//	@Tags		documents
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string					true	"Document id"
//	@Param		body	body		UpdateDocumentRequest	true	"New content"
//	@Success	200		{object}	DocumentResponse
//	@Failure	404		{object}	errResponse
//	@Failure	409		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/documents/{id} [put]
func (h *Handler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req UpdateDocumentRequest
	if !readJSON(w, r, &req) {
		return
	}
	doc, err := h.docs.Update(r.Context(), id, docservice.UpdateInput{
		Title:        req.Title,
		Blocks:       req.Blocks,
		Tags:         req.Tags,
		Props:        req.Props,
		BaseRevision: req.BaseRevision,
	})
	if err != nil {
		writeError(w, err, "update document")
		return
	}
	writeJSON(w, http.StatusOK, DocumentResponse{Document: doc, Path: h.docs.Path(id)})
}

// MoveDocument handles POST /api/documents/{id}/move.
func (h *Handler) MoveDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req MoveDocumentRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := h.docs.Move(r.Context(), id, req.ParentID); err != nil {
		writeError(w, err, "move document")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "moved"})
}

// TrashDocument handles POST /api/documents/{id}/trash.
func (h *Handler) TrashDocument(w http.ResponseWriter, r *http.Request) {
	if err := h.docs.Trash(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err, "trash document")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "trashed"})
}

// RestoreDocument handles POST /api/documents/{id}/restore.
func (h *Handler) RestoreDocument(w http.ResponseWriter, r *http.Request) {
	if err := h.docs.Restore(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err, "restore document")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "restored"})
}

// PurgeDocument handles DELETE /api/documents/{id}.
func (h *Handler) PurgeDocument(w http.ResponseWriter, r *http.Request) {
	if err := h.docs.Purge(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err, "purge document")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "purged"})
}

// ListTasks handles GET /api/tasks with optional note/project/status/due
// range/next filters.
//
//	@Summary	List derived task rows
//	@Tags		tasks
//	@Produce	json
//	@Param		note		query		string	false	"Source note id"
//	@Param		project		query		string	false	"Project (parent folder) id"
//	@Param		status		query		string	false	"todo|doing|done"
//	@Param		due_from	query		string	false	"Inclusive lower bound (YYYY-MM-DD)"
//	@Param		due_to		query		string	false	"Inclusive upper bound (YYYY-MM-DD)"
//	@Param		next		query		bool	false	"Next actions only"
//	@Success	200			{object}	TaskListResponse
//	@Security	BearerAuth
//	@Router		/tasks [get]
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	next, _ := strconv.ParseBool(q.Get("next"))
	rows, err := h.docs.Tasks(r.Context(), store.TaskFilter{
		NoteID:    q.Get("note"),
		ProjectID: q.Get("project"),
		Status:    models.Status(q.Get("status")),
		DueFrom:   q.Get("due_from"),
		DueTo:     q.Get("due_to"),
		NextOnly:  next,
	})
	if err != nil {
		writeError(w, err, "list tasks")
		return
	}
	writeJSON(w, http.StatusOK, TaskListResponse{Tasks: rows, Total: len(rows)})
}

// Search handles GET /api/search?q=...&type=...&limit=N.
//
//	@Summary	Full-text search over active documents
//	@Tags		search
//	@Produce	json
//	@Param		q		query		string	true	"Query string"
//	@Param		type	query		string	false	"note|folder"
//	@Param		limit	query		int		false	"Max results"
//	@Success	200		{object}	SearchResponse
//	@Security	BearerAuth
//	@Router		/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	results := h.docs.Search(r.Context(), q.Get("q"), models.DocType(q.Get("type")), limit)
	if results == nil {
		results = []search.Result{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// QueryView handles POST /api/views/query.
//
//	@Summary	Evaluate a saved view
//	@Tags		views
//	@Accept		json
//	@Produce	json
//	@Param		body	body		ViewQueryRequest	true	"View to evaluate"
//	@Success	200		{object}	DocumentListResponse
//	@Failure	400		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/views/query [post]
func (h *Handler) QueryView(w http.ResponseWriter, r *http.Request) {
	var req ViewQueryRequest
	if !readJSON(w, r, &req) {
		return
	}
	docs, err := h.docs.QueryView(r.Context(), req.View)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{Documents: docs, Total: len(docs)})
}

// RebuildIndex handles POST /api/index/rebuild. Starting while another run
// is active is a no-op reported as started=false.
func (h *Handler) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	if h.rebuilder == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("rebuild unavailable"))
		return
	}
	started := h.rebuilder.Request(r.Context())
	writeJSON(w, http.StatusAccepted, RebuildResponse{Started: started})
}

// IndexStatus handles GET /api/index/status.
func (h *Handler) IndexStatus(w http.ResponseWriter, r *http.Request) {
	resp := IndexStatusResponse{}
	if h.rebuilder != nil {
		resp.Running = h.rebuilder.Running()
		if job, ok, err := h.rebuilder.CurrentJob(); err == nil && ok {
			resp.Job = job
		}
		if need, err := h.rebuilder.NeedsRebuild(); err == nil {
			resp.NeedsRebuild = need
		}
	}
	if h.sched != nil {
		resp.Pending = h.sched.PendingCount()
		resp.LastErrors = h.sched.Errors()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Tombstones handles GET /api/tombstones.
func (h *Handler) Tombstones(w http.ResponseWriter, r *http.Request) {
	stones, err := h.docs.Tombstones(r.Context())
	if err != nil {
		writeError(w, err, "list tombstones")
		return
	}
	writeJSON(w, http.StatusOK, TombstoneListResponse{Tombstones: stones})
}
