package api

import (
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/search"
	"github.com/starford/laguz/internal/views"
)

// CreateDocumentRequest is the request body for creating a document.
type CreateDocumentRequest struct {
	ID       string            `json:"id,omitempty"`
	Type     string            `json:"type" example:"note" validate:"required"`
	ParentID string            `json:"parent_id,omitempty"`
	Title    string            `json:"title" example:"Weekly plan" validate:"required"`
	Blocks   []models.Block    `json:"blocks,omitempty"`
	Tags     []string          `json:"tags,omitempty"`
	Props    models.Properties `json:"props,omitempty"`
}

// UpdateDocumentRequest is the request body for replacing document content.
// BaseRevision enables optimistic concurrency; zero skips the check.
type UpdateDocumentRequest struct {
	Title        string            `json:"title" validate:"required"`
	Blocks       []models.Block    `json:"blocks,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	Props        models.Properties `json:"props,omitempty"`
	BaseRevision int64             `json:"base_revision,omitempty"`
}

// MoveDocumentRequest is the request body for reparenting.
type MoveDocumentRequest struct {
	ParentID string `json:"parent_id"`
}

// DocumentResponse wraps a single document with its resolved path.
type DocumentResponse struct {
	Document *models.Document `json:"document"`
	Path     string           `json:"path,omitempty"`
}

// DocumentListResponse wraps document listings.
type DocumentListResponse struct {
	Documents []models.Document `json:"documents"`
	Total     int               `json:"total"`
}

// TaskListResponse wraps derived task rows.
type TaskListResponse struct {
	Tasks []models.TaskRow `json:"tasks"`
	Total int              `json:"total"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []search.Result `json:"results"`
}

// ViewQueryRequest carries a saved-view specification to evaluate.
type ViewQueryRequest struct {
	View views.View `json:"view"`
}

// IndexStatusResponse reports the rebuild job and scheduler state.
type IndexStatusResponse struct {
	Running      bool              `json:"running"`
	NeedsRebuild bool              `json:"needs_rebuild"`
	Job          any               `json:"job,omitempty"`
	Pending      int               `json:"pending"`
	LastErrors   map[string]string `json:"last_errors,omitempty"`
}

// RebuildResponse reports whether a rebuild was started.
type RebuildResponse struct {
	Started bool `json:"started"`
}

// TombstoneListResponse wraps the purge log.
type TombstoneListResponse struct {
	Tombstones []models.Tombstone `json:"tombstones"`
}
