package store

import (
	"time"

	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/tasks"
)

// Store defines the interface for document and task persistence.
// Consumers should depend on this interface rather than the concrete *DB
// type to facilitate testing with mocks.
type Store interface {
	PutDocument(doc *models.Document, now time.Time) error
	GetDocument(id string) (*models.Document, error)
	GetDocuments(ids []string) ([]models.Document, error)
	ListDocuments() ([]models.Document, error)
	ListChildren(parentID string) ([]models.Document, error)
	ListIndexableNoteIDs() ([]string, error)
	SetLifecycle(id string, lc models.Lifecycle, now time.Time) error
	SetParent(id, parentID string, now time.Time) error
	PurgeDocument(id string, now time.Time) error
	Tombstones() ([]models.Tombstone, error)
	AllVaultChecksums() (map[string]string, error)
	GetDocumentByVaultPath(path string) (*models.Document, error)

	ApplyTaskChanges(ch tasks.Changes) error
	ReplaceTasks(noteIDs []string, rows []models.TaskRow, now time.Time) error
	TasksForNote(noteID string) ([]models.TaskRow, error)
	ListTasks(f TaskFilter) ([]models.TaskRow, error)
	DeleteTasksForNote(noteID string) error
	DeleteTasksNotIn(keep []string) error
	ClearTasks() error

	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)
