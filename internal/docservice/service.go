// Package docservice is the write path of the system: every document
// mutation funnels through here, serialized per document, persisted, and
// announced on the event bus before the search index is brought up to date.
package docservice

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/indexer"
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/search"
	"github.com/starford/laguz/internal/store"
	"github.com/starford/laguz/internal/views"
	"github.com/starford/laguz/internal/writequeue"
)

// Service coordinates the store, the per-document write queue, the event
// bus and the search index.
type Service struct {
	store  store.Store
	queue  *writequeue.Queue
	bus    *indexer.Bus
	search *search.Index
	logger *slog.Logger
	now    func() time.Time
	paths  *pathCache
}

// Config carries the service collaborators.
type Config struct {
	Store  store.Store
	Bus    *indexer.Bus
	Search *search.Index
	Logger *slog.Logger
	Now    func() time.Time
}

// NewService creates the service. Bus and Search are optional; a nil bus
// means mutations go unannounced (tests use that).
func NewService(cfg Config) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:  cfg.Store,
		queue:  writequeue.New(),
		bus:    cfg.Bus,
		search: cfg.Search,
		logger: logger,
		now:    now,
	}
	s.paths = newPathCache(cfg.Store)
	return s
}

// CreateInput is the payload for a new document.
type CreateInput struct {
	ID       string
	Type     models.DocType
	ParentID string
	Title    string
	Blocks   []models.Block
	Tags     []string
	Props    models.Properties
}

// Validate checks the create payload.
func (in CreateInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Type, validation.Required,
			validation.In(models.DocTypeNote, models.DocTypeFolder)),
		validation.Field(&in.Title, validation.Required, validation.Length(1, 512)),
	)
}

// UpdateInput is the payload for a content update. BaseRevision enables
// optimistic concurrency: non-zero and stale means ErrConflict.
type UpdateInput struct {
	Title        string
	Blocks       []models.Block
	Tags         []string
	Props        models.Properties
	BaseRevision int64
}

// Create persists a new document and announces it. A caller-supplied id is
// honoured (the vault importer needs deterministic ids), otherwise one is
// generated.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Document, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}

	doc := &models.Document{
		ID:        id,
		Type:      in.Type,
		ParentID:  in.ParentID,
		Title:     in.Title,
		Blocks:    in.Blocks,
		Tags:      in.Tags,
		Props:     in.Props,
		Lifecycle: models.LifecycleActive,
	}
	doc.Props = doc.Props.Normalize()

	err := s.queue.Enqueue(ctx, id, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.store.GetDocument(id); err == nil {
			return apperr.ErrAlreadyExists
		} else if !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		if err := s.checkParent(id, doc.ParentID); err != nil {
			return err
		}
		if err := s.store.PutDocument(doc, s.now()); err != nil {
			return err
		}
		s.announce(indexer.Event{Kind: indexer.KindSaved, DocID: id})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterWrite()
	return doc, nil
}

// Update replaces the content fields of a document. The emitted event kind
// is the most specific one that covers the change: tags-only and
// properties-only edits announce themselves as such so subscribers can skip
// work the body did not cause.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*models.Document, error) {
	var updated *models.Document
	err := s.queue.Enqueue(ctx, id, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		old, err := s.store.GetDocument(id)
		if err != nil {
			return err
		}
		if in.BaseRevision != 0 && in.BaseRevision != old.Revision {
			return apperr.ErrConflict
		}

		next := *old
		next.Title = in.Title
		next.Blocks = in.Blocks
		next.Tags = in.Tags
		next.Props = in.Props
		next.Props = next.Props.Normalize()

		if err := s.store.PutDocument(&next, s.now()); err != nil {
			return err
		}
		updated = &next
		s.announce(indexer.Event{Kind: changeKind(old, &next), DocID: id})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterWrite()
	return updated, nil
}

// Move reparents a document. The target must exist, be a folder, and not
// sit inside the moved document's own subtree.
func (s *Service) Move(ctx context.Context, id, newParentID string) error {
	err := s.queue.Enqueue(ctx, id, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.checkParent(id, newParentID); err != nil {
			return err
		}
		if err := s.store.SetParent(id, newParentID, s.now()); err != nil {
			return err
		}
		s.announce(indexer.Event{Kind: indexer.KindMoved, DocID: id})
		return nil
	})
	if err != nil {
		return err
	}
	s.afterWrite()
	return nil
}

// Trash soft-deletes a document. Its derived rows disappear from the task
// index via the emitted event; the row itself stays recoverable.
func (s *Service) Trash(ctx context.Context, id string) error {
	return s.setLifecycle(ctx, id, models.LifecycleTrashed, indexer.KindDeleted)
}

// Restore brings a trashed document back.
func (s *Service) Restore(ctx context.Context, id string) error {
	return s.setLifecycle(ctx, id, models.LifecycleActive, indexer.KindRestored)
}

func (s *Service) setLifecycle(ctx context.Context, id string, lc models.Lifecycle, kind indexer.Kind) error {
	err := s.queue.Enqueue(ctx, id, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.store.SetLifecycle(id, lc, s.now()); err != nil {
			return err
		}
		s.announce(indexer.Event{Kind: kind, DocID: id})
		return nil
	})
	if err != nil {
		return err
	}
	s.afterWrite()
	return nil
}

// Purge removes a document permanently, leaving only a tombstone.
func (s *Service) Purge(ctx context.Context, id string) error {
	err := s.queue.Enqueue(ctx, id, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.store.PurgeDocument(id, s.now()); err != nil {
			return err
		}
		s.announce(indexer.Event{Kind: indexer.KindDeleted, DocID: id})
		return nil
	})
	if err != nil {
		return err
	}
	s.afterWrite()
	return nil
}

// vaultNamespace seeds deterministic v5 ids for vault-imported documents so
// re-importing the same path always lands on the same document.
var vaultNamespace = uuid.MustParse("5e3f1c9a-7d42-4b8e-9f01-2a6c8d4e7b10")

// VaultDocID derives the stable document id for a vault path.
func VaultDocID(path string) string {
	return uuid.NewSHA1(vaultNamespace, []byte(path)).String()
}

// ImportInput is a document projected from a vault file.
type ImportInput struct {
	VaultPath string
	Checksum  string
	Title     string
	Tags      []string
	Props     models.Properties
	Blocks    []models.Block
}

// ImportVault upserts the document mirroring a vault file. The id is
// derived from the path, so repeated imports update in place; a previously
// trashed mirror document is revived by the import.
func (s *Service) ImportVault(ctx context.Context, in ImportInput) (*models.Document, error) {
	id := VaultDocID(in.VaultPath)
	title := in.Title
	if title == "" {
		title = in.VaultPath
	}

	var doc *models.Document
	err := s.queue.Enqueue(ctx, id, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		next := &models.Document{
			ID:        id,
			Type:      models.DocTypeNote,
			Title:     title,
			Blocks:    in.Blocks,
			Tags:      in.Tags,
			Props:     in.Props.Normalize(),
			Lifecycle: models.LifecycleActive,
			VaultPath: in.VaultPath,
			Checksum:  in.Checksum,
		}
		if old, err := s.store.GetDocument(id); err == nil {
			next.ParentID = old.ParentID
		} else if !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		if err := s.store.PutDocument(next, s.now()); err != nil {
			return err
		}
		doc = next
		s.announce(indexer.Event{Kind: indexer.KindSaved, DocID: id})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterWrite()
	return doc, nil
}

// DropVaultPath trashes the document mirroring a vault file that vanished
// from disk. Unknown paths are a no-op.
func (s *Service) DropVaultPath(ctx context.Context, path string) error {
	doc, err := s.store.GetDocumentByVaultPath(path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil
		}
		return err
	}
	if doc.Lifecycle != models.LifecycleActive {
		return nil
	}
	return s.Trash(ctx, doc.ID)
}

// VaultChecksums returns vault path → stored checksum for reconcile passes.
func (s *Service) VaultChecksums(_ context.Context) (map[string]string, error) {
	return s.store.AllVaultChecksums()
}

// Get returns one document.
func (s *Service) Get(_ context.Context, id string) (*models.Document, error) {
	return s.store.GetDocument(id)
}

// List returns the whole collection.
func (s *Service) List(_ context.Context) ([]models.Document, error) {
	return s.store.ListDocuments()
}

// Children returns the direct children of a folder.
func (s *Service) Children(_ context.Context, parentID string) ([]models.Document, error) {
	return s.store.ListChildren(parentID)
}

// Tasks returns derived task rows matching the filter.
func (s *Service) Tasks(_ context.Context, f store.TaskFilter) ([]models.TaskRow, error) {
	return s.store.ListTasks(f)
}

// Tombstones returns the purge log.
func (s *Service) Tombstones(_ context.Context) ([]models.Tombstone, error) {
	return s.store.Tombstones()
}

// Search runs a full-text query against the in-memory index.
func (s *Service) Search(_ context.Context, query string, typeFilter models.DocType, limit int) []search.Result {
	if s.search == nil {
		return nil
	}
	return s.search.Search(query, typeFilter, limit)
}

// QueryView evaluates a saved view over the live collection.
func (s *Service) QueryView(ctx context.Context, v views.View) ([]models.Document, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	docs, err := s.store.ListDocuments()
	if err != nil {
		return nil, err
	}
	return views.Run(docs, v, s.paths), nil
}

// Path returns the materialized hierarchical path of a document.
func (s *Service) Path(id string) string {
	return s.paths.Path(id)
}

// SyncSearch reconciles the search index against the store. Called once at
// startup and after every mutation; the index diffs by revision so the
// steady-state cost is one scan plus the changed entries.
func (s *Service) SyncSearch() {
	if s.search == nil {
		return
	}
	docs, err := s.store.ListDocuments()
	if err != nil {
		s.logger.Warn("docservice: search sync failed", slog.String("error", err.Error()))
		return
	}
	s.search.ApplyDelta(docs)
}

func (s *Service) afterWrite() {
	s.paths.Invalidate()
	s.SyncSearch()
}

func (s *Service) announce(ev indexer.Event) {
	if s.bus != nil {
		s.bus.Emit(ev)
	}
}

// checkParent validates a prospective parent: empty is the root, otherwise
// it must be an existing folder outside the document's own subtree.
func (s *Service) checkParent(id, parentID string) error {
	if parentID == "" {
		return nil
	}
	if parentID == id {
		return apperr.ErrConflict
	}
	parent, err := s.store.GetDocument(parentID)
	if err != nil {
		return err
	}
	if parent.Type != models.DocTypeFolder {
		return apperr.ErrConflict
	}
	// Walk up from the target; finding id means a cycle.
	cur := parent.ParentID
	for depth := 0; cur != "" && depth < 128; depth++ {
		if cur == id {
			return apperr.ErrConflict
		}
		anc, err := s.store.GetDocument(cur)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return nil
			}
			return err
		}
		cur = anc.ParentID
	}
	return nil
}

// changeKind picks the most specific event kind for an update.
func changeKind(old, next *models.Document) indexer.Kind {
	titleSame := old.Title == next.Title
	blocksSame := blocksEqual(old.Blocks, next.Blocks)
	tagsSame := tagsEqual(old.Tags, next.Tags)
	propsSame := old.Props.Equal(next.Props)

	switch {
	case titleSame && blocksSame && propsSame && !tagsSame:
		return indexer.KindTagsChanged
	case titleSame && blocksSame && tagsSame && !propsSame:
		return indexer.KindPropsChanged
	default:
		return indexer.KindSaved
	}
}

func tagsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func blocksEqual(a, b []models.Block) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Kind != b[i].Kind || a[i].Text != b[i].Text {
			return false
		}
		if len(a[i].Items) != len(b[i].Items) {
			return false
		}
		for j := range a[i].Items {
			if a[i].Items[j] != b[i].Items[j] {
				return false
			}
		}
	}
	return true
}
