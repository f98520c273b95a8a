package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/store"
	"github.com/starford/laguz/internal/tasks"
)

// Reconciler brings the persisted task rows for one document back in sync
// with its current content: extract, diff against the stored rows, apply
// only the minimal change set.
type Reconciler struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewReconciler creates a reconciler over st.
func NewReconciler(st store.Store, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: st, logger: logger, now: time.Now}
}

// Handle processes one coalesced document event. Documents that no longer
// exist or are no longer indexable lose their task rows; everything else is
// diffed. Safe to call for any event kind: reconciliation always works from
// the store's current state, not from what the event claims happened.
func (r *Reconciler) Handle(_ context.Context, ev Event) error {
	doc, err := r.store.GetDocument(ev.DocID)
	if errors.Is(err, apperr.ErrNotFound) {
		if err := r.store.DeleteTasksForNote(ev.DocID); err != nil {
			return fmt.Errorf("indexer: drop tasks for %s: %w", ev.DocID, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("indexer: load %s: %w", ev.DocID, err)
	}

	if !doc.Indexable() {
		if err := r.store.DeleteTasksForNote(doc.ID); err != nil {
			return fmt.Errorf("indexer: drop tasks for %s: %w", doc.ID, err)
		}
		return nil
	}

	existing, err := r.store.TasksForNote(doc.ID)
	if err != nil {
		return fmt.Errorf("indexer: load tasks for %s: %w", doc.ID, err)
	}

	ch := tasks.Diff(existing, tasks.Extract(doc), r.now())
	if ch.Empty() {
		return nil
	}
	if err := r.store.ApplyTaskChanges(ch); err != nil {
		return fmt.Errorf("indexer: apply changes for %s: %w", doc.ID, err)
	}

	r.logger.Debug("indexer: reconciled",
		slog.String("doc_id", doc.ID),
		slog.Int("upserts", len(ch.Upserts)),
		slog.Int("deletes", len(ch.DeleteIDs)))
	return nil
}

// Verify the handler signature matches what the scheduler dispatches.
var _ Handler = (&Reconciler{}).Handle
