package docservice

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/indexer"
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/search"
	"github.com/starford/laguz/internal/testutil"
	"github.com/starford/laguz/internal/views"
)

func testService(t *testing.T) (*Service, *eventLog) {
	t.Helper()
	db := testutil.TestStore(t)

	bus := indexer.NewBus()
	log := &eventLog{}
	bus.Subscribe(log.record)

	svc := NewService(Config{
		Store:  db,
		Bus:    bus,
		Search: search.New(nil, nil),
	})
	return svc, log
}

type eventLog struct {
	mu  sync.Mutex
	evs []indexer.Event
}

func (l *eventLog) record(ev indexer.Event) {
	l.mu.Lock()
	l.evs = append(l.evs, ev)
	l.mu.Unlock()
}

func (l *eventLog) last(t *testing.T) indexer.Event {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.evs) == 0 {
		t.Fatal("no events recorded")
	}
	return l.evs[len(l.evs)-1]
}

func mustCreate(t *testing.T, svc *Service, in CreateInput) *models.Document {
	t.Helper()
	doc, err := svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return doc
}

func TestCreateAssignsIDAndAnnounces(t *testing.T) {
	svc, log := testService(t)

	doc := mustCreate(t, svc, CreateInput{Type: models.DocTypeNote, Title: "First"})
	if doc.ID == "" {
		t.Fatal("no id assigned")
	}
	if doc.Revision != 1 {
		t.Fatalf("revision = %d", doc.Revision)
	}
	ev := log.last(t)
	if ev.Kind != indexer.KindSaved || ev.DocID != doc.ID {
		t.Fatalf("event = %+v", ev)
	}

	got, err := svc.Get(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "First" {
		t.Fatalf("title = %q", got.Title)
	}
}

func TestCreateRejectsDuplicateAndBadInput(t *testing.T) {
	svc, _ := testService(t)

	doc := mustCreate(t, svc, CreateInput{Type: models.DocTypeNote, Title: "Dup"})
	_, err := svc.Create(context.Background(), CreateInput{ID: doc.ID, Type: models.DocTypeNote, Title: "Again"})
	if !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Fatalf("err = %v", err)
	}

	if _, err := svc.Create(context.Background(), CreateInput{Type: models.DocTypeNote}); err == nil {
		t.Fatal("missing title accepted")
	}
	if _, err := svc.Create(context.Background(), CreateInput{Type: "weird", Title: "x"}); err == nil {
		t.Fatal("bad type accepted")
	}
}

func TestUpdateOptimisticConcurrency(t *testing.T) {
	svc, _ := testService(t)
	doc := mustCreate(t, svc, CreateInput{Type: models.DocTypeNote, Title: "v1"})

	updated, err := svc.Update(context.Background(), doc.ID, UpdateInput{Title: "v2", BaseRevision: doc.Revision})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Revision != doc.Revision+1 {
		t.Fatalf("revision = %d", updated.Revision)
	}

	_, err = svc.Update(context.Background(), doc.ID, UpdateInput{Title: "v3", BaseRevision: doc.Revision})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("stale update err = %v", err)
	}
}

func TestUpdateEmitsMostSpecificKind(t *testing.T) {
	svc, log := testService(t)
	doc := mustCreate(t, svc, CreateInput{Type: models.DocTypeNote, Title: "Note", Tags: []string{"a"}})

	if _, err := svc.Update(context.Background(), doc.ID, UpdateInput{Title: "Note", Tags: []string{"a", "b"}}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if k := log.last(t).Kind; k != indexer.KindTagsChanged {
		t.Fatalf("tags-only edit emitted %q", k)
	}

	if _, err := svc.Update(context.Background(), doc.ID, UpdateInput{
		Title: "Note", Tags: []string{"a", "b"},
		Props: models.Properties{Status: models.StatusDoing},
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if k := log.last(t).Kind; k != indexer.KindPropsChanged {
		t.Fatalf("props-only edit emitted %q", k)
	}

	if _, err := svc.Update(context.Background(), doc.ID, UpdateInput{
		Title: "Renamed", Tags: []string{"a", "b"},
		Props: models.Properties{Status: models.StatusDoing},
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if k := log.last(t).Kind; k != indexer.KindSaved {
		t.Fatalf("title edit emitted %q", k)
	}
}

func TestMoveValidatesTarget(t *testing.T) {
	svc, log := testService(t)
	ctx := context.Background()

	folder := mustCreate(t, svc, CreateInput{Type: models.DocTypeFolder, Title: "Projects"})
	sub := mustCreate(t, svc, CreateInput{Type: models.DocTypeFolder, Title: "Sub", ParentID: folder.ID})
	note := mustCreate(t, svc, CreateInput{Type: models.DocTypeNote, Title: "Note"})

	if err := svc.Move(ctx, note.ID, sub.ID); err != nil {
		t.Fatalf("move: %v", err)
	}
	if ev := log.last(t); ev.Kind != indexer.KindMoved || ev.DocID != note.ID {
		t.Fatalf("event = %+v", ev)
	}

	// Notes cannot be parents.
	if err := svc.Move(ctx, folder.ID, note.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("move into note err = %v", err)
	}
	// A folder cannot move into its own subtree.
	if err := svc.Move(ctx, folder.ID, sub.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("cyclic move err = %v", err)
	}
	if err := svc.Move(ctx, note.ID, note.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("self move err = %v", err)
	}
}

func TestTrashRestorePurgeLifecycle(t *testing.T) {
	svc, log := testService(t)
	ctx := context.Background()
	doc := mustCreate(t, svc, CreateInput{Type: models.DocTypeNote, Title: "Victim"})

	if err := svc.Trash(ctx, doc.ID); err != nil {
		t.Fatalf("trash: %v", err)
	}
	if log.last(t).Kind != indexer.KindDeleted {
		t.Fatalf("trash event = %+v", log.last(t))
	}
	got, _ := svc.Get(ctx, doc.ID)
	if got.Lifecycle != models.LifecycleTrashed {
		t.Fatalf("lifecycle = %q", got.Lifecycle)
	}

	if err := svc.Restore(ctx, doc.ID); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if log.last(t).Kind != indexer.KindRestored {
		t.Fatalf("restore event = %+v", log.last(t))
	}

	if err := svc.Purge(ctx, doc.ID); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if _, err := svc.Get(ctx, doc.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("get after purge err = %v", err)
	}
	stones, err := svc.Tombstones(ctx)
	if err != nil || len(stones) != 1 || stones[0].ID != doc.ID {
		t.Fatalf("tombstones = %v, %v", stones, err)
	}
}

func TestSearchStaysInSync(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	doc := mustCreate(t, svc, CreateInput{Type: models.DocTypeNote, Title: "Grocery list"})
	res := svc.Search(ctx, "grocery", "", 10)
	if len(res) != 1 || res[0].ID != doc.ID {
		t.Fatalf("search after create = %v", res)
	}

	if err := svc.Trash(ctx, doc.ID); err != nil {
		t.Fatalf("trash: %v", err)
	}
	if res := svc.Search(ctx, "grocery", "", 10); len(res) != 0 {
		t.Fatalf("trashed doc still searchable: %v", res)
	}

	if err := svc.Restore(ctx, doc.ID); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if res := svc.Search(ctx, "grocery", "", 10); len(res) != 1 {
		t.Fatalf("restored doc not searchable: %v", res)
	}
}

func TestQueryViewUsesPaths(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	folder := mustCreate(t, svc, CreateInput{Type: models.DocTypeFolder, Title: "Clients"})
	inside := mustCreate(t, svc, CreateInput{Type: models.DocTypeNote, Title: "ACME brief", ParentID: folder.ID})
	mustCreate(t, svc, CreateInput{Type: models.DocTypeNote, Title: "Loose note"})

	if p := svc.Path(inside.ID); p != "Clients / ACME brief" {
		t.Fatalf("path = %q", p)
	}

	got, err := svc.QueryView(ctx, views.View{PathContains: "clients"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entities", len(got))
	}

	if _, err := svc.QueryView(ctx, views.View{SortKey: "bogus"}); err == nil {
		t.Fatal("invalid view accepted")
	}
}

func TestPathCacheFollowsRename(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	folder := mustCreate(t, svc, CreateInput{Type: models.DocTypeFolder, Title: "Old"})
	note := mustCreate(t, svc, CreateInput{Type: models.DocTypeNote, Title: "Inside", ParentID: folder.ID})

	if p := svc.Path(note.ID); p != "Old / Inside" {
		t.Fatalf("path = %q", p)
	}
	if _, err := svc.Update(ctx, folder.ID, UpdateInput{Title: "New"}); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if p := svc.Path(note.ID); p != "New / Inside" {
		t.Fatalf("path after rename = %q", p)
	}
}

func TestMutationHonorsCancelledContext(t *testing.T) {
	svc, _ := testService(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Create(ctx, CreateInput{ID: "never", Type: models.DocTypeNote, Title: "Never"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if _, err := svc.Get(context.Background(), "never"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("cancelled create reached the store: %v", err)
	}
}
