package store

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/tasks"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "laguz-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testNote(id, parent string) *models.Document {
	return &models.Document{
		ID:        id,
		Type:      models.DocTypeNote,
		ParentID:  parent,
		Title:     "Note " + id,
		Tags:      []string{"inbox"},
		Lifecycle: models.LifecycleActive,
		Blocks: []models.Block{
			{ID: "b1", Kind: models.BlockChecklist, Items: []models.ListItem{
				{ID: "i1", Text: "do the thing"},
			}},
		},
	}
}

func TestPutDocument_RevisionCounter(t *testing.T) {
	db := testDB(t)
	now := time.Now()

	doc := testNote("n1", "")
	if err := db.PutDocument(doc, now); err != nil {
		t.Fatalf("PutDocument: %v", err)
	}
	if doc.Revision != 1 {
		t.Errorf("first revision = %d, want 1", doc.Revision)
	}

	doc.Title = "Renamed"
	if err := db.PutDocument(doc, now.Add(time.Second)); err != nil {
		t.Fatalf("PutDocument: %v", err)
	}
	if doc.Revision != 2 {
		t.Errorf("second revision = %d, want 2", doc.Revision)
	}

	got, err := db.GetDocument("n1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.Title != "Renamed" || got.Revision != 2 {
		t.Errorf("stored doc = %+v", got)
	}
	if !got.CreatedAt.Equal(doc.CreatedAt) {
		t.Error("creation time changed on update")
	}
	if len(got.Blocks) != 1 || len(got.Blocks[0].Items) != 1 {
		t.Errorf("blocks did not round-trip: %+v", got.Blocks)
	}
}

func TestGetDocument_NotFound(t *testing.T) {
	db := testDB(t)
	if _, err := db.GetDocument("missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestLifecycleAndMove(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.PutDocument(testNote("n1", "p1"), now)

	if err := db.SetLifecycle("n1", models.LifecycleTrashed, now); err != nil {
		t.Fatalf("SetLifecycle: %v", err)
	}
	got, _ := db.GetDocument("n1")
	if got.Lifecycle != models.LifecycleTrashed || got.Revision != 2 {
		t.Errorf("after trash: lifecycle=%s revision=%d", got.Lifecycle, got.Revision)
	}

	if err := db.SetParent("n1", "p2", now); err != nil {
		t.Fatalf("SetParent: %v", err)
	}
	got, _ = db.GetDocument("n1")
	if got.ParentID != "p2" || got.Revision != 3 {
		t.Errorf("after move: parent=%s revision=%d", got.ParentID, got.Revision)
	}

	if err := db.SetLifecycle("missing", models.LifecycleActive, now); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("SetLifecycle missing = %v", err)
	}
}

func TestPurgeWritesTombstoneAndClearsTasks(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	doc := testNote("n1", "")
	_ = db.PutDocument(doc, now)

	rows := tasks.Extract(doc)
	_ = db.ApplyTaskChanges(tasks.Diff(nil, rows, now))

	if err := db.PurgeDocument("n1", now); err != nil {
		t.Fatalf("PurgeDocument: %v", err)
	}

	if _, err := db.GetDocument("n1"); !errors.Is(err, apperr.ErrNotFound) {
		t.Error("document survived purge")
	}
	left, _ := db.TasksForNote("n1")
	if len(left) != 0 {
		t.Errorf("%d task rows survived purge", len(left))
	}

	ts, err := db.Tombstones()
	if err != nil {
		t.Fatalf("Tombstones: %v", err)
	}
	if len(ts) != 1 || ts[0].ID != "n1" || ts[0].Revision != 1 {
		t.Errorf("tombstones = %+v", ts)
	}
}

func TestApplyTaskChanges_Transactional(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	doc := testNote("n1", "proj")
	rows := tasks.Extract(doc)

	if err := db.ApplyTaskChanges(tasks.Diff(nil, rows, now)); err != nil {
		t.Fatalf("ApplyTaskChanges: %v", err)
	}
	got, _ := db.TasksForNote("n1")
	if len(got) != 1 || got[0].ProjectID != "proj" {
		t.Fatalf("tasks = %+v", got)
	}

	// Delete + upsert in one change set.
	doc.Blocks[0].Items[0].Checked = true
	next := tasks.Extract(doc)
	ch := tasks.Diff(got, next, now.Add(time.Minute))
	if err := db.ApplyTaskChanges(ch); err != nil {
		t.Fatalf("ApplyTaskChanges: %v", err)
	}
	got, _ = db.TasksForNote("n1")
	if len(got) != 1 || got[0].Status != models.StatusDone {
		t.Fatalf("after toggle: %+v", got)
	}
	if !got[0].CreatedAt.Equal(rowsCreated(t, now)) {
		t.Error("creation time not preserved through upsert")
	}
}

// rowsCreated normalizes now through the SQLite round trip precision.
func rowsCreated(t *testing.T, now time.Time) time.Time {
	t.Helper()
	return now.Round(0)
}

func TestListTasks_DueRange(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	mk := func(id, due string) models.TaskRow {
		return models.TaskRow{
			ID: id, NoteID: "n", BlockID: "b", ItemID: id,
			Status: models.StatusTodo, DueDay: due,
			CreatedAt: now, UpdatedAt: now,
		}
	}
	ch := tasks.Changes{Upserts: []models.TaskRow{
		mk("t1", "2026-09-01"), mk("t2", "2026-09-10"), mk("t3", ""),
	}}
	if err := db.ApplyTaskChanges(ch); err != nil {
		t.Fatalf("ApplyTaskChanges: %v", err)
	}

	got, err := db.ListTasks(TaskFilter{DueFrom: "2026-09-01", DueTo: "2026-09-05"})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(got) != 1 || got[0].ID != "t1" {
		t.Fatalf("due range hit = %+v", got)
	}

	all, _ := db.ListTasks(TaskFilter{})
	if len(all) != 3 {
		t.Fatalf("unfiltered = %d rows", len(all))
	}
	// Dated rows sort before the undated one.
	if all[2].ID != "t3" {
		t.Errorf("undated row not last: %v", all)
	}
}

func TestDeleteTasksNotIn(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	for _, n := range []string{"keep", "orphan"} {
		doc := testNote(n, "")
		_ = db.ApplyTaskChanges(tasks.Diff(nil, tasks.Extract(doc), now))
	}

	if err := db.DeleteTasksNotIn([]string{"keep"}); err != nil {
		t.Fatalf("DeleteTasksNotIn: %v", err)
	}
	if left, _ := db.TasksForNote("orphan"); len(left) != 0 {
		t.Error("orphan rows survived sweep")
	}
	if kept, _ := db.TasksForNote("keep"); len(kept) != 1 {
		t.Error("kept rows were swept")
	}

	// Empty keep set clears the table entirely.
	if err := db.DeleteTasksNotIn(nil); err != nil {
		t.Fatalf("DeleteTasksNotIn(nil): %v", err)
	}
	if ids, _ := db.AllTaskIDs(); len(ids) != 0 {
		t.Error("task table not cleared for empty snapshot")
	}
}

func TestVaultLookups(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	doc := testNote("n1", "")
	doc.VaultPath = "inbox/todo.md"
	doc.Checksum = "abc"
	_ = db.PutDocument(doc, now)

	cs, err := db.AllVaultChecksums()
	if err != nil {
		t.Fatalf("AllVaultChecksums: %v", err)
	}
	if cs["inbox/todo.md"] != "abc" {
		t.Fatalf("checksums = %v", cs)
	}

	got, err := db.GetDocumentByVaultPath("inbox/todo.md")
	if err != nil || got.ID != "n1" {
		t.Fatalf("GetDocumentByVaultPath = %v, %v", got, err)
	}
}
