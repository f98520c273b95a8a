package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/laguz/internal/docservice"
	"github.com/starford/laguz/internal/indexer"
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/search"
	"github.com/starford/laguz/internal/testutil"
)

type testEnv struct {
	router chi.Router
	docs   *docservice.Service
	sched  *indexer.Scheduler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.TestStore(t)
	m := testutil.TestMeta(t)

	bus := indexer.NewBus()
	docs := docservice.NewService(docservice.Config{
		Store:  db,
		Bus:    bus,
		Search: search.New(nil, nil),
	})

	rec := indexer.NewReconciler(db, nil)
	sched := indexer.NewScheduler(rec.Handle, indexer.SchedulerConfig{Debounce: 10 * time.Millisecond})
	bus.Subscribe(sched.HandleEvent)
	t.Cleanup(sched.Shutdown)

	rebuilder := indexer.NewRebuilder(db, m, indexer.RebuilderConfig{Exec: sched.Do})

	env := &testEnv{
		docs:   docs,
		sched:  sched,
		router: NewRouter(docs, rebuilder, sched, false, "", nil),
	}
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestDocumentCRUD(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/documents", CreateDocumentRequest{Type: "note", Title: "Hello"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", w.Code, w.Body.String())
	}
	created := decode[DocumentResponse](t, w)
	id := created.Document.ID

	w = env.do(t, http.MethodGet, "/documents/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}

	w = env.do(t, http.MethodPut, "/documents/"+id, UpdateDocumentRequest{Title: "Hello v2"})
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d: %s", w.Code, w.Body.String())
	}
	updated := decode[DocumentResponse](t, w)
	if updated.Document.Title != "Hello v2" || updated.Document.Revision != 2 {
		t.Fatalf("updated = %+v", updated.Document)
	}

	// Stale base revision conflicts.
	w = env.do(t, http.MethodPut, "/documents/"+id, UpdateDocumentRequest{Title: "x", BaseRevision: 1})
	if w.Code != http.StatusConflict {
		t.Fatalf("stale update = %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/documents/no-such-id", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing get = %d", w.Code)
	}
}

func TestLifecycleRoutes(t *testing.T) {
	env := newTestEnv(t)

	created := decode[DocumentResponse](t,
		env.do(t, http.MethodPost, "/documents", CreateDocumentRequest{Type: "note", Title: "Victim"}))
	id := created.Document.ID

	if w := env.do(t, http.MethodPost, "/documents/"+id+"/trash", nil); w.Code != http.StatusOK {
		t.Fatalf("trash = %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/documents/"+id+"/restore", nil); w.Code != http.StatusOK {
		t.Fatalf("restore = %d", w.Code)
	}
	if w := env.do(t, http.MethodDelete, "/documents/"+id, nil); w.Code != http.StatusOK {
		t.Fatalf("purge = %d", w.Code)
	}

	stones := decode[TombstoneListResponse](t, env.do(t, http.MethodGet, "/tombstones", nil))
	if len(stones.Tombstones) != 1 || stones.Tombstones[0].ID != id {
		t.Fatalf("tombstones = %+v", stones)
	}
}

func TestMoveRoute(t *testing.T) {
	env := newTestEnv(t)

	folder := decode[DocumentResponse](t,
		env.do(t, http.MethodPost, "/documents", CreateDocumentRequest{Type: "folder", Title: "Projects"}))
	note := decode[DocumentResponse](t,
		env.do(t, http.MethodPost, "/documents", CreateDocumentRequest{Type: "note", Title: "Inside"}))

	w := env.do(t, http.MethodPost, "/documents/"+note.Document.ID+"/move",
		MoveDocumentRequest{ParentID: folder.Document.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("move = %d: %s", w.Code, w.Body.String())
	}

	got := decode[DocumentResponse](t, env.do(t, http.MethodGet, "/documents/"+note.Document.ID, nil))
	if got.Path != "Projects / Inside" {
		t.Fatalf("path = %q", got.Path)
	}

	// Moving into a note is rejected.
	w = env.do(t, http.MethodPost, "/documents/"+folder.Document.ID+"/move",
		MoveDocumentRequest{ParentID: note.Document.ID})
	if w.Code != http.StatusConflict {
		t.Fatalf("bad move = %d", w.Code)
	}
}

func TestTasksFlowThroughPipeline(t *testing.T) {
	env := newTestEnv(t)

	blocks := []models.Block{{
		ID:   "b1",
		Kind: models.BlockChecklist,
		Text: "buy milk",
		Items: []models.ListItem{
			{ID: "i1", Text: "buy milk", DueDay: "2026-03-10"},
			{ID: "i2", Text: "call bank", Checked: true},
		},
	}}
	created := decode[DocumentResponse](t, env.do(t, http.MethodPost, "/documents",
		CreateDocumentRequest{Type: "note", Title: "Errands", Blocks: blocks}))
	id := created.Document.ID

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		resp := decode[TaskListResponse](t, env.do(t, http.MethodGet, "/tasks?note="+id, nil))
		return resp.Total == 2
	}, "task rows never appeared")

	resp := decode[TaskListResponse](t, env.do(t, http.MethodGet,
		fmt.Sprintf("/tasks?note=%s&status=done", id), nil))
	if resp.Total != 1 || resp.Tasks[0].Status != models.StatusDone {
		t.Fatalf("done filter = %+v", resp)
	}

	resp = decode[TaskListResponse](t, env.do(t, http.MethodGet,
		"/tasks?due_from=2026-03-01&due_to=2026-03-31", nil))
	if resp.Total != 1 || resp.Tasks[0].DueDay != "2026-03-10" {
		t.Fatalf("due filter = %+v", resp)
	}
}

func TestSearchRoute(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/documents", CreateDocumentRequest{Type: "note", Title: "Grocery list"})
	env.do(t, http.MethodPost, "/documents", CreateDocumentRequest{Type: "note", Title: "Meeting notes"})

	resp := decode[SearchResponse](t, env.do(t, http.MethodGet, "/search?q=groc", nil))
	if len(resp.Results) != 1 || resp.Results[0].Title != "Grocery list" {
		t.Fatalf("results = %+v", resp.Results)
	}

	empty := decode[SearchResponse](t, env.do(t, http.MethodGet, "/search?q=", nil))
	if empty.Results == nil || len(empty.Results) != 0 {
		t.Fatalf("empty query = %+v", empty.Results)
	}
}

func TestViewQueryRoute(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/documents", CreateDocumentRequest{
		Type: "note", Title: "Tagged", Tags: []string{"work"}})
	env.do(t, http.MethodPost, "/documents", CreateDocumentRequest{Type: "note", Title: "Plain"})

	body := map[string]any{"view": map[string]any{"tags": []string{"work"}}}
	resp := decode[DocumentListResponse](t, env.do(t, http.MethodPost, "/views/query", body))
	if resp.Total != 1 || resp.Documents[0].Title != "Tagged" {
		t.Fatalf("view result = %+v", resp)
	}

	bad := map[string]any{"view": map[string]any{"sort_key": "bogus"}}
	if w := env.do(t, http.MethodPost, "/views/query", bad); w.Code != http.StatusBadRequest {
		t.Fatalf("bad view = %d", w.Code)
	}
}

func TestIndexRoutes(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/documents", CreateDocumentRequest{Type: "note", Title: "Note"})

	w := env.do(t, http.MethodPost, "/index/rebuild", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("rebuild = %d", w.Code)
	}

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		resp := decode[IndexStatusResponse](t, env.do(t, http.MethodGet, "/index/status", nil))
		return !resp.Running
	}, "rebuild never finished")

	resp := decode[IndexStatusResponse](t, env.do(t, http.MethodGet, "/index/status", nil))
	if resp.Job == nil {
		t.Fatal("no job recorded")
	}
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t)
	secured := NewRouter(env.docs, nil, nil, true, "sekrit", nil)

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	w := httptest.NewRecorder()
	secured.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	w = httptest.NewRecorder()
	secured.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("with token = %d", w.Code)
	}
}
