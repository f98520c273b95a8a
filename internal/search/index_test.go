package search

import (
	"testing"

	"github.com/starford/laguz/internal/models"
)

func entity(id, title, body string, rev int64) models.Document {
	return models.Document{
		ID:        id,
		Type:      models.DocTypeNote,
		Title:     title,
		Lifecycle: models.LifecycleActive,
		Revision:  rev,
		Blocks:    []models.Block{{ID: "b", Kind: models.BlockParagraph, Text: body}},
	}
}

func TestSearch_EmptyQueryYieldsNothing(t *testing.T) {
	ix := New(nil, nil)
	ix.Init([]models.Document{entity("a", "Alpha", "body", 1)})

	if got := ix.Search("", "", 10); got != nil {
		t.Fatalf("empty query returned %d results", len(got))
	}
	if got := ix.Search("   ", "", 10); got != nil {
		t.Fatalf("blank query returned %d results", len(got))
	}
}

func TestSearch_PrefixAndFuzzy(t *testing.T) {
	ix := New(nil, nil)
	ix.Init([]models.Document{
		entity("a", "Grocery list", "buy oat milk", 1),
		entity("b", "Meeting notes", "quarterly planning", 1),
		entity("c", "Groundwork", "foundations", 1),
	})

	got := ix.Search("groc", "", 10)
	if len(got) == 0 || got[0].ID != "a" {
		t.Fatalf("prefix search = %+v, want grocery first", got)
	}

	// Fuzzy: a typo-ish subsequence still finds the title.
	got = ix.Search("mtng", "", 10)
	found := false
	for _, r := range got {
		if r.ID == "b" {
			found = true
		}
	}
	if !found {
		t.Errorf("fuzzy search missed 'Meeting notes': %+v", got)
	}
}

func TestSearch_TypeFilterAndLimit(t *testing.T) {
	ix := New(nil, nil)
	folder := entity("f", "projects", "", 1)
	folder.Type = models.DocTypeFolder
	ix.Init([]models.Document{
		folder,
		entity("n1", "project plan", "", 1),
		entity("n2", "project notes", "", 1),
	})

	got := ix.Search("project", models.DocTypeFolder, 10)
	if len(got) != 1 || got[0].ID != "f" {
		t.Fatalf("type filter = %+v, want only the folder", got)
	}

	got = ix.Search("project", "", 2)
	if len(got) != 2 {
		t.Fatalf("limit not applied: %d results", len(got))
	}
}

func TestApplyDelta_MatchesFromScratchInit(t *testing.T) {
	x1 := entity("x", "First title", "original body", 1)
	other := entity("y", "Stable", "unchanged", 1)

	ix := New(nil, nil)
	ix.Init([]models.Document{x1, other})

	// add z, update x, remove y, one delta per step.
	z := entity("z", "Newcomer", "fresh", 1)
	ix.ApplyDelta([]models.Document{x1, other, z})

	x2 := x1
	x2.Title = "Second title"
	x2.Revision = 2
	ix.ApplyDelta([]models.Document{x2, other, z})

	final := []models.Document{x2, z}
	ix.ApplyDelta(final)

	fresh := New(nil, nil)
	fresh.Init(final)

	if ix.Len() != fresh.Len() {
		t.Fatalf("delta index has %d docs, from-scratch has %d", ix.Len(), fresh.Len())
	}
	for _, id := range []string{"x", "z"} {
		if !ix.Has(id) {
			t.Errorf("delta index missing %s", id)
		}
	}
	if ix.Has("y") {
		t.Error("removed document still indexed")
	}

	// The updated title is searchable, the stale one is not.
	if got := ix.Search("second", "", 10); len(got) != 1 || got[0].ID != "x" {
		t.Errorf("updated title not found: %+v", got)
	}
	if got := ix.Search("first", "", 10); len(got) != 0 {
		t.Errorf("stale title still indexed: %+v", got)
	}
}

func TestApplyDelta_SkipsInactive(t *testing.T) {
	ix := New(nil, nil)
	active := entity("a", "Keep", "", 1)
	trashed := entity("b", "Gone", "", 1)
	trashed.Lifecycle = models.LifecycleTrashed

	ix.ApplyDelta([]models.Document{active, trashed})
	if ix.Has("b") {
		t.Error("trashed document was indexed")
	}
	if !ix.Has("a") {
		t.Error("active document not indexed")
	}
}

func TestAllowList_GatesProperties(t *testing.T) {
	docWithProps := entity("a", "Note", "", 1)
	docWithProps.Props.Extra = map[string]string{"client": "acme-corp", "secret": "hunter2"}

	ix := New([]string{"client"}, nil)
	ix.Init([]models.Document{docWithProps})

	if got := ix.Search("acme", "", 10); len(got) != 1 {
		t.Errorf("allow-listed property not searchable: %+v", got)
	}
	if got := ix.Search("hunter2", "", 10); len(got) != 0 {
		t.Errorf("non-listed property leaked into index: %+v", got)
	}
}

func TestSetAllowedProps_InvalidatesIndex(t *testing.T) {
	doc := entity("a", "Note", "", 1)
	doc.Props.Extra = map[string]string{"client": "acme"}

	ix := New(nil, nil)
	ix.Init([]models.Document{doc})
	if got := ix.Search("acme", "", 10); len(got) != 0 {
		t.Fatal("property indexed without allow-list")
	}

	ix.SetAllowedProps([]string{"client"})
	if ix.Len() != 0 {
		t.Fatal("index not invalidated by allow-list change")
	}

	// Next sync (a delta over the same collection) repopulates fully.
	ix.ApplyDelta([]models.Document{doc})
	if got := ix.Search("acme", "", 10); len(got) != 1 {
		t.Errorf("rebuilt index missing property text: %+v", got)
	}
}

func TestTagsAreSearchable(t *testing.T) {
	doc := entity("a", "Note", "", 1)
	doc.Tags = []string{"deepwork"}

	ix := New(nil, nil)
	ix.Init([]models.Document{doc})
	if got := ix.Search("deepwork", "", 10); len(got) != 1 {
		t.Errorf("tag not searchable: %+v", got)
	}
}
