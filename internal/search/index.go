// Package search maintains an ephemeral in-memory search index over the
// live document collection. The index is derived state: it is rebuilt from
// the store on startup and kept in sync with revision-based deltas, never
// persisted on its own.
package search

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/sahilm/fuzzy"

	"github.com/starford/laguz/internal/models"
)

// DefaultLimit caps search results when the caller passes a non-positive
// limit.
const DefaultLimit = 20

// Result is one search hit.
type Result struct {
	ID      string         `json:"id"`
	Type    models.DocType `json:"type"`
	Title   string         `json:"title"`
	Snippet string         `json:"snippet,omitempty"`
	Score   int            `json:"score"`
}

// doc is the projected search document for one entity.
type doc struct {
	ID       string
	Type     models.DocType
	Title    string
	Blob     string // tags + allow-listed property text
	Body     string
	Revision int64
}

// Index is the in-memory inverted index plus per-document projections.
// Structured properties are folded into the searchable blob only when their
// key is on the allow-list; changing the list invalidates the index so the
// next delta runs as a full rebuild.
type Index struct {
	mu      sync.RWMutex
	allowed map[string]struct{}
	docs    map[string]doc
	revs    map[string]int64
	tokens  map[string]map[string]struct{} // token → doc ids
	logger  *slog.Logger
}

// New creates an empty index with the given property allow-list.
func New(allowedProps []string, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	ix := &Index{logger: logger}
	ix.reset(allowedProps)
	return ix
}

func (ix *Index) reset(allowedProps []string) {
	ix.allowed = make(map[string]struct{}, len(allowedProps))
	for _, k := range allowedProps {
		ix.allowed[strings.ToLower(k)] = struct{}{}
	}
	ix.docs = make(map[string]doc)
	ix.revs = make(map[string]int64)
	ix.tokens = make(map[string]map[string]struct{})
}

// SetAllowedProps replaces the property allow-list and invalidates the
// index; the next Init or ApplyDelta repopulates it from scratch.
func (ix *Index) SetAllowedProps(keys []string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.reset(keys)
	ix.logger.Debug("search: allow-list changed, index invalidated", slog.Int("keys", len(keys)))
}

// Init performs a full rebuild from the live collection.
func (ix *Index) Init(entities []models.Document) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.initLocked(entities)
}

func (ix *Index) initLocked(entities []models.Document) {
	ix.docs = make(map[string]doc, len(entities))
	ix.revs = make(map[string]int64, len(entities))
	ix.tokens = make(map[string]map[string]struct{})
	for i := range entities {
		if entities[i].Lifecycle != models.LifecycleActive {
			continue
		}
		ix.insertLocked(&entities[i])
	}
}

// ApplyDelta reconciles the index against the incoming collection by
// comparing tracked revisions: entries that vanished are evicted, new ones
// inserted, changed ones evicted-then-reinserted. Any panic during delta
// application falls back to a full rebuild from the incoming collection.
func (ix *Index) ApplyDelta(entities []models.Document) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			ix.logger.Warn("search: delta failed, rebuilding", slog.Any("cause", r))
			ix.initLocked(entities)
		}
	}()

	incoming := make(map[string]*models.Document, len(entities))
	for i := range entities {
		if entities[i].Lifecycle != models.LifecycleActive {
			continue
		}
		incoming[entities[i].ID] = &entities[i]
	}

	// Removed: tracked but no longer in the collection.
	for id := range ix.revs {
		if _, ok := incoming[id]; !ok {
			ix.evictLocked(id)
		}
	}

	// Added and changed.
	for id, ent := range incoming {
		rev, tracked := ix.revs[id]
		switch {
		case !tracked:
			ix.insertLocked(ent)
		case rev != ent.Revision:
			// Update by replace: removal needs the prior projection.
			ix.evictLocked(id)
			ix.insertLocked(ent)
		}
	}
}

// insertLocked projects ent and adds it to the index.
func (ix *Index) insertLocked(ent *models.Document) {
	d := doc{
		ID:       ent.ID,
		Type:     ent.Type,
		Title:    ent.Title,
		Blob:     ix.projectBlob(ent),
		Body:     ent.BodyText(),
		Revision: ent.Revision,
	}
	ix.docs[d.ID] = d
	ix.revs[d.ID] = d.Revision
	for _, tok := range tokenize(d.Title + " " + d.Blob + " " + d.Body) {
		set, ok := ix.tokens[tok]
		if !ok {
			set = make(map[string]struct{})
			ix.tokens[tok] = set
		}
		set[d.ID] = struct{}{}
	}
}

// evictLocked removes a document from the index and tracking.
func (ix *Index) evictLocked(id string) {
	d, ok := ix.docs[id]
	if !ok {
		delete(ix.revs, id)
		return
	}
	for _, tok := range tokenize(d.Title + " " + d.Blob + " " + d.Body) {
		if set, ok := ix.tokens[tok]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(ix.tokens, tok)
			}
		}
	}
	delete(ix.docs, id)
	delete(ix.revs, id)
}

// projectBlob folds tags and allow-listed properties into one searchable
// string.
func (ix *Index) projectBlob(ent *models.Document) string {
	parts := append([]string(nil), ent.Tags...)
	if _, ok := ix.allowed["status"]; ok && ent.Props.Status != "" {
		parts = append(parts, string(ent.Props.Status))
	}
	if _, ok := ix.allowed["priority"]; ok && ent.Props.Priority != "" {
		parts = append(parts, string(ent.Props.Priority))
	}
	for k, v := range ent.Props.Extra {
		if _, ok := ix.allowed[k]; ok {
			parts = append(parts, v)
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}

// Search runs prefix and fuzzy matching over the indexed fields. An empty
// query yields an empty result set: search is opt-in, never a default
// listing. typeFilter narrows results to one entity type when non-empty.
func (ix *Index) Search(query string, typeFilter models.DocType, limit int) []Result {
	query = strings.TrimSpace(strings.ToLower(query))
	if query == "" {
		return nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	scores := make(map[string]int)

	// Prefix pass over the inverted index.
	for _, qt := range tokenize(query) {
		for tok, ids := range ix.tokens {
			if !strings.HasPrefix(tok, qt) {
				continue
			}
			weight := 2 * len(qt)
			if tok == qt {
				weight *= 2 // exact token beats prefix
			}
			for id := range ids {
				scores[id] += weight
			}
		}
	}

	// Fuzzy pass over titles.
	ids := make([]string, 0, len(ix.docs))
	titles := make([]string, 0, len(ix.docs))
	for id, d := range ix.docs {
		ids = append(ids, id)
		titles = append(titles, d.Title)
	}
	for _, m := range fuzzy.Find(query, titles) {
		scores[ids[m.Index]] += m.Score + len(query)
	}

	out := make([]Result, 0, len(scores))
	for id, score := range scores {
		d := ix.docs[id]
		if typeFilter != "" && d.Type != typeFilter {
			continue
		}
		out = append(out, Result{
			ID:      d.ID,
			Type:    d.Type,
			Title:   d.Title,
			Snippet: snippet(d.Body, query),
			Score:   score,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Has reports whether id is currently indexed. Used by tests.
func (ix *Index) Has(id string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.docs[id]
	return ok
}

// tokenize lowercases s and splits it into alphanumeric runs.
func tokenize(s string) []string {
	s = strings.ToLower(s)
	return strings.FieldsFunc(s, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return false
		default:
			return true
		}
	})
}

// snippet returns a short window of body around the first occurrence of
// query, or the leading body text when there is no direct hit.
func snippet(body, query string) string {
	const window = 60
	if body == "" {
		return ""
	}
	lower := strings.ToLower(body)
	idx := strings.Index(lower, query)
	if idx < 0 {
		if len(body) > 2*window {
			return body[:2*window] + "..."
		}
		return body
	}
	start := idx - window
	if start < 0 {
		start = 0
	}
	end := idx + len(query) + window
	if end > len(body) {
		end = len(body)
	}
	out := body[start:end]
	if start > 0 {
		out = "..." + out
	}
	if end < len(body) {
		out += "..."
	}
	return out
}

// String implements fmt.Stringer for debugging.
func (ix *Index) String() string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return fmt.Sprintf("search.Index{docs: %d, tokens: %d}", len(ix.docs), len(ix.tokens))
}
