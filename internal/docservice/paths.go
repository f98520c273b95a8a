package docservice

import (
	"sync"

	"github.com/starford/laguz/internal/store"
)

// pathSep joins ancestor titles into a display path.
const pathSep = " / "

// pathCache memoizes the materialized hierarchical path of each document.
// Paths are resolved lazily by walking the parent chain and cached until
// the next mutation invalidates the whole map; hierarchy edits are rare
// next to view queries, so wholesale invalidation keeps it simple.
type pathCache struct {
	mu    sync.Mutex
	store store.Store
	memo  map[string]string
}

func newPathCache(s store.Store) *pathCache {
	return &pathCache{store: s, memo: make(map[string]string)}
}

// Path implements views.PathResolver. Unknown ids resolve to "".
func (c *pathCache) Path(id string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pathLocked(id, 0)
}

func (c *pathCache) pathLocked(id string, depth int) string {
	if depth > 128 {
		return ""
	}
	if p, ok := c.memo[id]; ok {
		return p
	}
	doc, err := c.store.GetDocument(id)
	if err != nil {
		c.memo[id] = ""
		return ""
	}
	p := doc.Title
	if doc.ParentID != "" {
		if parent := c.pathLocked(doc.ParentID, depth+1); parent != "" {
			p = parent + pathSep + doc.Title
		}
	}
	c.memo[id] = p
	return p
}

// Invalidate drops every cached path. Any rename or move can change an
// arbitrary subtree, so the cache resets rather than chasing descendants.
func (c *pathCache) Invalidate() {
	c.mu.Lock()
	c.memo = make(map[string]string)
	c.mu.Unlock()
}

var _ interface{ Path(string) string } = (*pathCache)(nil)
