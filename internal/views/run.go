package views

import (
	"strings"
	"time"

	"github.com/starford/laguz/internal/models"
)

// maxAncestorDepth guards the ancestor walk against a corrupted (cyclic)
// parent graph; the store does not validate acyclicity.
const maxAncestorDepth = 128

// Run applies a view to the collection: the filter stages in fixed order,
// then the single-key sort. The input slice is not modified and no errors
// are raised for malformed entities (missing fields read as absent).
func Run(entities []models.Document, v View, paths PathResolver) []models.Document {
	parents := make(map[string]string, len(entities))
	for i := range entities {
		parents[entities[i].ID] = entities[i].ParentID
	}

	now := time.Now()
	var out []models.Document
	for i := range entities {
		if matches(&entities[i], v, parents, paths, now) {
			out = append(out, entities[i])
		}
	}

	sortEntities(out, v, paths)
	return out
}

func matches(d *models.Document, v View, parents map[string]string, paths PathResolver, now time.Time) bool {
	// 1. Soft-deleted entities never appear in view results.
	if d.Lifecycle != models.LifecycleActive {
		return false
	}
	// 2. Declared type, unless any.
	if v.Type != "" && d.Type != v.Type {
		return false
	}
	// 3. All declared tags present (case-insensitive).
	for _, tag := range v.Tags {
		if !d.HasTag(tag) {
			return false
		}
	}
	// 4. Status set.
	if len(v.Statuses) > 0 && !containsStatus(v.Statuses, d.Props.Status) {
		return false
	}
	// 5. Priority set.
	if len(v.Priorities) > 0 && !containsPriority(v.Priorities, d.Props.Priority) {
		return false
	}
	// 6. Favorite flag.
	if v.FavoriteOnly && !d.Props.Favorite {
		return false
	}
	// 7. Descendant-of root (ancestor-chain walk over the parent map).
	if v.AncestorID != "" && !isDescendant(d.ID, v.AncestorID, parents) {
		return false
	}
	// 8. Path substring.
	if v.PathContains != "" {
		p := ""
		if paths != nil {
			p = paths.Path(d.ID)
		}
		if !strings.Contains(strings.ToLower(p), strings.ToLower(v.PathContains)) {
			return false
		}
	}
	// 9. Due range with explicit missing semantics.
	if v.Due != nil {
		if d.Props.Due == "" {
			if !v.Due.AllowMissing {
				return false
			}
		} else {
			if v.Due.From != "" && d.Props.Due < v.Due.From {
				return false
			}
			if v.Due.To != "" && d.Props.Due > v.Due.To {
				return false
			}
		}
	}
	// 10. Updated-within threshold.
	if v.UpdatedWithinDays > 0 {
		cutoff := now.AddDate(0, 0, -v.UpdatedWithinDays)
		if d.UpdatedAt.Before(cutoff) {
			return false
		}
	}
	// 11. Free-text substring over title + flattened body.
	if v.Text != "" {
		needle := strings.ToLower(v.Text)
		hay := strings.ToLower(d.Title + "\n" + d.BodyText())
		if !strings.Contains(hay, needle) {
			return false
		}
	}
	return true
}

// isDescendant walks the parent chain from id looking for root. The parent
// graph is assumed acyclic; the depth guard turns a corrupted chain into a
// negative answer instead of an endless walk.
func isDescendant(id, root string, parents map[string]string) bool {
	cur := parents[id]
	for depth := 0; cur != "" && depth < maxAncestorDepth; depth++ {
		if cur == root {
			return true
		}
		cur = parents[cur]
	}
	return false
}

func containsStatus(set []models.Status, s models.Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func containsPriority(set []models.Priority, p models.Priority) bool {
	for _, v := range set {
		if v == p {
			return true
		}
	}
	return false
}
