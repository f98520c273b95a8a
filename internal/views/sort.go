package views

import (
	"sort"
	"strings"

	"github.com/starford/laguz/internal/models"
)

var priorityRank = map[models.Priority]int{
	models.PriorityHigh: 0,
	models.PriorityMed:  1,
	models.PriorityLow:  2,
}

var statusRank = map[models.Status]int{
	models.StatusDoing: 0,
	models.StatusTodo:  1,
	models.StatusDone:  2,
}

func sortEntities(docs []models.Document, v View, paths PathResolver) {
	key := v.SortKey
	if key == "" {
		key = SortUpdated
	}

	sort.SliceStable(docs, func(i, j int) bool {
		a, b := &docs[i], &docs[j]
		less, eq := compare(a, b, key, paths)
		if !eq {
			if v.SortDesc {
				return !less
			}
			return less
		}
		// Missing due dates sort after present ones regardless of
		// direction, so that branch resolves before desc inversion.
		if key == SortDue {
			am, bm := a.Props.Due == "", b.Props.Due == ""
			if am != bm {
				return bm
			}
		}
		return tieBreak(a, b, key)
	})
}

// compare returns (a<b, a==b) for the primary key. For due, entities with
// no date compare equal to each other and "greater" than any dated entity;
// the equal path is resolved in sortEntities so the missing group stays
// last under both directions.
func compare(a, b *models.Document, key SortKey, paths PathResolver) (less, eq bool) {
	switch key {
	case SortTitle:
		at, bt := strings.ToLower(a.Title), strings.ToLower(b.Title)
		return at < bt, at == bt
	case SortUpdated:
		return a.UpdatedAt.Before(b.UpdatedAt), a.UpdatedAt.Equal(b.UpdatedAt)
	case SortDue:
		am, bm := a.Props.Due == "", b.Props.Due == ""
		if am || bm {
			return false, true
		}
		return a.Props.Due < b.Props.Due, a.Props.Due == b.Props.Due
	case SortPriority:
		ar, br := rankOrLast(priorityRank, a.Props.Priority), rankOrLast(priorityRank, b.Props.Priority)
		return ar < br, ar == br
	case SortStatus:
		ar, br := rankOrLast(statusRank, a.Props.Status), rankOrLast(statusRank, b.Props.Status)
		return ar < br, ar == br
	case SortType:
		ar, br := typeRank(a.Type), typeRank(b.Type)
		return ar < br, ar == br
	case SortPath:
		ap, bp := resolvedPath(a.ID, paths), resolvedPath(b.ID, paths)
		return ap < bp, ap == bp
	default:
		return a.UpdatedAt.Before(b.UpdatedAt), a.UpdatedAt.Equal(b.UpdatedAt)
	}
}

func tieBreak(a, b *models.Document, key SortKey) bool {
	switch key {
	case SortTitle:
		return a.ID < b.ID
	case SortUpdated:
		at, bt := strings.ToLower(a.Title), strings.ToLower(b.Title)
		if at != bt {
			return at < bt
		}
		return a.ID < b.ID
	case SortDue:
		// Among equal (or jointly missing) dates, most recently touched
		// first.
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID < b.ID
	default:
		at, bt := strings.ToLower(a.Title), strings.ToLower(b.Title)
		if at != bt {
			return at < bt
		}
		return a.ID < b.ID
	}
}

func rankOrLast[K comparable](ranks map[K]int, k K) int {
	if r, ok := ranks[k]; ok {
		return r
	}
	return len(ranks)
}

func typeRank(t models.DocType) int {
	if t == models.DocTypeFolder {
		return 0
	}
	return 1
}

func resolvedPath(id string, paths PathResolver) string {
	if paths == nil {
		return ""
	}
	return strings.ToLower(paths.Path(id))
}
