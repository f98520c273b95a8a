package tasks

import (
	"time"

	"github.com/starford/laguz/internal/models"
)

// Changes is the minimal write set that brings the persisted task rows for
// one note back in sync with a fresh extraction.
type Changes struct {
	Upserts   []models.TaskRow
	DeleteIDs []string
}

// Empty reports whether applying the changes would write nothing.
func (c Changes) Empty() bool {
	return len(c.Upserts) == 0 && len(c.DeleteIDs) == 0
}

// Diff compares existing rows against a fresh extraction:
//   - ids present in existing but absent from next are deleted;
//   - ids in next that are new or whose fingerprint changed are upserted,
//     preserving the original creation time and refreshing the update time;
//   - rows with an unchanged fingerprint produce no write at all.
func Diff(existing, next []models.TaskRow, now time.Time) Changes {
	old := make(map[string]models.TaskRow, len(existing))
	for _, r := range existing {
		old[r.ID] = r
	}

	var ch Changes
	seen := make(map[string]struct{}, len(next))
	for _, r := range next {
		seen[r.ID] = struct{}{}
		prev, ok := old[r.ID]
		if ok && prev.Fingerprint == r.Fingerprint {
			continue
		}
		if ok {
			r.CreatedAt = prev.CreatedAt
		} else {
			r.CreatedAt = now
		}
		r.UpdatedAt = now
		ch.Upserts = append(ch.Upserts, r)
	}

	for _, r := range existing {
		if _, ok := seen[r.ID]; !ok {
			ch.DeleteIDs = append(ch.DeleteIDs, r.ID)
		}
	}
	return ch
}
