// Package tasks implements the pure task extraction and diff pipeline:
// note blocks in, minimal task-row changes out. Nothing in this package
// touches the store or the clock except Diff, which takes the time as an
// argument.
package tasks

import "github.com/starford/laguz/internal/models"

// Extract derives task rows from a note's checklist blocks. One row is
// produced per checklist item, with a deterministic composite id and a
// fingerprint over the semantically relevant fields. Non-indexable
// documents yield nil. Timestamps are left zero; Diff assigns them.
func Extract(doc *models.Document) []models.TaskRow {
	if doc == nil || !doc.Indexable() {
		return nil
	}

	var rows []models.TaskRow
	order := 0
	for _, blk := range doc.Blocks {
		if blk.Kind != models.BlockChecklist {
			continue
		}
		for _, it := range blk.Items {
			row := models.TaskRow{
				ID:           models.TaskID(doc.ID, blk.ID, it.ID),
				NoteID:       doc.ID,
				BlockID:      blk.ID,
				ItemID:       it.ID,
				Text:         it.Text,
				Status:       itemStatus(it),
				Priority:     it.Priority,
				ScheduledDay: it.ScheduledDay,
				DueDay:       it.DueDay,
				NextAction:   it.NextAction,
				OrderKey:     order,
				ProjectID:    doc.ParentID,
			}
			row.Fingerprint = Fingerprint(row)
			rows = append(rows, row)
			order++
		}
	}
	return rows
}

func itemStatus(it models.ListItem) models.Status {
	if it.Checked {
		return models.StatusDone
	}
	return models.StatusTodo
}
