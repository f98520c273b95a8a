package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/tasks"
)

const taskColumns = `id, note_id, block_id, item_id, text, status, priority, scheduled_day, due_day, next_action, order_key, project_id, fingerprint, created_at, updated_at`

const taskUpsertSQL = `
	INSERT INTO tasks (` + taskColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		text          = excluded.text,
		status        = excluded.status,
		priority      = excluded.priority,
		scheduled_day = excluded.scheduled_day,
		due_day       = excluded.due_day,
		next_action   = excluded.next_action,
		order_key     = excluded.order_key,
		project_id    = excluded.project_id,
		fingerprint   = excluded.fingerprint,
		updated_at    = excluded.updated_at
`

// ApplyTaskChanges applies a diff (upserts + deletes) in one transaction,
// so readers never observe a half-applied task update.
func (db *DB) ApplyTaskChanges(ch tasks.Changes) error {
	if ch.Empty() {
		return nil
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, r := range ch.Upserts {
		if err := upsertTask(tx, r); err != nil {
			return err
		}
	}
	if len(ch.DeleteIDs) > 0 {
		args := make([]any, len(ch.DeleteIDs))
		for i, id := range ch.DeleteIDs {
			args[i] = id
		}
		q := `DELETE FROM tasks WHERE id IN (?` + strings.Repeat(",?", len(ch.DeleteIDs)-1) + `)`
		if _, err := tx.Exec(q, args...); err != nil {
			return fmt.Errorf("store: delete tasks: %w", err)
		}
	}

	return tx.Commit()
}

// ReplaceTasks deletes every task row belonging to noteIDs and inserts rows
// in their place, all in one transaction. This is the full-replace path the
// rebuild job uses; rows get fresh timestamps.
func (db *DB) ReplaceTasks(noteIDs []string, rows []models.TaskRow, now time.Time) error {
	if len(noteIDs) == 0 {
		return nil
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	args := make([]any, len(noteIDs))
	for i, id := range noteIDs {
		args[i] = id
	}
	q := `DELETE FROM tasks WHERE note_id IN (?` + strings.Repeat(",?", len(noteIDs)-1) + `)`
	if _, err := tx.Exec(q, args...); err != nil {
		return fmt.Errorf("store: clear batch tasks: %w", err)
	}

	for _, r := range rows {
		r.CreatedAt = now
		r.UpdatedAt = now
		if err := upsertTask(tx, r); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func upsertTask(tx *sql.Tx, r models.TaskRow) error {
	_, err := tx.Exec(taskUpsertSQL,
		r.ID, r.NoteID, r.BlockID, r.ItemID, r.Text, r.Status, r.Priority,
		r.ScheduledDay, r.DueDay, r.NextAction, r.OrderKey, r.ProjectID,
		r.Fingerprint, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: upsert task %s: %w", r.ID, err)
	}
	return nil
}

// TasksForNote returns the persisted task rows for one note, in order-key
// order.
func (db *DB) TasksForNote(noteID string) ([]models.TaskRow, error) {
	rows, err := db.conn.Query(`SELECT `+taskColumns+` FROM tasks WHERE note_id = ? ORDER BY order_key`, noteID)
	if err != nil {
		return nil, fmt.Errorf("store: tasks for note: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// TaskFilter narrows ListTasks. Zero values mean "no constraint".
type TaskFilter struct {
	NoteID    string
	ProjectID string
	Status    models.Status
	DueFrom   string // inclusive YYYY-MM-DD
	DueTo     string // inclusive YYYY-MM-DD
	NextOnly  bool
}

// ListTasks returns task rows matching the filter, due-day then order-key
// ordered. The due range is a range query on the indexed due_day column.
func (db *DB) ListTasks(f TaskFilter) ([]models.TaskRow, error) {
	var conds []string
	var args []any
	if f.NoteID != "" {
		conds = append(conds, "note_id = ?")
		args = append(args, f.NoteID)
	}
	if f.ProjectID != "" {
		conds = append(conds, "project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if f.DueFrom != "" {
		conds = append(conds, "due_day != '' AND due_day >= ?")
		args = append(args, f.DueFrom)
	}
	if f.DueTo != "" {
		conds = append(conds, "due_day != '' AND due_day <= ?")
		args = append(args, f.DueTo)
	}
	if f.NextOnly {
		conds = append(conds, "next_action = 1")
	}

	q := `SELECT ` + taskColumns + ` FROM tasks`
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY due_day = '', due_day, note_id, order_key`

	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// DeleteTasksForNote removes every task row derived from noteID.
func (db *DB) DeleteTasksForNote(noteID string) error {
	if _, err := db.conn.Exec(`DELETE FROM tasks WHERE note_id = ?`, noteID); err != nil {
		return fmt.Errorf("store: delete tasks for note: %w", err)
	}
	return nil
}

// DeleteTasksNotIn removes task rows whose note id is not in keep. A fresh
// rebuild runs this orphan sweep before its first batch.
func (db *DB) DeleteTasksNotIn(keep []string) error {
	if len(keep) == 0 {
		return db.ClearTasks()
	}
	args := make([]any, len(keep))
	for i, id := range keep {
		args[i] = id
	}
	q := `DELETE FROM tasks WHERE note_id NOT IN (?` + strings.Repeat(",?", len(keep)-1) + `)`
	if _, err := db.conn.Exec(q, args...); err != nil {
		return fmt.Errorf("store: delete orphan tasks: %w", err)
	}
	return nil
}

// ClearTasks empties the task table.
func (db *DB) ClearTasks() error {
	if _, err := db.conn.Exec(`DELETE FROM tasks`); err != nil {
		return fmt.Errorf("store: clear tasks: %w", err)
	}
	return nil
}

// AllTaskIDs returns every persisted task row id. Used by rebuild tests to
// compare end states.
func (db *DB) AllTaskIDs() (map[string]struct{}, error) {
	rows, err := db.conn.Query(`SELECT id FROM tasks`)
	if err != nil {
		return nil, fmt.Errorf("store: all task ids: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

func collectTasks(rows *sql.Rows) ([]models.TaskRow, error) {
	var out []models.TaskRow
	for rows.Next() {
		var r models.TaskRow
		if err := rows.Scan(&r.ID, &r.NoteID, &r.BlockID, &r.ItemID, &r.Text, &r.Status, &r.Priority,
			&r.ScheduledDay, &r.DueDay, &r.NextAction, &r.OrderKey, &r.ProjectID,
			&r.Fingerprint, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
