package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/models"
)

const documentColumns = `id, type, parent_id, title, blocks, tags, props, revision, lifecycle, vault_path, checksum, created_at, updated_at`

// PutDocument inserts or updates a document. The revision counter is
// maintained here: inserts start at 1, updates increment the stored value
// (the caller-supplied Revision is ignored). The written revision and
// timestamps are reflected back into doc.
func (db *DB) PutDocument(doc *models.Document, now time.Time) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	var rev int64
	var createdAt time.Time
	err = tx.QueryRow(`SELECT revision, created_at FROM documents WHERE id = ?`, doc.ID).Scan(&rev, &createdAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		rev = 0
		createdAt = now
	case err != nil:
		return fmt.Errorf("store: read revision: %w", err)
	}

	doc.Revision = rev + 1
	doc.CreatedAt = createdAt
	doc.UpdatedAt = now
	if doc.Lifecycle == "" {
		doc.Lifecycle = models.LifecycleActive
	}

	blocksJSON, _ := json.Marshal(doc.Blocks)
	tagsJSON, _ := json.Marshal(doc.Tags)
	propsJSON, _ := json.Marshal(doc.Props)

	_, err = tx.Exec(`
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type       = excluded.type,
			parent_id  = excluded.parent_id,
			title      = excluded.title,
			blocks     = excluded.blocks,
			tags       = excluded.tags,
			props      = excluded.props,
			revision   = excluded.revision,
			lifecycle  = excluded.lifecycle,
			vault_path = excluded.vault_path,
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at
	`, doc.ID, doc.Type, doc.ParentID, doc.Title, string(blocksJSON), string(tagsJSON), string(propsJSON),
		doc.Revision, doc.Lifecycle, doc.VaultPath, doc.Checksum, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: upsert document: %w", err)
	}

	return tx.Commit()
}

// GetDocument returns the document with id, or apperr.ErrNotFound.
func (db *DB) GetDocument(id string) (*models.Document, error) {
	row := db.conn.QueryRow(`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	return doc, err
}

// GetDocuments returns the documents for ids, in id order. Missing ids are
// silently skipped.
func (db *DB) GetDocuments(ids []string) ([]models.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id IN (?` +
		strings.Repeat(",?", len(ids)-1) + `) ORDER BY id`
	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: get documents: %w", err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

// ListDocuments returns all non-purged documents ordered by id. Trashed
// documents are included; read-side filters exclude them as needed.
func (db *DB) ListDocuments() ([]models.Document, error) {
	rows, err := db.conn.Query(`SELECT ` + documentColumns + ` FROM documents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list documents: %w", err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

// ListChildren returns the active documents whose parent is parentID.
func (db *DB) ListChildren(parentID string) ([]models.Document, error) {
	rows, err := db.conn.Query(`SELECT `+documentColumns+` FROM documents WHERE parent_id = ? AND lifecycle = ? ORDER BY title`, parentID, models.LifecycleActive)
	if err != nil {
		return nil, fmt.Errorf("store: list children: %w", err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

// ListIndexableNoteIDs returns the ids of all active notes, sorted. This
// is the snapshot a rebuild iterates over.
func (db *DB) ListIndexableNoteIDs() ([]string, error) {
	rows, err := db.conn.Query(`SELECT id FROM documents WHERE type = ? AND lifecycle = ? ORDER BY id`,
		models.DocTypeNote, models.LifecycleActive)
	if err != nil {
		return nil, fmt.Errorf("store: list note ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// SetLifecycle updates a document's lifecycle state, bumping its revision.
func (db *DB) SetLifecycle(id string, lc models.Lifecycle, now time.Time) error {
	res, err := db.conn.Exec(`UPDATE documents SET lifecycle = ?, revision = revision + 1, updated_at = ? WHERE id = ?`,
		lc, now, id)
	if err != nil {
		return fmt.Errorf("store: set lifecycle: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// SetParent moves a document under a new parent, bumping its revision.
func (db *DB) SetParent(id, parentID string, now time.Time) error {
	res, err := db.conn.Exec(`UPDATE documents SET parent_id = ?, revision = revision + 1, updated_at = ? WHERE id = ?`,
		parentID, now, id)
	if err != nil {
		return fmt.Errorf("store: set parent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// PurgeDocument hard-deletes a document: within one transaction the row and
// its task rows are removed and a tombstone keyed by id+revision is written.
func (db *DB) PurgeDocument(id string, now time.Time) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var rev int64
	err = tx.QueryRow(`SELECT revision FROM documents WHERE id = ?`, id).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: read revision: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: delete document: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM tasks WHERE note_id = ?`, id); err != nil {
		return fmt.Errorf("store: delete tasks: %w", err)
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO tombstones (id, revision, purged_at) VALUES (?, ?, ?)`, id, rev, now); err != nil {
		return fmt.Errorf("store: write tombstone: %w", err)
	}

	return tx.Commit()
}

// Tombstones returns all purge tombstones, newest first.
func (db *DB) Tombstones() ([]models.Tombstone, error) {
	rows, err := db.conn.Query(`SELECT id, revision, purged_at FROM tombstones ORDER BY purged_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: tombstones: %w", err)
	}
	defer rows.Close()

	var out []models.Tombstone
	for rows.Next() {
		var t models.Tombstone
		if err := rows.Scan(&t.ID, &t.Revision, &t.PurgedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// AllVaultChecksums returns vault_path → checksum for every mirrored
// document. Used by the vault reconcile pass.
func (db *DB) AllVaultChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT vault_path, checksum FROM documents WHERE vault_path != ''`)
	if err != nil {
		return nil, fmt.Errorf("store: vault checksums: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// GetDocumentByVaultPath returns the mirrored document for a vault path.
func (db *DB) GetDocumentByVaultPath(path string) (*models.Document, error) {
	row := db.conn.QueryRow(`SELECT `+documentColumns+` FROM documents WHERE vault_path = ?`, path)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	return doc, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(r rowScanner) (*models.Document, error) {
	var d models.Document
	var blocksJSON, tagsJSON, propsJSON string
	err := r.Scan(&d.ID, &d.Type, &d.ParentID, &d.Title, &blocksJSON, &tagsJSON, &propsJSON,
		&d.Revision, &d.Lifecycle, &d.VaultPath, &d.Checksum, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(blocksJSON), &d.Blocks)
	_ = json.Unmarshal([]byte(tagsJSON), &d.Tags)
	_ = json.Unmarshal([]byte(propsJSON), &d.Props)
	return &d, nil
}

func collectDocuments(rows *sql.Rows) ([]models.Document, error) {
	var out []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}
