package vault

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/laguz/internal/docservice"
	"github.com/starford/laguz/internal/parser"
)

// reconcileDelay debounces the reconcile pass scheduled after renames.
const reconcileDelay = 200 * time.Millisecond

// Mirror ingests vault files into the document collection.
type Mirror struct {
	fs     *FS
	docs   *docservice.Service
	logger *slog.Logger
}

// NewMirror wires the mirror to its vault and document service.
func NewMirror(fsys *FS, docs *docservice.Service, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{fs: fsys, docs: docs, logger: logger}
}

// Sync walks the vault and brings the collection up to date:
//   - new/changed files are parsed and imported
//   - mirror documents whose files vanished from disk are trashed
func (m *Mirror) Sync(ctx context.Context) error {
	metas, err := m.fs.List()
	if err != nil {
		return err
	}
	stored, err := m.docs.VaultChecksums(ctx)
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, meta := range metas {
		disk[meta.Path] = struct{}{}
		if stored[meta.Path] == meta.Checksum {
			continue
		}
		if err := m.importPath(ctx, meta.Path); err != nil {
			m.logger.Warn("vault: import failed",
				slog.String("path", meta.Path), slog.String("error", err.Error()))
		} else {
			m.logger.Debug("vault: imported", slog.String("path", meta.Path))
		}
	}

	for p := range stored {
		if _, ok := disk[p]; !ok {
			if err := m.docs.DropVaultPath(ctx, p); err != nil {
				m.logger.Warn("vault: drop failed",
					slog.String("path", p), slog.String("error", err.Error()))
			} else {
				m.logger.Debug("vault: dropped stale", slog.String("path", p))
			}
		}
	}
	return nil
}

// importPath reads, parses, and imports one file.
func (m *Mirror) importPath(ctx context.Context, rel string) error {
	data, err := m.fs.Read(rel)
	if err != nil {
		return err
	}
	res, err := parser.Parse(data)
	if err != nil {
		return err
	}
	_, err = m.docs.ImportVault(ctx, docservice.ImportInput{
		VaultPath: rel,
		Checksum:  Sum(data),
		Title:     res.Title,
		Tags:      res.Tags,
		Props:     res.Props,
		Blocks:    res.Blocks,
	})
	return err
}

// Watch starts an fsnotify watcher on the vault root and processes file
// change events until ctx is cancelled.
//
// New directories created at runtime are added to the watch list. Rename
// events fire on the old path only, so the old document is dropped
// immediately and a short reconcile pass catches the file's new home.
func (m *Mirror) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, m.fs.Root()); err != nil {
		return err
	}
	m.logger.Info("vault: watcher started", slog.String("root", m.fs.Root()))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			m.logger.Info("vault: watcher stopped")
			return nil

		case <-reconcileCh:
			if err := m.Sync(ctx); err != nil {
				m.logger.Warn("vault: reconcile failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			m.handleEvent(ctx, w, ev, scheduleReconcile)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.logger.Error("vault: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

func (m *Mirror) handleEvent(ctx context.Context, w *fsnotify.Watcher, ev fsnotify.Event, scheduleReconcile func()) {
	absPath := ev.Name

	if ev.Op&fsnotify.Create != 0 {
		if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
			if addErr := addDirsRecursive(w, absPath); addErr != nil {
				m.logger.Warn("vault: add new dir failed",
					slog.String("path", absPath), slog.String("error", addErr.Error()))
			}
			// Import any .md files already inside.
			m.importDir(ctx, absPath)
			return
		}
	}

	if !strings.HasSuffix(absPath, ".md") {
		return
	}
	rel, relErr := filepath.Rel(m.fs.Root(), absPath)
	if relErr != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		if err := m.importPath(ctx, rel); err != nil {
			m.logger.Warn("vault: import failed",
				slog.String("path", rel), slog.String("error", err.Error()))
			return
		}
		m.logger.Debug("vault: imported", slog.String("path", rel))

	case ev.Op&fsnotify.Remove != 0:
		if err := m.docs.DropVaultPath(ctx, rel); err != nil {
			m.logger.Warn("vault: drop failed",
				slog.String("path", rel), slog.String("error", err.Error()))
			return
		}
		m.logger.Debug("vault: dropped", slog.String("path", rel))

	case ev.Op&fsnotify.Rename != 0:
		if err := m.docs.DropVaultPath(ctx, rel); err != nil {
			m.logger.Warn("vault: rename drop failed",
				slog.String("path", rel), slog.String("error", err.Error()))
		}
		scheduleReconcile()
	}
}

// importDir imports any .md files found in a newly created directory.
func (m *Mirror) importDir(ctx context.Context, dirPath string) {
	_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".md") {
			return nil
		}
		rel, relErr := filepath.Rel(m.fs.Root(), path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if impErr := m.importPath(ctx, rel); impErr == nil {
			m.logger.Debug("vault: imported from new dir", slog.String("path", rel))
		}
		return nil
	})
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
