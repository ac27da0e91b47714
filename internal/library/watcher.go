package library

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/starford/setlist/internal/storage"
)

const reconcileDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the library root and imports file
// changes until ctx is cancelled. cb (if non-nil) is called after each
// change that reached the songs collection.
//
// Directories created at runtime are added to the watch list. Renames
// trigger a debounced Sync that drops records whose files are gone.
func (l *Library) Watch(ctx context.Context, cb EventCallback) error {
	root := l.store.Root()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	l.logger.Info("watcher: started", slog.String("root", root))

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
			l.logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			l.reconcile(ctx, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			l.handle(ctx, w, root, ev, cb, scheduleReconcile)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			l.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func (l *Library) handle(ctx context.Context, w *fsnotify.Watcher, root string, ev fsnotify.Event, cb EventCallback, scheduleReconcile func()) {
	absPath := ev.Name

	if ev.Op&fsnotify.Create != 0 {
		if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
			if strings.HasPrefix(info.Name(), ".") {
				return
			}
			if addErr := addDirsRecursive(w, absPath); addErr != nil {
				l.logger.Warn("watcher: add new dir failed",
					slog.String("path", absPath),
					slog.String("error", addErr.Error()))
			}
			l.importDir(ctx, root, absPath, cb)
			return
		}
	}

	if !storage.IsSongFile(absPath) {
		return
	}
	rel, relErr := filepath.Rel(root, absPath)
	if relErr != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		_, changed, err := l.Import(ctx, rel)
		if err != nil {
			l.logger.Warn("watcher: import failed", slog.String("path", rel), slog.String("error", err.Error()))
			return
		}
		if !changed {
			return
		}
		kind := "updated"
		if ev.Op&fsnotify.Create != 0 {
			kind = "created"
		}
		l.logger.Debug("watcher: imported", slog.String("path", rel), slog.String("op", kind))
		notify(cb, kind, rel)

	case ev.Op&fsnotify.Remove != 0:
		if err := l.Remove(ctx, rel); err != nil {
			l.logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
			return
		}
		notify(cb, "deleted", rel)

	case ev.Op&fsnotify.Rename != 0:
		// Rename fires on the old path only; the new path arrives as Create.
		if err := l.Remove(ctx, rel); err != nil {
			l.logger.Warn("watcher: rename delete failed", slog.String("path", rel), slog.String("error", err.Error()))
		} else {
			notify(cb, "deleted", rel)
		}
		scheduleReconcile()
	}
}

func (l *Library) reconcile(ctx context.Context, cb EventCallback) {
	res, err := l.Sync(ctx)
	if err != nil {
		l.logger.Warn("reconcile: sync failed", slog.String("error", err.Error()))
		return
	}
	if res.Imported+res.Removed > 0 {
		l.logger.Debug("reconcile: done",
			slog.Int("imported", res.Imported),
			slog.Int("removed", res.Removed))
		notify(cb, "updated", "")
	}
}

// importDir imports song files found in a newly created directory.
func (l *Library) importDir(ctx context.Context, root, dirPath string, cb EventCallback) {
	_ = filepath.WalkDir(dirPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !storage.IsSongFile(p) {
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if _, changed, err := l.Import(ctx, rel); err == nil && changed {
			l.logger.Debug("watcher: imported from new dir", slog.String("path", rel))
			notify(cb, "created", rel)
		}
		return nil
	})
}

// addDirsRecursive adds root and its non-hidden subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}

func notify(cb EventCallback, kind, rel string) {
	if cb != nil {
		cb(kind, rel)
	}
}
