package reconcile

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/atlas/internal/catalog"
)

// EventCallback is called after a watcher-driven reconciliation flush.
// kind is "changed" (per path) or "synced" (once per flush).
type EventCallback func(kind string, path string)

const flushDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the content-store working tree and
// feeds change batches through SyncPaths until ctx is cancelled. Changes
// are debounced so one editor save or git checkout produces a single
// reconciliation pass; after each pass the catalog cache is refreshed and
// cb (if non-nil) is invoked.
//
// New directories created at runtime are automatically added to the watch
// list. The .git directory and temp files are ignored.
func Watch(ctx context.Context, rec *Reconciler, cache *catalog.Cache, root string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	pending := make(map[string]struct{})
	var flushTimer *time.Timer
	var flushCh <-chan time.Time

	scheduleFlush := func() {
		if flushTimer == nil {
			flushTimer = time.NewTimer(flushDelay)
			flushCh = flushTimer.C
		} else {
			flushTimer.Reset(flushDelay)
		}
	}

	flush := func() {
		if len(pending) == 0 {
			return
		}
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		pending = make(map[string]struct{})

		res := rec.SyncPaths(ctx, paths)
		if len(res.Errors) > 0 {
			for _, e := range res.Errors {
				logger.Warn("watcher: sync error", slog.String("error", e))
			}
		}
		if err := cache.RefreshNow(ctx); err != nil {
			logger.Warn("watcher: cache refresh failed", slog.String("error", err.Error()))
		}
		logger.Debug("watcher: flushed",
			slog.Int("paths", len(paths)),
			slog.Int("created", res.Created),
			slog.Int("deleted", res.Deleted))
		if cb != nil {
			for _, p := range paths {
				cb("changed", p)
			}
			cb("synced", "")
		}
	}

	for {
		select {
		case <-ctx.Done():
			if flushTimer != nil {
				flushTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-flushCh:
			flush()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ignored(ev.Name) {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					// Queue files already present in the new directory.
					queueDir(ev.Name, root, pending)
					scheduleFlush()
					continue
				}
			}

			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil {
				continue
			}
			pending[filepath.ToSlash(rel)] = struct{}{}
			scheduleFlush()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// ignored filters git internals and atomic-write temp files.
func ignored(absPath string) bool {
	base := filepath.Base(absPath)
	if strings.HasPrefix(base, ".atlas-tmp-") {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(absPath), "/") {
		if part == ".git" {
			return true
		}
	}
	return false
}

// queueDir adds every file under a newly created directory to the pending set.
func queueDir(dir, root string, pending map[string]struct{}) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || ignored(path) {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		pending[filepath.ToSlash(rel)] = struct{}{}
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
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return w.Add(path)
		}
		return nil
	})
}
