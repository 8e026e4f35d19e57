// Package inbox watches a directory and stores every file dropped into it
// in a folder's file store.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/maruel/conclave/internal/models"
)

// DoneDir is the subdirectory processed files are moved to.
const DoneDir = "done"

// Ingester stores a file from disk in a folder.
type Ingester interface {
	IngestFile(ctx context.Context, folderID, path string) (*models.WorkspaceFile, error)
}

// Watcher ingests files dropped into a directory.
type Watcher struct {
	dir      string
	folderID string
	ing      Ingester
	// Quiet is how long a file must stay unmodified before it is ingested.
	Quiet time.Duration
}

// New returns a watcher of dir feeding folderID.
func New(dir, folderID string, ing Ingester) *Watcher {
	return &Watcher{dir: dir, folderID: folderID, ing: ing, Quiet: time.Second}
}

// Run watches until ctx is canceled. Files already present are ingested
// first.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Join(w.dir, DoneDir), 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return fmt.Errorf("failed to create inbox: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	slog.InfoContext(ctx, "Watching inbox", "dir", w.dir, "folder", w.folderID)

	ready := make(chan string)
	quit := make(chan struct{})
	defer close(quit)
	timers := map[string]*time.Timer{}
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()
	schedule := func(path string) {
		if t, ok := timers[path]; ok {
			t.Reset(w.Quiet)
			return
		}
		timers[path] = time.AfterFunc(w.Quiet, func() {
			select {
			case ready <- path:
			case <-quit:
			}
		})
	}

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to list inbox: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() && !skip(e.Name()) {
			schedule(filepath.Join(w.dir, e.Name()))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if skip(filepath.Base(event.Name)) {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				schedule(event.Name)
			}
		case path := <-ready:
			delete(timers, path)
			w.process(ctx, path)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "Inbox watcher error", "err", err)
		}
	}
}

// process ingests path and moves it to the done directory.
func (w *Watcher) process(ctx context.Context, path string) {
	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() {
		return
	}
	f, err := w.ing.IngestFile(ctx, w.folderID, path)
	if err != nil {
		slog.WarnContext(ctx, "Failed to ingest inbox file", "path", path, "err", err)
		return
	}
	dst := filepath.Join(w.dir, DoneDir, filepath.Base(path))
	if _, err := os.Stat(dst); err == nil {
		dst = filepath.Join(w.dir, DoneDir, fmt.Sprintf("%d-%s", time.Now().UnixNano(), filepath.Base(path)))
	} else if !errors.Is(err, os.ErrNotExist) {
		slog.WarnContext(ctx, "Failed to stat inbox destination", "path", dst, "err", err)
	}
	if err := os.Rename(path, dst); err != nil {
		slog.WarnContext(ctx, "Failed to move inbox file", "path", path, "err", err)
		return
	}
	slog.InfoContext(ctx, "Ingested inbox file", "name", f.Name, "id", f.ID)
}

// skip ignores hidden and partially downloaded files.
func skip(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".part") || strings.HasSuffix(name, ".tmp") || name == DoneDir
}
