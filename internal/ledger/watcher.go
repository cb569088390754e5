package ledger

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/ocrlabel/internal/storage"
)

// Watch event kinds.
const (
	EventCreated = "created"
	EventDeleted = "deleted"
)

// EventCallback is called for each image file appearing in or leaving the
// watched directory. name is relative to the directory.
type EventCallback func(kind string, name string)

// Watch starts an fsnotify watcher on dir (non-recursive) and reports image
// files until ctx is cancelled. Atomic-write temp files are ignored; their
// rename into place arrives as a Create for the final name.
func Watch(ctx context.Context, dir string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("dir", dir))

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			if strings.HasPrefix(name, ".") || !storage.IsImage(name) {
				continue
			}

			var kind string
			switch {
			case ev.Op&fsnotify.Create != 0:
				kind = EventCreated
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				kind = EventDeleted
			default:
				continue
			}
			logger.Debug("watcher: event", slog.String("name", name), slog.String("op", kind))
			if cb != nil {
				cb(kind, name)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
