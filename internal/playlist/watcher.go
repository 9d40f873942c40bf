package playlist

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
)

// debounce collapses the burst of events an editor produces on save.
const debounce = 100 * time.Millisecond

// Watcher reloads a playlist file into a Controller when it changes.
type Watcher struct {
	fs     afero.Fs
	path   string
	ctrl   *Controller
	logger *slog.Logger

	// OnReload is called after each successful reload.
	OnReload func(sources []string)
}

// NewWatcher returns a watcher for path.
func NewWatcher(fs afero.Fs, path string, ctrl *Controller, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{fs: fs, path: path, ctrl: ctrl, logger: logger}
}

// Run watches until ctx is done. The directory is watched rather than the
// file so that editors which replace the file on save are followed.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch playlist: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.logger.Info("playlist_watch_started", "path", w.path)

	target := filepath.Clean(w.path)
	timer := time.NewTimer(debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				timer.Reset(debounce)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("playlist_watch_error", "error", err)

		case <-timer.C:
			w.Reload()
		}
	}
}

// Reload reads the file and stages it on the controller. A file that
// cannot be read or is empty leaves the current playlist in place.
func (w *Watcher) Reload() {
	sources, err := LoadFile(w.fs, w.path)
	if err != nil {
		w.logger.Warn("playlist_reload_failed", "path", w.path, "error", err)
		return
	}
	if err := w.ctrl.Replace(sources); err != nil {
		w.logger.Warn("playlist_reload_failed", "path", w.path, "error", err)
		return
	}
	w.logger.Info("playlist_reload_staged", "path", w.path, "sources", len(sources))
	if w.OnReload != nil {
		w.OnReload(sources)
	}
}
