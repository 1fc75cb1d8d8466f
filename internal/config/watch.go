package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the handoff phrase list when the config file changes on disk.
// Only the phrase list is hot-swapped; everything else requires a restart.
// Returns immediately when the file's directory cannot be watched.
func Watch(ctx context.Context, cfg *Config, path string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("config watch disabled", "error", err)
		return
	}

	// Watch the directory, not the file: editors replace files on save,
	// which drops a direct file watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		slog.Warn("config watch disabled", "path", path, "error", err)
		watcher.Close()
		return
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				fresh, err := Load(path)
				if err != nil {
					slog.Warn("config reload failed", "error", err)
					continue
				}
				cfg.SetHandoffPhrases(fresh.Handoff.Phrases)
				slog.Info("handoff phrases reloaded", "count", len(fresh.Handoff.Phrases))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("config watch error", "error", err)
			}
		}
	}()
}
