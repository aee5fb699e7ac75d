package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"modelboard/internal/logging"
)

// WatchOverlay re-applies the settings overlay whenever the file changes,
// until the context ends. The parent directory is watched so editors that
// replace the file (rename+create) are still observed. Reload failures keep
// the current settings.
func WatchOverlay(ctx context.Context, store *Store, logger *logging.Logger) error {
	path := store.Current().OverlayPath
	if path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		target := filepath.Clean(path)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				// Rebuild from the environment so keys removed from
				// the overlay revert rather than stick.
				updated := Load(logger)
				store.Replace(updated)
				if logger != nil {
					logger.Info("settings overlay reloaded", map[string]string{
						"path":     path,
						"settings": updated.String(),
					})
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if logger != nil {
					logger.Warn("settings overlay watch error", map[string]string{
						"error": err.Error(),
					})
				}
			}
		}
	}()

	return nil
}
