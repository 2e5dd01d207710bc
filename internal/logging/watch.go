package logging

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
)

// WatchLevel re-reads LOG_LEVEL from envFile whenever it changes and applies
// it to the default logger. The parent directory is watched because editors
// usually replace the file instead of writing it in place.
// The watcher stops when ctx is cancelled.
func WatchLevel(ctx context.Context, envFile string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file system watcher: %w", err)
	}

	dir := filepath.Dir(envFile)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(envFile)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				slog.Debug("Log level watcher stopped")
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				reloadLevel(target)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Log level watcher error", "error", err)
			}
		}
	}()

	slog.Debug("Watching env file for log level changes", "path", target)
	return nil
}

func reloadLevel(path string) {
	values, err := godotenv.Read(path)
	if err != nil {
		slog.Warn("Failed to re-read env file", "path", path, "error", err)
		return
	}
	name, ok := values["LOG_LEVEL"]
	if !ok {
		return
	}
	old := Level()
	if l := SetLevel(name); l != old {
		slog.Info("Log level changed", "event", "log_level_reload", "from", old.String(), "to", l.String())
	}
}
