package settings

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/hetangai/mediaqueue/internal/log"
)

// WatchForObservability logs settings-file changes as they happen. It does
// not trigger or gate any reload — Resolve already reads the file fresh on
// every call — so this exists purely to make config edits visible in the
// log stream. Safe to call with an empty path (no-op).
func WatchForObservability(ctx context.Context, path string) {
	if path == "" {
		return
	}
	logger := log.WithComponent("settings")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn().Err(err).Msg("failed to start settings file watcher")
		return
	}

	dir := filepath.Dir(path)
	file := filepath.Base(path)
	if err := watcher.Add(dir); err != nil {
		logger.Warn().Err(err).Str("dir", dir).Msg("failed to watch settings directory")
		_ = watcher.Close()
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
				if filepath.Base(ev.Name) != file {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
					logger.Info().Str("path", ev.Name).Str("op", ev.Op.String()).Msg("settings file changed, next claim will pick it up")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn().Err(err).Msg("settings watcher error")
			}
		}
	}()
}
