package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/vk/ucdpipe/internal/ctxlog"
)

// WatchVersions watches the local mirror root and calls onVersion with the
// name of every version directory created after the call. It blocks until
// ctx is done.
func (l *Local) WatchVersions(ctx context.Context, onVersion func(ctx context.Context, version string)) error {
	logger := ctxlog.FromContext(ctx).With("root", l.Root)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(l.Root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", l.Root, err)
	}
	logger.Info("Watching mirror for new versions.")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) {
				continue
			}
			info, err := os.Stat(ev.Name)
			if err != nil || !info.IsDir() {
				continue
			}
			version := filepath.Base(ev.Name)
			logger.Info("New version directory detected.", "version", version)
			onVersion(ctx, version)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error.", "error", err)
		}
	}
}
