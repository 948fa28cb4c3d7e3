package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"driverforge/internal/logging"
)

// Watcher reloads the logging configuration when the config file changes
// on disk, so log categories can be toggled without restarting a long
// pipeline run.
type Watcher struct {
	watcher   *fsnotify.Watcher
	workspace string
}

// NewWatcher starts watching the workspace config directory. The directory
// is watched rather than the file so editors that replace-on-save still
// trigger events.
func NewWatcher(workspace string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	dir := filepath.Dir(Path(workspace))
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	return &Watcher{watcher: fw, workspace: workspace}, nil
}

// Run processes filesystem events until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	configName := filepath.Base(Path(w.workspace))
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != configName {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := logging.ReloadConfig(); err != nil {
				logging.Get(logging.CategoryConfig).Warn("Config reload failed: %v", err)
				continue
			}
			logging.Get(logging.CategoryConfig).Info("Config reloaded after %s", event.Op)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryConfig).Warn("Watcher error: %v", err)
		}
	}
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
