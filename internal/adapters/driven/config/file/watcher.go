package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads the config file whenever it changes on disk.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *zap.Logger
}

// NewWatcher starts watching path. The parent directory is watched so
// that editors which replace the file on save are still noticed.
func NewWatcher(path string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{path: abs, watcher: w, logger: logger}, nil
}

// Run delivers every successfully reloaded config to onChange until ctx
// is cancelled. A file that fails to load is logged and ignored, so the
// running config stays in effect.
func (w *Watcher) Run(ctx context.Context, onChange func(*Config)) error {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			// Truncation on save shows up as a write of an empty file.
			if info, err := os.Stat(w.path); err != nil || info.Size() == 0 {
				continue
			}

			cfg, err := Load(w.path)
			if err != nil {
				w.logger.Warn("ignoring config reload", zap.String("path", w.path), zap.Error(err))
				continue
			}
			w.logger.Info("config reloaded", zap.String("path", w.path))
			onChange(cfg)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

// Watch is a convenience that creates a watcher and runs it.
func Watch(ctx context.Context, path string, logger *zap.Logger, onChange func(*Config)) error {
	w, err := NewWatcher(path, logger)
	if err != nil {
		return err
	}
	return w.Run(ctx, onChange)
}
