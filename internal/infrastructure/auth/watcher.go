package auth

import (
	"context"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/harpou/ai-gateway/internal/infrastructure/config"
	"github.com/harpou/ai-gateway/pkg/safego"
)

// Watcher hot-reloads the principal map when the config file changes.
// Backends and tools stay boot-immutable; only users are re-read.
type Watcher struct {
	path    string
	store   *Store
	watcher *fsnotify.Watcher
	logger  *zap.Logger
}

// NewWatcher creates a watcher over the given config file path. An empty
// path (config came entirely from defaults and env) disables watching.
func NewWatcher(path string, store *Store, logger *zap.Logger) (*Watcher, error) {
	if path == "" {
		return &Watcher{store: store, logger: logger}, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{
		path:    path,
		store:   store,
		watcher: fsw,
		logger:  logger.With(zap.String("component", "principal-watcher")),
	}, nil
}

// Start begins watching in the background until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	if w.watcher == nil {
		return
	}

	w.logger.Info("Watching config for principal changes", zap.String("path", w.path))

	safego.Go(w.logger, "principal-watcher", func() {
		defer w.watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				w.reload()
				// Editors replace files on save; re-add the path so
				// subsequent writes keep arriving.
				if event.Op&fsnotify.Create != 0 || strings.Contains(event.Name, w.path) {
					_ = w.watcher.Add(w.path)
				}
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("Config watch error", zap.Error(err))
			}
		}
	})
}

func (w *Watcher) reload() {
	cfg, err := config.Load()
	if err != nil {
		w.logger.Warn("Config reload failed, keeping current principals", zap.Error(err))
		return
	}
	w.store.Reload(cfg.Users)
	w.logger.Info("Principals reloaded from config")
}
