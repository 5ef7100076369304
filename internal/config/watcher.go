package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dw96/odin-data/pkg/log"
)

const debounceDelay = 100 * time.Millisecond

// Watcher monitors the config file via fsnotify and delivers reloaded
// configuration through a callback. Reloads carry only the file's
// contents merged over defaults; flag precedence does not apply to
// runtime reloads.
type Watcher struct {
	path     string
	onReload func(Config)
	logger   log.Logger

	mu       sync.Mutex
	debounce *time.Timer
}

// NewWatcher creates a watcher for path. onReload runs on the
// watcher's goroutine after each debounced change.
func NewWatcher(path string, onReload func(Config), logger log.Logger) *Watcher {
	return &Watcher{path: path, onReload: onReload, logger: logger}
}

// Run watches the config file's directory until ctx is cancelled.
// Watching the directory rather than the file survives the
// rename-and-replace writes editors and config managers produce.
func (w *Watcher) Run(ctx context.Context) {
	if w.path == "" {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Error("config watcher: create failed", log.Err(err))
		return
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		w.logger.Error("config watcher: watch failed",
			log.String("dir", dir),
			log.Err(err),
		)
		return
	}

	base := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.debounceReload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher: error", log.Err(err))
		}
	}
}

func (w *Watcher) debounceReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(debounceDelay, w.reload)
}

func (w *Watcher) reload() {
	fc, err := LoadFileConfig(w.path)
	if err != nil {
		w.logger.Error("config watcher: reload failed",
			log.String("path", w.path),
			log.Err(err),
		)
		return
	}

	cfg := DefaultConfig()
	if err := ApplyFileConfig(&cfg, fc, nil); err != nil {
		w.logger.Error("config watcher: apply failed", log.Err(err))
		return
	}
	if err := cfg.Validate(); err != nil {
		w.logger.Error("config watcher: invalid configuration", log.Err(err))
		return
	}

	w.logger.Info("configuration reloaded", log.String("path", w.path))
	w.onReload(cfg)
}
