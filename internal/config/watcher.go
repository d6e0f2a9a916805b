package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Nash0810/minibalance/internal/logging"
)

// Watcher watches the config file and triggers reloads on change.
type Watcher struct {
	path     string
	log      *logging.Logger
	onChange func(*Config) error
	watcher  *fsnotify.Watcher
}

// NewWatcher creates a config file watcher. The containing directory is
// watched rather than the file itself so editor atomic renames still fire.
func NewWatcher(path string, log *logging.Logger, onChange func(*Config) error) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	return &Watcher{
		path:     path,
		log:      log,
		onChange: onChange,
		watcher:  watcher,
	}, nil
}

// Start blocks watching for changes until the context is canceled. Reloads
// are debounced so a burst of write events applies once.
func (w *Watcher) Start(ctx context.Context) {
	w.log.Info("config_watcher_started", "file", w.path)

	var debounce *time.Timer
	const debounceDelay = 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			w.log.Info("config_watcher_stopped")
			w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}

			w.log.Info("config_file_changed", "event", event.Op.String())
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("config_watcher_error", "error", err.Error())
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.Error("config_reload_failed", "error", err.Error())
		return
	}
	if err := w.onChange(cfg); err != nil {
		w.log.Error("config_apply_failed", "error", err.Error())
		return
	}
	w.log.Info("config_reloaded")
}
