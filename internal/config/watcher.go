package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/logging"
)

const debounceDelay = 300 * time.Millisecond

// Watcher reloads the config file on change and pushes the runtime fields
// into a Settings value. Invalid edits are logged and ignored.
type Watcher struct {
	path     string
	settings *Settings
	log      *logging.Logger
	fw       *fsnotify.Watcher

	mu        sync.Mutex
	callbacks []func(*Config)

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// WatchSettings starts watching path. The parent directory is watched rather
// than the file so editors that replace the file on save are still seen.
func WatchSettings(path string, settings *Settings, log *logging.Logger) (*Watcher, error) {
	if log == nil {
		log = logging.Nop()
	}
	path = expandPath(path)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	w := &Watcher{
		path:     path,
		settings: settings,
		log:      log.WithComponent("config"),
		fw:       fw,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// OnChange registers a callback invoked after a successful reload.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	w.callbacks = append(w.callbacks, fn)
	w.mu.Unlock()
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.done
	return nil
}

func (w *Watcher) loop() {
	defer close(w.done)
	defer w.fw.Close()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceDelay, w.reload)

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Warn("file watcher error: %v", err)

		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadFromPath(w.path)
	if err != nil {
		w.log.Warn("reload failed: %v", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		w.log.Warn("ignoring invalid config: %v", err)
		return
	}

	if w.settings != nil {
		w.settings.Apply(cfg)
	}
	w.log.Info("configuration reloaded (speech=%v)", cfg.Speech.Enabled)

	w.mu.Lock()
	callbacks := append([]func(*Config){}, w.callbacks...)
	w.mu.Unlock()
	for _, fn := range callbacks {
		fn(cfg)
	}
}
