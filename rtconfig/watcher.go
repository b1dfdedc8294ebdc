package rtconfig

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeCallback is invoked with the old and new configuration after a
// successful hot reload.
type ChangeCallback func(oldConfig, newConfig *Config)

// Watcher watches a single config file and reloads it on write, debouncing
// rapid successive writes the way editors/deploy tooling tend to produce
// them.
type Watcher struct {
	path   string
	loader *Loader

	mu     sync.RWMutex
	config *Config

	fsWatcher *fsnotify.Watcher

	callbacksMu sync.RWMutex
	callbacks   []ChangeCallback

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher loads the initial configuration from path and prepares a
// file-system watch, which does not start until Start is called.
func NewWatcher(path string, loader *Loader) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	cfg, err := loader.LoadFromFile(path)
	if err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("load initial config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		path:      path,
		loader:    loader,
		config:    cfg,
		fsWatcher: fsWatcher,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start begins watching the config file for changes in a background
// goroutine.
func (w *Watcher) Start() error {
	if err := w.fsWatcher.Add(w.path); err != nil {
		return fmt.Errorf("watch config file: %w", err)
	}
	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop cancels the watch and waits for its goroutine to exit.
func (w *Watcher) Stop() error {
	w.cancel()
	err := w.fsWatcher.Close()
	w.wg.Wait()
	return err
}

// Config returns the most recently loaded configuration.
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// OnChange registers a callback fired, in its own goroutine, after every
// successful reload.
func (w *Watcher) OnChange(cb ChangeCallback) {
	w.callbacksMu.Lock()
	w.callbacks = append(w.callbacks, cb)
	w.callbacksMu.Unlock()
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	var debounce *time.Timer
	const debounceWindow = 250 * time.Millisecond

	for {
		select {
		case <-w.ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceWindow, w.reload)

		case _, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) reload() {
	fresh, err := w.loader.LoadFromFile(w.path)
	if err != nil {
		return
	}

	w.mu.Lock()
	old := w.config
	w.config = fresh
	w.mu.Unlock()

	w.callbacksMu.RLock()
	callbacks := append([]ChangeCallback(nil), w.callbacks...)
	w.callbacksMu.RUnlock()

	for _, cb := range callbacks {
		go func(cb ChangeCallback) {
			defer func() { recover() }()
			cb(old, fresh)
		}(cb)
	}
}
