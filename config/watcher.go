package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceInterval is the time to wait after the last file change
// before reloading.
const DefaultDebounceInterval = 250 * time.Millisecond

// ReloadFunc receives each successfully reloaded configuration.
type ReloadFunc func(ctx context.Context, cfg Config) error

// Logger is the logging surface the watcher needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

// WatcherConfig holds configuration for the file watcher.
type WatcherConfig struct {
	// Path is the configuration file to watch.
	Path string

	// Debounce collapses bursts of writes into one reload.
	Debounce time.Duration

	// OnReload is called with every valid reloaded configuration.
	OnReload ReloadFunc

	Logger Logger
}

// Watcher reloads configuration through a Loader whenever the watched file
// changes. Invalid configurations are logged and skipped.
type Watcher struct {
	mu sync.Mutex

	config    WatcherConfig
	loader    *Loader
	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
	done      chan struct{}
	running   bool

	debounceMu    sync.Mutex
	debounceTimer *time.Timer

	reloads  atomic.Int64
	failures atomic.Int64
}

// NewWatcher creates a watcher that reloads through loader.
func NewWatcher(loader *Loader, config WatcherConfig) (*Watcher, error) {
	if config.Path == "" {
		return nil, ErrNoWatchPath
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounceInterval
	}
	return &Watcher{config: config, loader: loader}, nil
}

// StartWatch starts watching the file's directory; editors often replace
// files by rename, which a watch on the file itself would miss.
func (w *Watcher) StartWatch(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	dir := filepath.Dir(w.config.Path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w.fsWatcher = watcher
	w.stopCh = make(chan struct{})
	w.done = make(chan struct{})
	w.running = true

	go w.processEvents(context.WithoutCancel(ctx), watcher.Events, watcher.Errors, w.stopCh, w.done)

	w.logInfo("Watching configuration file", "path", w.config.Path)
	return nil
}

// StopWatch stops watching and cancels any pending reload.
func (w *Watcher) StopWatch() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.stopCh)
	done := w.done
	watcher := w.fsWatcher
	w.fsWatcher = nil
	w.mu.Unlock()

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}
	w.debounceMu.Unlock()

	<-done
	if err := watcher.Close(); err != nil {
		return fmt.Errorf("failed to close file watcher: %w", err)
	}
	return nil
}

// IsWatching returns true if currently watching for configuration changes
func (w *Watcher) IsWatching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Reloads returns the number of successful and failed reloads so far.
func (w *Watcher) Reloads() (succeeded, failed int64) {
	return w.reloads.Load(), w.failures.Load()
}

func (w *Watcher) processEvents(ctx context.Context, eventsCh <-chan fsnotify.Event, errorsCh <-chan error, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	target := filepath.Clean(w.config.Path)
	for {
		select {
		case <-stop:
			return

		case event, ok := <-eventsCh:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logDebug("Configuration file changed", "path", event.Name, "op", event.Op.String())
			w.triggerReloadDebounced(ctx)

		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			w.logWarn("File watcher error", "error", err)
		}
	}
}

func (w *Watcher) triggerReloadDebounced(ctx context.Context) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.config.Debounce, func() {
		if !w.IsWatching() {
			return
		}
		w.reload(ctx)
	})
}

func (w *Watcher) reload(ctx context.Context) {
	var cfg Config
	if err := w.loader.Reload(ctx, &cfg); err != nil {
		w.failures.Add(1)
		w.logWarn("Configuration reload failed, keeping previous configuration", "path", w.config.Path, "error", err)
		return
	}

	if w.config.OnReload != nil {
		if err := w.config.OnReload(ctx, cfg); err != nil {
			w.failures.Add(1)
			w.logWarn("Configuration reload rejected", "path", w.config.Path, "error", err)
			return
		}
	}
	w.reloads.Add(1)
	w.logInfo("Configuration reloaded", "path", w.config.Path)
}

func (w *Watcher) logInfo(msg string, args ...any) {
	if w.config.Logger != nil {
		w.config.Logger.Info(msg, args...)
	}
}

func (w *Watcher) logWarn(msg string, args ...any) {
	if w.config.Logger != nil {
		w.config.Logger.Warn(msg, args...)
	}
}

func (w *Watcher) logDebug(msg string, args ...any) {
	if w.config.Logger != nil {
		w.config.Logger.Debug(msg, args...)
	}
}
