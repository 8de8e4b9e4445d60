package boot

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
)

const defaultWatchDebounce = 200 * time.Millisecond

type (
	// Reloader is anything that can re-read its external inputs.
	Reloader interface {
		Reload(context.Context) error
	}

	// Watcher reloads a source when configuration files in a directory change.
	// Editors usually write a file in several steps, so events are coalesced
	// and a single reload runs once the directory has been quiet for the debounce delay.
	Watcher struct {
		watcher  *fsnotify.Watcher
		target   Reloader
		logger   hclog.Logger
		debounce time.Duration
		exts     map[string]bool

		mu      sync.Mutex
		reloads int
	}

	// WatcherOption configures a Watcher.
	WatcherOption func(*Watcher)
)

// WithWatcherLogger sets the logger for the watcher.
func WithWatcherLogger(l hclog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = l.Named("watcher")
	}
}

// WithDebounce sets how long the directory must be quiet before a reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// NewWatcher creates a watcher that reloads target on changes to .yml, .yaml
// and .json files in the watched directories.
func NewWatcher(target Reloader, opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:  fw,
		target:   target,
		logger:   hclog.NewNullLogger(),
		debounce: defaultWatchDebounce,
		exts:     map[string]bool{".yml": true, ".yaml": true, ".json": true},
	}
	for _, o := range opts {
		o(w)
	}
	return w, nil
}

// Watch adds a directory to watch. Directories are watched rather than files
// so that rename-on-save editors are caught.
func (w *Watcher) Watch(dir string) error {
	if err := w.watcher.Add(dir); err != nil {
		w.logger.Error("failed to watch directory", "path", dir, "error", err)
		return err
	}
	w.logger.Debug("watching directory for changes", "path", dir)
	return nil
}

// Run blocks until ctx is done or the watcher is closed, reloading the target
// after each burst of relevant events.
func (w *Watcher) Run(ctx context.Context) {
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Trace("configuration file changed", "file", event.Name, "op", event.Op.String())
			timer.Reset(w.debounce)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("configuration watcher error", "error", err)
		case <-timer.C:
			w.reload(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Close stops the underlying watcher; Run returns shortly after.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// Reloads returns how many reloads the watcher has triggered.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

func (w *Watcher) reload(ctx context.Context) {
	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()

	if err := w.target.Reload(ctx); err != nil {
		w.logger.Warn("reload after file change failed, keeping last good configuration", "error", err)
		return
	}
	w.logger.Info("configuration reloaded after file change")
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	return w.exts[filepath.Ext(event.Name)]
}
