package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/jking323/TaskHarvester/internal/extraction"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// DefaultDebounce is how long a file must stay quiet before it is loaded.
const DefaultDebounce = 500 * time.Millisecond

// Handler receives the documents loaded from one file.
type Handler func(ctx context.Context, path string, docs []extraction.SourceDocument)

// Watcher loads files dropped into a directory.
//
// Writers usually create a file and then write it in several chunks, so
// events for a path are debounced and the file is loaded once it has been
// quiet for the debounce interval. A file is loaded again only if its size
// or modification time changed.
type Watcher struct {
	dir      string
	defaults Defaults
	debounce time.Duration
	existing bool
	logger   *zap.Logger

	fsw *fsnotify.Watcher

	mu     sync.Mutex
	timers map[string]*time.Timer
	seen   map[string]stamp
}

type stamp struct {
	size    int64
	modTime time.Time
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet interval.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithExisting loads files already in the directory when Run starts.
func WithExisting(enabled bool) WatcherOption {
	return func(w *Watcher) { w.existing = enabled }
}

// WithWatcherLogger sets the logger.
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWatcher creates a watcher for dir.
func NewWatcher(dir string, defaults Defaults, opts ...WatcherOption) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("watch dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch dir %s is not a directory", dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	w := &Watcher{
		dir:      dir,
		defaults: defaults,
		debounce: DefaultDebounce,
		logger:   zap.NewNop(),
		fsw:      fsw,
		timers:   make(map[string]*time.Timer),
		seen:     make(map[string]stamp),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run watches until ctx is cancelled, calling handle for each loaded file.
// Handle runs on the Run goroutine, so files are processed one at a time.
func (w *Watcher) Run(ctx context.Context, handle Handler) error {
	defer w.Close()

	if err := w.fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.logger.Info("watching directory", zap.String("dir", w.dir), zap.Duration("debounce", w.debounce))

	ready := make(chan string, 64)

	if w.existing {
		files, err := listDir(w.dir)
		if err != nil {
			return err
		}
		for _, f := range files {
			if filepath.Dir(f) == filepath.Clean(w.dir) {
				w.load(ctx, f, handle)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			w.stopTimers()
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				w.schedule(ctx, event.Name, ready)
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				w.forget(event.Name)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))

		case path := <-ready:
			w.load(ctx, path, handle)
		}
	}
}

// Close releases the underlying watcher.
func (w *Watcher) Close() error {
	w.stopTimers()
	return w.fsw.Close()
}

func (w *Watcher) schedule(ctx context.Context, path string, ready chan<- string) {
	if isHidden(path) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		select {
		case ready <- path:
		case <-ctx.Done():
		}
	})
}

func (w *Watcher) forget(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
		delete(w.timers, path)
	}
	delete(w.seen, path)
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}

func (w *Watcher) load(ctx context.Context, path string, handle Handler) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
		return
	}
	st := stamp{size: info.Size(), modTime: info.ModTime()}

	w.mu.Lock()
	prev, ok := w.seen[path]
	w.seen[path] = st
	w.mu.Unlock()
	if ok && prev.size == st.size && prev.modTime.Equal(st.modTime) {
		return
	}

	docs, err := LoadFile(path, w.defaults)
	if err != nil {
		w.logger.Warn("failed to load dropped file", zap.String("path", path), zap.Error(err))
		return
	}
	w.logger.Debug("file loaded", zap.String("path", path), zap.Int("documents", len(docs)))
	handle(ctx, path, docs)
}
