// Package watch ingests files dropped into a directory.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sujanshetty01/OMD/pkg/logging"
)

// Session is the progress session drop-folder ingestions publish to.
const Session = "watch"

// DefaultDebounce is how long a file must be quiet before it is ingested.
const DefaultDebounce = 500 * time.Millisecond

// Handler ingests one file.
type Handler func(ctx context.Context, path string) error

// Config configures a Watcher.
type Config struct {
	Dir      string
	Debounce time.Duration
	// Supports filters files by path; every file is accepted when nil.
	Supports func(path string) bool
	Handler  Handler
	Logger   *slog.Logger
}

// Watcher monitors a directory and hands settled files to its handler.
type Watcher struct {
	dir      string
	watcher  *fsnotify.Watcher
	files    map[string]*fileState
	mu       sync.Mutex
	debounce time.Duration
	supports func(path string) bool
	handler  Handler
	logger   *slog.Logger
}

type fileState struct {
	lastModified time.Time
	size         int64
	processing   bool
}

// New creates a watcher on cfg.Dir, creating the directory if needed.
func New(cfg Config) (*Watcher, error) {
	if cfg.Handler == nil {
		return nil, fmt.Errorf("watch: handler is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create watch directory: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}

	return &Watcher{
		dir:      dir,
		watcher:  fsWatcher,
		files:    make(map[string]*fileState),
		debounce: cfg.Debounce,
		supports: cfg.Supports,
		handler:  cfg.Handler,
		logger:   logging.Or(cfg.Logger),
	}, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Run starts the watch loop. Blocks until ctx is cancelled, then closes
// the underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	timers := make(map[string]*time.Timer)
	var timerMu sync.Mutex
	defer func() {
		timerMu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		timerMu.Unlock()
		w.watcher.Close()
	}()

	w.logger.Info("watching drop folder", "dir", w.dir, "debounce", w.debounce)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			path, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			if w.supports != nil && !w.supports(path) {
				continue
			}

			// Debounce rapid writes
			timerMu.Lock()
			if t, exists := timers[path]; exists {
				t.Stop()
			}
			timers[path] = time.AfterFunc(w.debounce, func() {
				w.handleChange(ctx, path)
			})
			timerMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "dir", w.dir, "error", err)
		}
	}
}

func (w *Watcher) state(path string) *fileState {
	w.mu.Lock()
	defer w.mu.Unlock()
	st, ok := w.files[path]
	if !ok {
		st = &fileState{}
		w.files[path] = st
	}
	return st
}

func (w *Watcher) handleChange(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	state := w.state(path)

	w.mu.Lock()
	if state.processing {
		w.mu.Unlock()
		return
	}
	state.processing = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		state.processing = false
		w.mu.Unlock()
	}()

	stat, err := os.Stat(path)
	if err != nil {
		w.logger.Debug("dropped file vanished", "path", path, "error", err)
		return
	}
	if stat.IsDir() {
		return
	}

	w.mu.Lock()
	unchanged := stat.ModTime().Equal(state.lastModified) && stat.Size() == state.size
	if !unchanged {
		state.lastModified = stat.ModTime()
		state.size = stat.Size()
	}
	w.mu.Unlock()
	if unchanged {
		return
	}

	w.logger.Info("ingesting dropped file", "path", path)
	if err := w.handler(ctx, path); err != nil {
		w.logger.Warn("drop-folder ingestion failed", "path", path, "error", err)
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
