// Package watch re-runs a callback when watched files change on disk.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	tferrors "github.com/tabflow/tabflow/pkg/errors"
)

// DefaultDebounce coalesces bursts of writes to one callback.
const DefaultDebounce = 500 * time.Millisecond

// Watcher monitors files for changes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]*fileState
	mu       sync.RWMutex
	debounce time.Duration
	logger   zerolog.Logger

	// OnChange runs after a watched file's size or modification time changes.
	OnChange func(ctx context.Context, path string) error
	// OnError receives callback and watcher errors. Path is empty for watcher errors.
	OnError func(path string, err error)
}

type fileState struct {
	lastModified time.Time
	size         int64
	processing   bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the debounce interval.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(w *Watcher) { w.logger = logger }
}

// New creates a watcher.
func New(opts ...Option) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, tferrors.Wrap(err, tferrors.CodeSource, "failed to create watcher")
	}
	w := &Watcher{
		watcher:  fsWatcher,
		files:    make(map[string]*fileState),
		debounce: DefaultDebounce,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Watch adds a file. Its parent directory is watched so editors that replace files
// are still seen.
func (w *Watcher) Watch(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return tferrors.Wrap(err, tferrors.CodeSource, "failed to resolve path").WithContext("path", path)
	}
	stat, err := os.Stat(absPath)
	if err != nil {
		return tferrors.Wrap(err, tferrors.CodeSource, "failed to stat file").WithContext("path", path)
	}

	w.mu.Lock()
	w.files[absPath] = &fileState{lastModified: stat.ModTime(), size: stat.Size()}
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(absPath)); err != nil {
		return tferrors.Wrap(err, tferrors.CodeSource, "failed to watch directory").WithContext("path", path)
	}
	w.logger.Debug().Str("path", absPath).Msg("watching")
	return nil
}

// Files returns the watched absolute paths.
func (w *Watcher) Files() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, 0, len(w.files))
	for p := range w.files {
		out = append(out, p)
	}
	return out
}

// Run dispatches change events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
		w.watcher.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			absPath, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			w.mu.RLock()
			state, watched := w.files[absPath]
			w.mu.RUnlock()
			if !watched {
				continue
			}

			if t, ok := timers[absPath]; ok {
				t.Stop()
			}
			timers[absPath] = time.AfterFunc(w.debounce, func() {
				w.handleChange(ctx, absPath, state)
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.report("", err)
		}
	}
}

func (w *Watcher) handleChange(ctx context.Context, path string, state *fileState) {
	if ctx.Err() != nil {
		return
	}
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
		w.report(path, err)
		return
	}

	w.mu.Lock()
	unchanged := stat.ModTime().Equal(state.lastModified) && stat.Size() == state.size
	state.lastModified = stat.ModTime()
	state.size = stat.Size()
	w.mu.Unlock()
	if unchanged {
		return
	}

	w.logger.Debug().Str("path", path).Int64("size", stat.Size()).Msg("file changed")
	if w.OnChange != nil {
		if err := w.OnChange(ctx, path); err != nil {
			w.report(path, err)
		}
	}
}

func (w *Watcher) report(path string, err error) {
	w.logger.Debug().Err(err).Str("path", path).Msg("watch error")
	if w.OnError != nil {
		w.OnError(path, err)
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
