// Package watch detects external modifications to the board document using
// fsnotify. The save manager pauses the watcher around its own writes so
// they are not reported back as external changes.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	bkerrors "github.com/c0deZ3R0/go-board-kit/errors"
	"github.com/c0deZ3R0/go-board-kit/logging"
)

// DefaultSettleDelay is how long after Resume events are still attributed to
// the editor's own write. Atomic writes surface as rename events that can
// arrive slightly after the write call returns.
const DefaultSettleDelay = 150 * time.Millisecond

// Watcher tracks one document path and remembers whether it changed outside
// the editor since the last Acknowledge. It serves both as the conflict
// rule's change detector and as the save manager's change guard.
type Watcher struct {
	path string
	fs   *fsnotify.Watcher

	mu       sync.Mutex
	paused   bool
	resumeAt time.Time
	changed  bool

	settle   time.Duration
	stopOnce sync.Once
	done     chan struct{}
	logger   *logging.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithSettleDelay overrides the post-resume suppression window.
func WithSettleDelay(d time.Duration) Option {
	return func(w *Watcher) { w.settle = d }
}

// WithLogger sets the watcher logger.
func WithLogger(logger *logging.Logger) Option {
	return func(w *Watcher) { w.logger = logger }
}

// New creates a watcher for one document path and starts its event loop.
// The containing directory is watched rather than the file itself, because
// atomic saves replace the file by rename.
func New(path string, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, bkerrors.NewWithComponent(bkerrors.OpWatch, "fsnotify", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, bkerrors.NewWithComponent(bkerrors.OpWatch, "fsnotify", err)
	}

	w := &Watcher{
		path:   path,
		fs:     fsw,
		settle: DefaultSettleDelay,
		done:   make(chan struct{}),
		logger: logging.Default().WithComponent("watch"),
	}
	for _, opt := range opts {
		opt(w)
	}

	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.LogError(context.Background(), err, "watch error",
				slog.String("path", w.path))
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
		return
	}
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.paused || time.Since(w.resumeAt) < w.settle {
		// Our own save in progress or just finished.
		return
	}
	if !w.changed {
		w.logger.Info("external change detected",
			slog.String("path", w.path),
			slog.String("op", ev.Op.String()))
	}
	w.changed = true
}

// Pause suppresses change attribution until Resume. Used by the save
// manager around its own writes.
func (w *Watcher) Pause() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.paused = true
}

// Resume re-enables change attribution after a short settle window.
func (w *Watcher) Resume() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.paused = false
	w.resumeAt = time.Now()
}

// HasExternalChange reports whether the path changed outside the editor
// since the last Acknowledge. The path argument is accepted for interface
// compatibility; the watcher only tracks its configured path.
func (w *Watcher) HasExternalChange(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, bkerrors.New(bkerrors.OpWatch, err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.changed, nil
}

// Acknowledge clears the pending external-change flag, typically after a
// reload or an overwriting save resolved the divergence.
func (w *Watcher) Acknowledge() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.changed = false
}

// Close stops the event loop and releases the fsnotify watcher.
func (w *Watcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fs.Close()
	})
	if err != nil {
		return bkerrors.NewWithComponent(bkerrors.OpClose, "fsnotify", err)
	}
	return nil
}
