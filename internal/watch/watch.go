// Package watch signals when skillbook layer files change on disk, so a
// long-running process can reload its view after an external writer
// replaces a layer. The store's atomic rename makes every observed file a
// complete document.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrWatcherFailed indicates the filesystem watcher could not be created.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// Event reports one changed layer file.
type Event struct {
	Path      string
	Timestamp time.Time
}

// Watcher observes a skillbook base directory for layer file changes.
type Watcher struct {
	baseDir string
	watcher *fsnotify.Watcher
	events  chan Event
	stop    chan struct{}
	logger  *zap.Logger
}

// New creates a watcher over the skillbook tree rooted at baseDir. The
// base directory and any existing layer subdirectories are watched;
// subdirectories created later are picked up from their create events.
func New(baseDir string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	w := &Watcher{
		baseDir: baseDir,
		watcher: fsw,
		events:  make(chan Event, 16),
		stop:    make(chan struct{}),
		logger:  logger,
	}

	if err := fsw.Add(baseDir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("%w: watching %s: %v", ErrWatcherFailed, baseDir, err)
	}
	w.addExistingSubdirs()

	return w, nil
}

// Start begins forwarding layer changes to Events. It runs in a background
// goroutine until Stop is called or ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	go w.run(ctx)
}

// Events returns the channel of layer change events. Events are dropped,
// not queued, when the channel is full: a reload picks up all pending
// changes anyway.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Stop shuts the watcher down and releases its resources.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
	default:
		close(w.stop)
		_ = w.watcher.Close()
	}
}

func (w *Watcher) addExistingSubdirs() {
	entries, err := os.ReadDir(w.baseDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(w.baseDir, e.Name())
		if err := w.watcher.Add(dir); err != nil {
			w.logger.Warn("failed to watch layer directory",
				zap.String("dir", dir),
				zap.Error(err))
		}
	}
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ev)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}

	// A new subdirectory means a new layer family (languages/, projects/,
	// ...) appeared; start watching it.
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.watcher.Add(ev.Name); err != nil {
				w.logger.Warn("failed to watch new layer directory",
					zap.String("dir", ev.Name),
					zap.Error(err))
			}
			return
		}
	}

	if !strings.HasSuffix(ev.Name, ".json") {
		return
	}

	select {
	case w.events <- Event{Path: ev.Name, Timestamp: time.Now()}:
	default:
		// Channel full; the pending reload covers this change too.
	}
}
