// Package watcher turns filesystem events below the monitored directory
// into batches of changed paths for targeted runs.
//
// Events are coalesced: a batch is delivered once no new event has arrived
// for the debounce delay. A batch the handler refuses, typically because a
// run is already in progress, is kept and retried after the next delay.
package watcher

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"media-compressor/internal/logging"
	"media-compressor/internal/metrics"
)

// DefaultDebounce is used when Options.Debounce is zero.
const DefaultDebounce = 5 * time.Second

// Batch is one set of coalesced changes.
type Batch struct {
	// Paths are the changed file paths, sorted.
	Paths []string
	// Full is set when a watched directory disappeared; its files are
	// unknown, so only a full run can reconcile them.
	Full bool
}

// Options configures a Watcher.
type Options struct {
	Root     string
	Debounce time.Duration
	// IsExcluded reports directories that must not be watched. May be nil.
	IsExcluded func(dir string) bool
	// Handle receives each batch. Returning an error keeps the batch for
	// the next attempt.
	Handle func(Batch) error
}

// Watcher watches a directory tree.
type Watcher struct {
	opts Options
	fsw  *fsnotify.Watcher
	log  *logging.Logger

	mu      sync.Mutex
	watched map[string]bool
	pending map[string]bool
	full    bool
	timer   *time.Timer
	closed  bool

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a watcher. Call Start to begin watching.
func New(opts Options) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		metrics.WatcherErrors.Inc()
		return nil, err
	}
	return &Watcher{
		opts:    opts,
		fsw:     fsw,
		log:     logging.WithSource("Watcher"),
		watched: make(map[string]bool),
		pending: make(map[string]bool),
		done:    make(chan struct{}),
	}, nil
}

// Start adds every directory below the root and starts processing events.
func (w *Watcher) Start() error {
	if _, err := os.Stat(w.opts.Root); err != nil {
		return err
	}
	n := w.addTree(w.opts.Root)
	w.log.Info("Watching %d directories below %s", n, w.opts.Root)

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Close stops watching. A pending batch is dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	close(w.done)
	err := w.fsw.Close()
	w.wg.Wait()
	metrics.WatchedDirectories.Set(0)
	return err
}

// addTree watches dir and every directory below it, returning how many
// were added.
func (w *Watcher) addTree(dir string) int {
	added := 0
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			w.log.Warn("Failed to walk %s: %v", path, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.opts.Root && (strings.HasPrefix(d.Name(), ".") || w.excluded(path)) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.log.Warn("Failed to add path to watcher %s: %v", path, err)
			metrics.WatcherErrors.Inc()
			return nil
		}
		w.mu.Lock()
		w.watched[path] = true
		w.mu.Unlock()
		metrics.WatchedDirectories.Inc()
		added++
		return nil
	})
	if err != nil {
		w.log.Error("Failed to walk %s for watcher: %v", dir, err)
		metrics.WatcherErrors.Inc()
	}
	return added
}

func (w *Watcher) excluded(dir string) bool {
	return w.opts.IsExcluded != nil && w.opts.IsExcluded(dir)
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error("Watcher error: %v", err)
			metrics.WatcherErrors.Inc()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if rel, err := filepath.Rel(w.opts.Root, event.Name); err != nil || isHidden(rel) {
		return
	}
	metrics.WatcherEventsTotal.WithLabelValues(eventType(event.Op)).Inc()

	switch {
	case event.Op&fsnotify.Create != 0:
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if w.excluded(event.Name) {
				return
			}
			w.addTree(event.Name)
			// Files may have landed before the watch was in place.
			w.queueFiles(event.Name)
			return
		}
		w.queue(event.Name)

	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.mu.Lock()
		wasDir := w.watched[event.Name]
		if wasDir {
			for dir := range w.watched {
				if dir == event.Name || strings.HasPrefix(dir, event.Name+string(filepath.Separator)) {
					delete(w.watched, dir)
					metrics.WatchedDirectories.Dec()
				}
			}
			w.full = true
		}
		w.mu.Unlock()
		if wasDir {
			w.arm()
			return
		}
		w.queue(event.Name)

	case event.Op&fsnotify.Write != 0:
		w.queue(event.Name)
	}
}

// queueFiles queues every file below dir.
func (w *Watcher) queueFiles(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			w.queue(path)
		}
		return nil
	})
}

func (w *Watcher) queue(path string) {
	if w.excluded(filepath.Dir(path)) {
		return
	}
	w.mu.Lock()
	w.pending[path] = true
	w.mu.Unlock()
	w.arm()
}

// arm (re)starts the debounce timer.
func (w *Watcher) arm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.timer == nil {
		w.timer = time.AfterFunc(w.opts.Debounce, w.flush)
		return
	}
	w.timer.Reset(w.opts.Debounce)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if w.closed || (len(w.pending) == 0 && !w.full) {
		w.mu.Unlock()
		return
	}
	batch := Batch{Full: w.full}
	for path := range w.pending {
		batch.Paths = append(batch.Paths, path)
	}
	slices.Sort(batch.Paths)
	w.pending = make(map[string]bool)
	w.full = false
	w.mu.Unlock()

	if err := w.opts.Handle(batch); err != nil {
		w.log.Info("Change batch postponed (%d paths): %v", len(batch.Paths), err)
		w.mu.Lock()
		for _, path := range batch.Paths {
			w.pending[path] = true
		}
		w.full = w.full || batch.Full
		w.mu.Unlock()
		w.arm()
		return
	}
	w.log.Debug("Delivered change batch: %d paths, full=%t", len(batch.Paths), batch.Full)
}

func isHidden(rel string) bool {
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}

func eventType(op fsnotify.Op) string {
	switch {
	case op&fsnotify.Create != 0:
		return "create"
	case op&fsnotify.Write != 0:
		return "write"
	case op&fsnotify.Remove != 0:
		return "remove"
	case op&fsnotify.Rename != 0:
		return "rename"
	case op&fsnotify.Chmod != 0:
		return "chmod"
	default:
		return "unknown"
	}
}
