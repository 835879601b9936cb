package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/prostopil/patchwatch/internal/logging"
)

// Watcher consumes OS file notifications for the watch root and emits
// debounced RawEvents: a write is held back until the file has seen no
// further activity for the quiet window, so no event is produced for a
// file still being written. Removes are emitted immediately.
type Watcher struct {
	root  string
	quiet time.Duration

	fs  *fsnotify.Watcher
	out chan RawEvent

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewWatcher creates a watcher for root. The root must exist; subtrees
// are watched recursively, including directories created later.
func NewWatcher(root string, quiet time.Duration) (*Watcher, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("watch root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root %s is not a directory", root)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{
		root:   root,
		quiet:  quiet,
		fs:     fsw,
		out:    make(chan RawEvent, 256),
		timers: make(map[string]*time.Timer),
	}

	if err := w.addRecursive(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Events returns the debounced event stream. The stream goes quiet once
// Run returns; the channel is left open so late timer fires cannot panic.
func (w *Watcher) Events() <-chan RawEvent {
	return w.out
}

// Run consumes OS notifications until the context is canceled, then
// stops all pending debounce timers and closes the underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		w.mu.Lock()
		for _, t := range w.timers {
			t.Stop()
		}
		w.timers = make(map[string]*time.Timer)
		w.mu.Unlock()

		w.fs.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ev)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			logging.Warn("watcher error", logging.Err(err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	switch {
	case ev.Op.Has(fsnotify.Create):
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			// New directory: watch it and pick up files that landed
			// before the watch was attached.
			if err := w.addRecursive(ev.Name); err != nil {
				logging.Warn("failed to watch new directory", logging.Path(ev.Name), logging.Err(err))
			}
			w.emitExisting(ev.Name)
			return
		}
		w.scheduleWrite(ev.Name)

	case ev.Op.Has(fsnotify.Write):
		w.scheduleWrite(ev.Name)

	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		w.cancelWrite(ev.Name)
		w.emit(RawEvent{Path: ev.Name, Op: OpRemove, At: time.Now()})
	}
	// Chmod-only events carry no content change and are dropped.
}

// scheduleWrite (re)arms the quiet-window timer for a path. Each further
// write pushes the deadline out, so the event fires only once the file
// has been stable for the full window.
func (w *Watcher) scheduleWrite(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Reset(w.quiet)
		return
	}
	w.timers[path] = time.AfterFunc(w.quiet, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.emit(RawEvent{Path: path, Op: OpWrite, At: time.Now()})
	})
}

// emit never blocks; if the consumer has fallen behind far enough to
// fill the buffer, the event is dropped and a rescan will recover it.
func (w *Watcher) emit(ev RawEvent) {
	select {
	case w.out <- ev:
	default:
		logging.Warn("event buffer full, dropping event",
			logging.Path(ev.Path),
			logging.Operation(ev.Op.String()),
		)
	}
}

func (w *Watcher) cancelWrite(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
		delete(w.timers, path)
	}
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fs.Add(path)
		}
		return nil
	})
}

// emitExisting schedules write events for files already present under a
// newly watched directory.
func (w *Watcher) emitExisting(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			w.scheduleWrite(path)
		}
		return nil
	})
}
