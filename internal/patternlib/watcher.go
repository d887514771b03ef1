package patternlib

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/gatekeeper/internal/debug"
)

// Watcher reloads a catalog file whenever it changes on disk, so a
// long-running server (or a catalog author iterating on gates.yaml)
// never needs a process restart to pick up an edit. It watches the
// containing directory (fsnotify has no single-file watch primitive, and
// editors frequently save via rename-into-place, which only a directory
// watch observes), filter events down to the target file, and debounce
// the resulting burst before reloading.
type Watcher struct {
	fsw  *fsnotify.Watcher
	done chan struct{}
}

// defaultDebounce collapses the handful of write/rename events a single
// editor save typically produces into one reload.
const defaultDebounce = 200 * time.Millisecond

// NewWatcher starts watching path's catalog file and invokes onChange
// with a freshly Load()-ed Library on every settled change; onChange
// receives (nil, err) if the new content fails to parse or validate, so
// callers can keep serving the last-known-good Library rather than
// crash on a bad edit.
func NewWatcher(path string, onChange func(*Library, error)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{fsw: fsw, done: make(chan struct{})}
	go w.run(filepath.Clean(path), onChange)
	return w, nil
}

func (w *Watcher) run(target string, onChange func(*Library, error)) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(defaultDebounce, func() {
				lib, loadErr := Load(target)
				onChange(lib, loadErr)
			})
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			debug.LogPipeline("patternlib: watcher error: %v", err)
		}
	}
}

// Close stops the watcher goroutine and releases the underlying fsnotify
// watch. Safe to call once.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
