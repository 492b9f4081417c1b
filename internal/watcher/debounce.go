package watcher

import (
	"errors"
	"io/fs"
	"os"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fsnotify/fsnotify"

	"projsync/internal/fsutil"
)

// pending is the merged event waiting out the quiet period for one path.
type pending struct {
	timer *clock.Timer
	event Event
}

// debouncer holds back events per path until the path has been quiet for
// window. Callers serialize access.
type debouncer struct {
	clock   clock.Clock
	window  time.Duration
	pending map[string]pending
}

func newDebouncer(clk clock.Clock, window time.Duration) *debouncer {
	return &debouncer{clock: clk, window: window, pending: make(map[string]pending)}
}

// schedule folds event into whatever is pending for its path and restarts
// the quiet period. It reports whether an earlier event was absorbed.
func (d *debouncer) schedule(event Event, fire func(path string)) bool {
	if d == nil || d.pending == nil {
		return false
	}
	path := event.Path
	current, absorbed := d.pending[path]
	if absorbed {
		event.Op |= current.event.Op
		current.timer.Reset(d.window)
	} else {
		current.timer = d.clock.AfterFunc(d.window, func() { fire(path) })
	}
	current.event = event
	d.pending[path] = current
	return absorbed
}

// take removes and returns the pending event for path.
func (d *debouncer) take(path string) (Event, bool) {
	if d == nil {
		return Event{}, false
	}
	current, ok := d.pending[path]
	if ok {
		delete(d.pending, path)
	}
	return current.event, ok
}

// stop cancels every pending timer. Later schedules are ignored.
func (d *debouncer) stop() {
	if d == nil {
		return
	}
	for _, current := range d.pending {
		current.timer.Stop()
	}
	d.pending = nil
}

func (watcher *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod || watcher.skip(event.Name) {
		return
	}
	watcher.mutex.Lock()
	if watcher.closed || len(watcher.rootsForLocked(event.Name)) == 0 {
		watcher.mutex.Unlock()
		return
	}
	watcher.scheduleLocked(Event{
		Path:      event.Name,
		Op:        event.Op,
		Timestamp: watcher.clock.Now().UTC(),
	})
	watcher.mutex.Unlock()

	if event.Has(fsnotify.Create) {
		watcher.watchCreatedDir(event.Name)
	}
}

func (watcher *Watcher) scheduleLocked(event Event) {
	if watcher.debouncer == nil {
		return
	}
	if watcher.debouncer.schedule(event, watcher.flush) {
		atomic.AddUint64(&watcher.eventsDropped, 1)
	}
}

// watchCreatedDir extends the watch to a new directory and reports the
// files already inside it.
func (watcher *Watcher) watchCreatedDir(path string) {
	info, err := os.Lstat(path)
	if err != nil || !info.IsDir() {
		return
	}
	watcher.mutex.Lock()
	ids := make([]uint64, 0, len(watcher.roots))
	for id, entry := range watcher.roots {
		if _, held := entry.dirs[path]; !held && fsutil.IsWithin(entry.path, path) {
			ids = append(ids, id)
		}
	}
	watcher.mutex.Unlock()

	for _, id := range ids {
		files, err := watcher.addTree(id, path)
		if err != nil {
			watcher.logWarn("watch new directory failed", map[string]string{
				"path":  path,
				"error": err.Error(),
			})
			continue
		}
		watcher.mutex.Lock()
		for _, file := range files {
			watcher.scheduleLocked(Event{Path: file, Op: fsnotify.Create, Timestamp: watcher.clock.Now().UTC()})
		}
		watcher.mutex.Unlock()
	}
}

func (watcher *Watcher) flush(path string) {
	watcher.mutex.Lock()
	if watcher.closed || watcher.debouncer == nil {
		watcher.mutex.Unlock()
		return
	}
	event, ok := watcher.debouncer.take(path)
	if !ok {
		watcher.mutex.Unlock()
		return
	}
	wasDir := watcher.dirs[path] > 0
	callbacks := watcher.callbacksForLocked(path)
	watcher.mutex.Unlock()

	resolved, deliver := resolveEvent(event)
	if resolved.Op == fsnotify.Remove && wasDir {
		watcher.purgeDir(path)
	}
	if !deliver {
		return
	}
	for _, callback := range callbacks {
		callback(resolved)
		atomic.AddUint64(&watcher.eventsDelivered, 1)
	}
}

// resolveEvent collapses the merged ops of a debounced entry into the
// single op the path is in now. Directories that still exist are not
// delivered.
func resolveEvent(event Event) (Event, bool) {
	info, err := os.Lstat(event.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		event.Op = fsnotify.Remove
		return event, true
	case err != nil:
		return event, false
	case info.IsDir():
		return event, false
	case event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Rename):
		event.Op = fsnotify.Create
	default:
		event.Op = fsnotify.Write
	}
	return event, true
}
