package watcher

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// An fsnotify error such as a queue overflow means events were lost. The
// watcher is replaced after a backoff; the replacement re-adds every known
// directory, walks each root for directories created in the gap and reports
// the roots through Options.OnResync.

func (watcher *Watcher) handleError(err error) {
	if err == nil {
		return
	}
	atomic.AddUint64(&watcher.errorCount, 1)
	watcher.logWarn("watcher error", map[string]string{
		"error": err.Error(),
	})
	watcher.scheduleRestart(err)
}

func restartDelay(attempt int) time.Duration {
	return restartBaseDelay << attempt
}

func (watcher *Watcher) scheduleRestart(cause error) {
	if watcher == nil || watcher.isClosed() {
		return
	}
	watcher.restartMutex.Lock()
	if watcher.restartTimer != nil {
		watcher.restartMutex.Unlock()
		return
	}
	if watcher.restartAttempts >= maxRestartAttempts {
		handler := watcher.errorHandler
		watcher.restartMutex.Unlock()
		if handler != nil {
			handler(cause)
		}
		return
	}
	delay := restartDelay(watcher.restartAttempts)
	watcher.restartAttempts++
	watcher.restartTimer = watcher.clock.AfterFunc(delay, watcher.performRestart)
	watcher.restartMutex.Unlock()
}

func (watcher *Watcher) performRestart() {
	err := watcher.restart()

	watcher.restartMutex.Lock()
	watcher.restartTimer = nil
	if err == nil {
		watcher.restartAttempts = 0
	}
	watcher.restartMutex.Unlock()

	if err != nil {
		watcher.logWarn("watcher restart failed", map[string]string{
			"error": err.Error(),
		})
		watcher.scheduleRestart(err)
	}
}

func (watcher *Watcher) restart() error {
	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return nil
	}
	dirs := make([]string, 0, len(watcher.dirs))
	for dir := range watcher.dirs {
		dirs = append(dirs, dir)
	}
	watcher.mutex.Unlock()

	replacement, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	var vanished []string
	for _, dir := range dirs {
		if err := replacement.Add(dir); err != nil {
			if _, statErr := os.Stat(dir); errors.Is(statErr, fs.ErrNotExist) {
				vanished = append(vanished, dir)
				continue
			}
			watcher.logWarn("watch re-add failed", map[string]string{
				"path":  dir,
				"error": err.Error(),
			})
		}
	}

	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		_ = replacement.Close()
		return nil
	}
	previous := watcher.watcher
	watcher.watcher = replacement
	watcher.mutex.Unlock()

	watcher.pump(replacement)
	if previous != nil {
		_ = previous.Close()
	}
	for _, dir := range vanished {
		watcher.purgeDir(dir)
	}
	roots := watcher.resync()
	watcher.logger.Info("watcher restarted", map[string]string{
		"watches": strconv.Itoa(watcher.Metrics().ActiveWatches),
		"roots":   strconv.Itoa(roots),
	})
	return nil
}

// resync walks every root again so directories created while no watch was
// active get one, then reports each root. It returns the number of roots.
func (watcher *Watcher) resync() int {
	type root struct {
		id   uint64
		path string
	}
	watcher.mutex.Lock()
	roots := make([]root, 0, len(watcher.roots))
	for id, entry := range watcher.roots {
		roots = append(roots, root{id: id, path: entry.path})
	}
	watcher.mutex.Unlock()

	for _, r := range roots {
		if _, err := watcher.addTree(r.id, r.path); err != nil {
			watcher.logWarn("resync walk failed", map[string]string{
				"path":  r.path,
				"error": err.Error(),
			})
		}
		atomic.AddUint64(&watcher.resyncs, 1)
		if watcher.onResync != nil {
			watcher.onResync(r.path)
		}
	}
	return len(roots)
}
