package watcher

import (
	"errors"
	"io/fs"
	"os"
)

func (watcher *Watcher) cleanupLoop() {
	ticker := watcher.clock.Ticker(watcher.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			watcher.cleanup()
		case <-watcher.done:
			return
		}
	}
}

// cleanup forgets watched directories that vanished without a remove event
// reaching the watcher. It returns how many were purged.
func (watcher *Watcher) cleanup() int {
	if watcher == nil {
		return 0
	}
	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return 0
	}
	dirs := make([]string, 0, len(watcher.dirs))
	for dir := range watcher.dirs {
		dirs = append(dirs, dir)
	}
	watcher.mutex.Unlock()

	purged := 0
	for _, dir := range dirs {
		if _, err := os.Stat(dir); !errors.Is(err, fs.ErrNotExist) {
			continue
		}
		watcher.purgeDir(dir)
		purged++
		watcher.logDebug("watch cleaned", dir, watcher.Metrics().ActiveWatches)
	}
	return purged
}
