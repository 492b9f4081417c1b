package watcher

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"projsync/internal/fsutil"
)

type watchHandle struct {
	watcher *Watcher
	id      uint64
	once    sync.Once
}

func (handle *watchHandle) Close() error {
	if handle == nil || handle.watcher == nil {
		return nil
	}
	var err error
	handle.once.Do(func() {
		err = handle.watcher.removeRoot(handle.id)
	})
	return err
}

// Watch registers callback for file events anywhere beneath root,
// including directories created after the call.
func (watcher *Watcher) Watch(root string, callback func(Event)) (Handle, error) {
	if watcher == nil {
		return nil, errors.New("watcher is nil")
	}
	if root == "" {
		return nil, errors.New("path is required")
	}
	if callback == nil {
		return nil, errors.New("callback is required")
	}

	root = fsutil.AbsClean(root)
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return nil, ErrClosed
	}
	watcher.nextID++
	id := watcher.nextID
	watcher.roots[id] = &rootEntry{
		path:     root,
		callback: callback,
		dirs:     make(map[string]struct{}),
	}
	watcher.mutex.Unlock()

	if _, err := watcher.addTree(id, root); err != nil {
		_ = watcher.removeRoot(id)
		return nil, err
	}
	return &watchHandle{watcher: watcher, id: id}, nil
}

func (watcher *Watcher) removeRoot(id uint64) error {
	watcher.mutex.Lock()
	entry, ok := watcher.roots[id]
	if !ok {
		watcher.mutex.Unlock()
		return nil
	}
	delete(watcher.roots, id)
	dirs := make([]string, 0, len(entry.dirs))
	for dir := range entry.dirs {
		dirs = append(dirs, dir)
	}
	watcher.mutex.Unlock()

	var firstErr error
	for _, dir := range dirs {
		if err := watcher.releaseDir(dir); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// rootsForLocked returns the roots containing path.
func (watcher *Watcher) rootsForLocked(path string) []*rootEntry {
	var matches []*rootEntry
	for _, entry := range watcher.roots {
		if fsutil.IsWithin(entry.path, path) {
			matches = append(matches, entry)
		}
	}
	return matches
}

func (watcher *Watcher) callbacksForLocked(path string) []func(Event) {
	roots := watcher.rootsForLocked(path)
	callbacks := make([]func(Event), 0, len(roots))
	for _, entry := range roots {
		callbacks = append(callbacks, entry.callback)
	}
	return callbacks
}
