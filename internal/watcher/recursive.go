package watcher

import (
	"io/fs"
	"path/filepath"

	"projsync/internal/fsutil"
)

// addTree watches dir and every directory beneath it for the root with id
// and returns the files found, so callers can report ones created before
// the watches were in place.
func (watcher *Watcher) addTree(id uint64, dir string) ([]string, error) {
	dirs, files := watcher.collectTree(dir)
	added := make([]string, 0, len(dirs))
	for _, path := range dirs {
		ok, err := watcher.acquireDir(id, path)
		if err != nil {
			for _, undo := range added {
				watcher.forgetRootDir(id, undo)
			}
			return nil, err
		}
		if ok {
			added = append(added, path)
		}
	}
	return files, nil
}

func (watcher *Watcher) collectTree(root string) (dirs []string, files []string) {
	_ = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if path != root && watcher.skip(path) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.IsDir() {
			dirs = append(dirs, path)
		} else {
			files = append(files, path)
		}
		return nil
	})
	return dirs, files
}

// acquireDir records dir for the root and adds the fsnotify watch on first
// use. It reports false when the root already held dir.
func (watcher *Watcher) acquireDir(id uint64, dir string) (bool, error) {
	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return false, ErrClosed
	}
	entry, ok := watcher.roots[id]
	if !ok {
		watcher.mutex.Unlock()
		return false, nil
	}
	if _, held := entry.dirs[dir]; held {
		watcher.mutex.Unlock()
		return false, nil
	}
	needsAdd := watcher.dirs[dir] == 0
	if needsAdd && len(watcher.dirs) >= watcher.maxWatches {
		watcher.mutex.Unlock()
		return false, ErrMaxWatchesExceeded
	}
	entry.dirs[dir] = struct{}{}
	watcher.dirs[dir]++
	activeCount := len(watcher.dirs)
	source := watcher.watcher
	watcher.mutex.Unlock()

	if !needsAdd || source == nil {
		return true, nil
	}
	if err := source.Add(dir); err != nil {
		watcher.forgetRootDir(id, dir)
		watcher.logWarn("watch add failed", map[string]string{
			"path":  dir,
			"error": err.Error(),
		})
		return false, err
	}
	watcher.logDebug("watch added", dir, activeCount)
	return true, nil
}

// forgetRootDir drops dir from one root and releases the shared watch.
func (watcher *Watcher) forgetRootDir(id uint64, dir string) {
	watcher.mutex.Lock()
	if entry, ok := watcher.roots[id]; ok {
		delete(entry.dirs, dir)
	}
	watcher.mutex.Unlock()
	_ = watcher.releaseDir(dir)
}

func (watcher *Watcher) releaseDir(dir string) error {
	watcher.mutex.Lock()
	count := watcher.dirs[dir]
	if count > 1 {
		watcher.dirs[dir] = count - 1
		watcher.mutex.Unlock()
		return nil
	}
	if count == 0 {
		watcher.mutex.Unlock()
		return nil
	}
	delete(watcher.dirs, dir)
	activeCount := len(watcher.dirs)
	source := watcher.watcher
	closed := watcher.closed
	watcher.mutex.Unlock()

	if closed || source == nil {
		return nil
	}
	if err := source.Remove(dir); err != nil {
		watcher.logDebug("watch already gone", dir, activeCount)
		return nil
	}
	watcher.logDebug("watch removed", dir, activeCount)
	return nil
}

// purgeDir forgets a directory that was removed from disk, along with
// everything beneath it.
func (watcher *Watcher) purgeDir(dir string) {
	type ref struct {
		id   uint64
		path string
	}
	var refs []ref
	watcher.mutex.Lock()
	for id, entry := range watcher.roots {
		for path := range entry.dirs {
			if fsutil.IsWithin(dir, path) {
				refs = append(refs, ref{id: id, path: path})
			}
		}
	}
	watcher.mutex.Unlock()

	for _, r := range refs {
		watcher.forgetRootDir(r.id, r.path)
	}
}
