package descriptor

import (
	"fmt"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"projsync/internal/fsutil"
)

// Item paths compare case-insensitively where the host filesystem usually
// does.
var caseInsensitivePaths = runtime.GOOS == "windows" || runtime.GOOS == "darwin"

// RelativePath returns filePath relative to the descriptor directory in the
// backslash-separated form descriptors store.
func (d *Descriptor) RelativePath(filePath string) (string, error) {
	abs := fsutil.AbsClean(filePath)
	rel, err := filepath.Rel(d.Dir(), abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrOutsideProject, abs)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideProject, abs)
	}
	return strings.ReplaceAll(filepath.ToSlash(rel), "/", `\`), nil
}

func includeKey(include string) string {
	key := path.Clean(strings.ReplaceAll(strings.TrimSpace(include), `\`, "/"))
	key = strings.TrimPrefix(key, "./")
	if caseInsensitivePaths {
		key = strings.ToLower(key)
	}
	return key
}

func matchInclude(rel string) func(Item) bool {
	want := includeKey(rel)
	return func(item Item) bool {
		return includeKey(item.Include) == want
	}
}

// HasEntry reports whether descriptor lists filePath.
func HasEntry(d *Descriptor, filePath string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return hasEntryLocked(d, filePath)
}

func hasEntryLocked(d *Descriptor, filePath string) bool {
	rel, err := d.RelativePath(filePath)
	if err != nil {
		return false
	}
	return len(d.tree.FindItems(matchInclude(rel))) > 0
}

// AddEntry lists filePath in descriptor with the tag rule resolves. It is a
// no-op when the file is already listed and reports whether an entry was
// inserted.
func AddEntry(d *Descriptor, filePath string, rule ItemTypeRule) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return addEntryLocked(d, filePath, rule)
}

func addEntryLocked(d *Descriptor, filePath string, rule ItemTypeRule) (bool, error) {
	rel, err := d.RelativePath(filePath)
	if err != nil {
		return false, err
	}
	if len(d.tree.FindItems(matchInclude(rel))) > 0 {
		return false, nil
	}
	d.tree.AddItem(Item{Tag: rule.Resolve(filepath.Base(filePath)), Include: rel})
	return true, nil
}

// RemoveEntry drops every entry for filePath. A missing entry is not an
// error; the result reports whether anything was removed.
func RemoveEntry(d *Descriptor, filePath string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	removed, err := removeEntryLocked(d, filePath)
	return removed > 0, err
}

func removeEntryLocked(d *Descriptor, filePath string) (int, error) {
	rel, err := d.RelativePath(filePath)
	if err != nil {
		return 0, err
	}
	return d.tree.RemoveItems(matchInclude(rel)), nil
}
