package descriptor

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/zeebo/blake3"
)

// Descriptor is one parsed project file. The cache owns at most one
// Descriptor per absolute path; mu serializes mutate and persist sequences
// on it.
type Descriptor struct {
	path string
	name string

	mu          sync.Mutex
	tree        Tree
	fingerprint [32]byte
}

func newDescriptor(path string, tree Tree, raw []byte) *Descriptor {
	base := filepath.Base(path)
	return &Descriptor{
		path:        path,
		name:        strings.TrimSuffix(base, filepath.Ext(base)),
		tree:        tree,
		fingerprint: blake3.Sum256(raw),
	}
}

// Path is the absolute path of the descriptor file.
func (d *Descriptor) Path() string {
	return d.path
}

// Name is the file name without its extension.
func (d *Descriptor) Name() string {
	return d.name
}

// Dir is the directory item paths are relative to.
func (d *Descriptor) Dir() string {
	return filepath.Dir(d.path)
}

func (d *Descriptor) Items() []Item {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tree.Items()
}

// MatchesDisk reports whether data is exactly what was last read from or
// written to the descriptor file. Watchers use it to recognise the echo of
// the engine's own writes.
func (d *Descriptor) MatchesDisk(data []byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.matchesDiskLocked(data)
}

func (d *Descriptor) matchesDiskLocked(data []byte) bool {
	return blake3.Sum256(data) == d.fingerprint
}

func (d *Descriptor) recordDisk(data []byte) {
	d.fingerprint = blake3.Sum256(data)
}
