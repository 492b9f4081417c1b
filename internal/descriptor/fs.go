package descriptor

import (
	"io/fs"
	"os"

	"projsync/internal/fsutil"
)

// FS is the file access the resolver and persister need.
type FS interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte) error
	ReadDir(name string) ([]fs.DirEntry, error)
}

// OSFS reads and writes the local filesystem. Writes are atomic.
type OSFS struct{}

func (OSFS) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

func (OSFS) WriteFile(name string, data []byte) error {
	return fsutil.WriteFileAtomic(name, data)
}

func (OSFS) ReadDir(name string) ([]fs.DirEntry, error) {
	return os.ReadDir(name)
}
