package fsutil

import (
	"os"
	"path/filepath"
	"strings"
)

// AbsClean returns an absolute, cleaned form of pathValue. It falls back to
// filepath.Clean when the working directory cannot be determined.
func AbsClean(pathValue string) string {
	abs, err := filepath.Abs(pathValue)
	if err != nil {
		return filepath.Clean(pathValue)
	}
	return abs
}

// IsWithin reports whether child equals parent or lies beneath it.
func IsWithin(parent, child string) bool {
	rel, err := filepath.Rel(filepath.Clean(parent), filepath.Clean(child))
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}
