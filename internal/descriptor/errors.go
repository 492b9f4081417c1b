package descriptor

import (
	"errors"
	"fmt"
)

var (
	ErrNoDescriptor   = errors.New("no project descriptor found")
	ErrOutsideProject = errors.New("file is outside the descriptor directory")
	// ErrStale means the descriptor file no longer holds what the handle
	// was parsed from. Resolve again and retry.
	ErrStale = errors.New("descriptor changed on disk")
)

// NoDescriptorError reports that no ancestor directory of Path holds a
// descriptor file.
type NoDescriptorError struct {
	Path string
}

func (e *NoDescriptorError) Error() string {
	return fmt.Sprintf("no project descriptor found for %s", e.Path)
}

func (e *NoDescriptorError) Is(target error) bool {
	return target == ErrNoDescriptor
}

// ParseError wraps a failure to read or parse a descriptor file.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return "parse descriptor " + e.Path
	}
	return fmt.Sprintf("parse descriptor %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// PersistError wraps a failure to serialize or write a descriptor.
type PersistError struct {
	Path string
	Op   string
	Err  error
}

func (e *PersistError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s descriptor %s", e.Op, e.Path)
	}
	return fmt.Sprintf("%s descriptor %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}
