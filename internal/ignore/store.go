package ignore

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"projsync/internal/fsutil"
	"projsync/internal/logging"
)

const FileVersion = 1

var ErrInvalidFile = errors.New("ignore file invalid")

type document struct {
	Version int      `yaml:"version"`
	Ignored []string `yaml:"ignored"`
}

// Store is the durable set of files never offered for auto-add. Every
// mutation is written through to its YAML file.
type Store struct {
	path   string
	logger *logging.Logger

	mu    sync.Mutex
	paths map[string]struct{}
}

// Open loads the store at path. A missing file is an empty store; an
// unreadable one is moved aside and replaced by an empty store.
func Open(path string, logger *logging.Logger) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, errors.New("ignore file path required")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	store := &Store{
		path:   fsutil.AbsClean(trimmed),
		logger: logger.Category("ignore"),
		paths:  make(map[string]struct{}),
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	var doc document
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		s.backupCorruptFile(fmt.Errorf("%w: %v", ErrInvalidFile, err))
		return nil
	}
	if doc.Version != 0 && doc.Version != FileVersion {
		s.backupCorruptFile(fmt.Errorf("%w: unsupported version %d", ErrInvalidFile, doc.Version))
		return nil
	}
	for _, path := range doc.Ignored {
		if strings.TrimSpace(path) == "" {
			continue
		}
		s.paths[fsutil.AbsClean(path)] = struct{}{}
	}
	return nil
}

func (s *Store) Contains(path string) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.paths[fsutil.AbsClean(path)]
	return ok
}

// Add records path and persists the store. Adding a known path does not
// rewrite the file.
func (s *Store) Add(path string) error {
	if s == nil {
		return errors.New("ignore store unavailable")
	}
	key := fsutil.AbsClean(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.paths[key]; ok {
		return nil
	}
	s.paths[key] = struct{}{}
	if err := s.saveLocked(); err != nil {
		delete(s.paths, key)
		return err
	}
	s.logger.Info("file ignored", map[string]string{"path": key})
	return nil
}

// Clear forgets every path and persists the empty store.
func (s *Store) Clear() error {
	if s == nil {
		return errors.New("ignore store unavailable")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	previous := s.paths
	s.paths = make(map[string]struct{})
	if err := s.saveLocked(); err != nil {
		s.paths = previous
		return err
	}
	s.logger.Info("ignore list cleared", map[string]string{"count": fmt.Sprint(len(previous))})
	return nil
}

// List returns the ignored paths sorted.
func (s *Store) List() []string {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

func (s *Store) sortedLocked() []string {
	paths := make([]string, 0, len(s.paths))
	for path := range s.paths {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

func (s *Store) saveLocked() error {
	payload, err := yaml.Marshal(document{Version: FileVersion, Ignored: s.sortedLocked()})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(s.path, payload)
}

func (s *Store) backupCorruptFile(cause error) {
	timestamp := time.Now().UTC().Format("20060102T150405Z")
	backupPath := fmt.Sprintf("%s.%s.bck", s.path, timestamp)
	if err := os.Rename(s.path, backupPath); err != nil {
		s.logger.Warn("ignore file backup failed", map[string]string{
			"path":  s.path,
			"error": err.Error(),
		})
		return
	}
	s.logger.Warn("ignore file backed up", map[string]string{
		"path":   s.path,
		"backup": backupPath,
		"error":  cause.Error(),
	})
}
