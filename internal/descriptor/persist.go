package descriptor

import (
	"context"
	"errors"
	"io/fs"
	"strconv"

	"projsync/internal/logging"
	"projsync/internal/metrics"
)

type PersisterOptions struct {
	FS      FS
	Cache   *Cache
	Logger  *logging.Logger
	Metrics *metrics.Registry
}

// Persister writes descriptors back to disk. Add and Remove bracket the
// mutate-then-write sequence with invalidation suppression and restore the
// previous tree when the write fails.
type Persister struct {
	fs      FS
	cache   *Cache
	logger  *logging.Logger
	metrics *metrics.Registry
}

func NewPersister(options PersisterOptions) *Persister {
	fileSystem := options.FS
	if fileSystem == nil {
		fileSystem = OSFS{}
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Persister{
		fs:      fileSystem,
		cache:   options.Cache,
		logger:  logger.Category("persist"),
		metrics: options.Metrics,
	}
}

// Write serializes the descriptor and overwrites its file.
func (p *Persister) Write(ctx context.Context, d *Descriptor) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return p.writeLocked(ctx, d)
}

func (p *Persister) writeLocked(ctx context.Context, d *Descriptor) (err error) {
	_, span := startSpan(ctx, "descriptor.write", d.path)
	defer func() { endSpan(span, err) }()

	data, err := d.tree.Serialize()
	if err != nil {
		p.metrics.IncWrite(true)
		return &PersistError{Path: d.path, Op: "serialize", Err: err}
	}
	if err := p.fs.WriteFile(d.path, data); err != nil {
		p.metrics.IncWrite(true)
		p.logger.Warn("descriptor write failed", map[string]string{
			"path":  d.path,
			"error": err.Error(),
		})
		return &PersistError{Path: d.path, Op: "write", Err: err}
	}
	d.recordDisk(data)
	p.metrics.IncWrite(false)
	p.logger.Debug("descriptor written", map[string]string{
		"path":  d.path,
		"bytes": strconv.Itoa(len(data)),
	})
	return nil
}

// checkCurrentLocked fails with ErrStale when the file on disk is not the
// one d was parsed from or last wrote, so a mutation never overwrites an
// edit made behind the handle.
func (p *Persister) checkCurrentLocked(d *Descriptor) error {
	data, err := p.fs.ReadFile(d.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &PersistError{Path: d.path, Op: "check", Err: ErrStale}
	case err != nil:
		return &PersistError{Path: d.path, Op: "check", Err: err}
	case !d.matchesDiskLocked(data):
		p.logger.Debug("descriptor handle is stale", map[string]string{"path": d.path})
		return &PersistError{Path: d.path, Op: "check", Err: ErrStale}
	}
	return nil
}

// Add lists filePath in d and persists the change. It reports false without
// writing when the entry already exists.
func (p *Persister) Add(ctx context.Context, d *Descriptor, filePath string, rule ItemTypeRule) (bool, error) {
	guard := p.cache.Suppress()
	defer guard.Release()

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := p.checkCurrentLocked(d); err != nil {
		return false, err
	}
	snapshot := d.tree.Clone()
	added, err := addEntryLocked(d, filePath, rule)
	if err != nil || !added {
		return false, err
	}
	if err := p.writeLocked(ctx, d); err != nil {
		d.tree = snapshot
		return false, err
	}
	p.metrics.AddEntries(1, 0)
	return true, nil
}

// Remove drops the entries for filePaths from d and persists the change with
// a single write. Paths with no entry are skipped.
func (p *Persister) Remove(ctx context.Context, d *Descriptor, filePaths ...string) (int, error) {
	guard := p.cache.Suppress()
	defer guard.Release()

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := p.checkCurrentLocked(d); err != nil {
		return 0, err
	}
	snapshot := d.tree.Clone()
	removed := 0
	for _, filePath := range filePaths {
		count, err := removeEntryLocked(d, filePath)
		if err != nil {
			d.tree = snapshot
			return 0, err
		}
		removed += count
	}
	if removed == 0 {
		return 0, nil
	}
	if err := p.writeLocked(ctx, d); err != nil {
		d.tree = snapshot
		return 0, err
	}
	p.metrics.AddEntries(0, removed)
	return removed, nil
}
