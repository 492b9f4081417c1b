// Package engine turns file notifications and explicit commands into
// descriptor updates. It applies the enabled gate, path filters and the
// ignore list, asks the user through a Prompter and reports every failure
// it does not treat as silent.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"projsync/internal/config"
	"projsync/internal/descriptor"
	"projsync/internal/fsutil"
	"projsync/internal/logging"
	"projsync/internal/prompt"
)

var ErrDisabled = errors.New("project sync is disabled")

// Outcome describes what a passive notification led to.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeListed
	OutcomeAdded
	OutcomeDeferred
	OutcomeIgnored
	OutcomeQueued
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeListed:
		return "listed"
	case OutcomeAdded:
		return "added"
	case OutcomeDeferred:
		return "deferred"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeQueued:
		return "queued"
	case OutcomeFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// IgnoreStore is the durable set of files never offered for adding.
type IgnoreStore interface {
	Contains(path string) bool
	Add(path string) error
	Clear() error
}

// Deletions receives deleted files still listed in a descriptor.
type Deletions interface {
	Notify(ctx context.Context, filePath string) (bool, error)
	Close(ctx context.Context) error
}

type Options struct {
	Settings  config.Settings
	Resolver  *descriptor.Resolver
	Persister *descriptor.Persister
	Deletions Deletions
	Prompter  prompt.Prompter
	Ignore    IgnoreStore
	// FS reads descriptor files to tell external edits from our own writes.
	FS     descriptor.FS
	Logger *logging.Logger
}

type Engine struct {
	settings  config.Settings
	resolver  *descriptor.Resolver
	cache     *descriptor.Cache
	persister *descriptor.Persister
	deletions Deletions
	prompter  prompt.Prompter
	ignore    IgnoreStore
	fs        descriptor.FS
	logger    *logging.Logger
}

func New(options Options) (*Engine, error) {
	if options.Resolver == nil {
		return nil, errors.New("resolver is required")
	}
	if options.Persister == nil {
		return nil, errors.New("persister is required")
	}
	if options.Prompter == nil {
		return nil, errors.New("prompter is required")
	}
	fileSystem := options.FS
	if fileSystem == nil {
		fileSystem = descriptor.OSFS{}
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	settings := options.Settings
	if settings.WorkspaceRoot != "" {
		settings.WorkspaceRoot = fsutil.AbsClean(settings.WorkspaceRoot)
	}
	return &Engine{
		settings:  settings,
		resolver:  options.Resolver,
		cache:     options.Resolver.Cache(),
		persister: options.Persister,
		deletions: options.Deletions,
		prompter:  options.Prompter,
		ignore:    options.Ignore,
		fs:        fileSystem,
		logger:    logger.Category("engine"),
	}, nil
}

func (e *Engine) Settings() config.Settings {
	return e.settings
}

// FileSaved offers to add a saved file that its descriptor does not list.
func (e *Engine) FileSaved(ctx context.Context, filePath string) (Outcome, error) {
	return e.offer(ctx, filePath, "saved")
}

// FileCreated offers to add a new file that its descriptor does not list.
func (e *Engine) FileCreated(ctx context.Context, filePath string) (Outcome, error) {
	return e.offer(ctx, filePath, "created")
}

func (e *Engine) offer(ctx context.Context, filePath, trigger string) (Outcome, error) {
	if !e.settings.Enabled {
		return OutcomeSkipped, nil
	}
	path := fsutil.AbsClean(filePath)
	if !e.eligible(path) {
		return OutcomeSkipped, nil
	}

	d, err := e.resolver.Resolve(ctx, path)
	if err != nil {
		if errors.Is(err, descriptor.ErrNoDescriptor) {
			return OutcomeSkipped, nil
		}
		e.report("resolve descriptor failed", path, err)
		return OutcomeFailed, err
	}
	if descriptor.HasEntry(d, path) {
		return OutcomeListed, nil
	}

	rel := displayPath(d, path)
	message := fmt.Sprintf("%s is not part of %s. Add it?", rel, d.Name())
	choice, err := e.prompter.Choose(ctx, message, prompt.ChoiceYes, prompt.ChoiceNotNow, prompt.ChoiceNever)
	if err != nil {
		e.logger.Debug("add prompt dismissed", map[string]string{
			"path":  path,
			"error": err.Error(),
		})
		return OutcomeDeferred, nil
	}

	switch choice {
	case prompt.ChoiceYes:
		// The prompt may have been open for a while; write through the
		// current handle.
		var added bool
		d, err = e.withCurrent(ctx, path, func(live *descriptor.Descriptor) error {
			var err error
			added, err = e.persister.Add(ctx, live, path, e.settings.ItemType)
			return err
		})
		if err != nil {
			e.report("add entry failed", path, err)
			return OutcomeFailed, err
		}
		if !added {
			return OutcomeListed, nil
		}
		e.logger.Info("file added", map[string]string{
			"path":       path,
			"descriptor": d.Path(),
			"trigger":    trigger,
		})
		e.prompter.Info(fmt.Sprintf("Added %s to %s", rel, d.Name()))
		return OutcomeAdded, nil
	case prompt.ChoiceNever:
		if e.ignore == nil {
			return OutcomeDeferred, nil
		}
		if err := e.ignore.Add(path); err != nil {
			e.report("ignore file failed", path, err)
			return OutcomeFailed, err
		}
		return OutcomeIgnored, nil
	default:
		return OutcomeDeferred, nil
	}
}

// eligible applies the descriptor-file check, the path filters and the
// ignore list.
func (e *Engine) eligible(path string) bool {
	if e.resolver.IsDescriptor(path) {
		return false
	}
	rel, ok := e.workspaceRelative(path)
	if !ok || !e.settings.Matches(rel) {
		return false
	}
	if e.ignore != nil && e.ignore.Contains(path) {
		return false
	}
	return true
}

func (e *Engine) workspaceRelative(path string) (string, bool) {
	root := e.settings.WorkspaceRoot
	if root == "" {
		return filepath.ToSlash(path), true
	}
	if !fsutil.IsWithin(root, path) {
		return "", false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// FileDeleted forgets a deleted descriptor or queues a deleted file for
// batched removal.
func (e *Engine) FileDeleted(ctx context.Context, filePath string) (Outcome, error) {
	if !e.settings.Enabled {
		return OutcomeSkipped, nil
	}
	path := fsutil.AbsClean(filePath)
	if e.resolver.IsDescriptor(path) {
		e.cache.Invalidate(path)
		return OutcomeSkipped, nil
	}
	if e.deletions == nil {
		return OutcomeSkipped, nil
	}
	queued, err := e.deletions.Notify(ctx, path)
	if err != nil {
		e.report("queue deletion failed", path, err)
		return OutcomeFailed, err
	}
	if !queued {
		return OutcomeSkipped, nil
	}
	return OutcomeQueued, nil
}

// DescriptorChanged drops a cached descriptor after an external edit. It
// reports whether the cache entry was discarded. Notifications caused by
// our own writes leave the entry in place.
func (e *Engine) DescriptorChanged(ctx context.Context, descriptorPath string) bool {
	path := fsutil.AbsClean(descriptorPath)
	d, ok := e.cache.Get(path)
	if !ok {
		// Marks any parse in flight as outdated.
		e.cache.Invalidate(path)
		return false
	}
	if data, err := e.fs.ReadFile(path); err == nil && d.MatchesDisk(data) {
		return false
	}
	invalidated := e.cache.Invalidate(path)
	if invalidated {
		e.logger.Debug("descriptor changed on disk", map[string]string{"path": path})
	}
	return invalidated
}

// Add lists each file in its descriptor without asking.
func (e *Engine) Add(ctx context.Context, filePaths ...string) error {
	if !e.settings.Enabled {
		e.prompter.Error(ErrDisabled.Error())
		return ErrDisabled
	}
	var errs []error
	for _, filePath := range filePaths {
		path := fsutil.AbsClean(filePath)
		var added bool
		d, err := e.withCurrent(ctx, path, func(live *descriptor.Descriptor) error {
			var err error
			added, err = e.persister.Add(ctx, live, path, e.settings.ItemType)
			return err
		})
		if err != nil {
			e.report("add entry failed", path, err)
			errs = append(errs, err)
			continue
		}
		rel := displayPath(d, path)
		if !added {
			e.prompter.Info(fmt.Sprintf("%s is already part of %s", rel, d.Name()))
			continue
		}
		e.logger.Info("file added", map[string]string{
			"path":       path,
			"descriptor": d.Path(),
			"trigger":    "command",
		})
		e.prompter.Info(fmt.Sprintf("Added %s to %s", rel, d.Name()))
	}
	return errors.Join(errs...)
}

// Remove drops each file from its descriptor without asking.
func (e *Engine) Remove(ctx context.Context, filePaths ...string) error {
	if !e.settings.Enabled {
		e.prompter.Error(ErrDisabled.Error())
		return ErrDisabled
	}
	var errs []error
	for _, filePath := range filePaths {
		path := fsutil.AbsClean(filePath)
		var removed int
		d, err := e.withCurrent(ctx, path, func(live *descriptor.Descriptor) error {
			var err error
			removed, err = e.persister.Remove(ctx, live, path)
			return err
		})
		if err != nil {
			e.report("remove entry failed", path, err)
			errs = append(errs, err)
			continue
		}
		rel := displayPath(d, path)
		if removed == 0 {
			e.prompter.Info(fmt.Sprintf("%s is not part of %s", rel, d.Name()))
			continue
		}
		e.logger.Info("file removed", map[string]string{
			"path":       path,
			"descriptor": d.Path(),
			"trigger":    "command",
		})
		e.prompter.Info(fmt.Sprintf("Removed %s from %s", rel, d.Name()))
	}
	return errors.Join(errs...)
}

// ClearIgnored empties the ignore list so every file is offered again.
func (e *Engine) ClearIgnored() error {
	if e.ignore == nil {
		return nil
	}
	if err := e.ignore.Clear(); err != nil {
		e.report("clear ignore list failed", "", err)
		return err
	}
	e.prompter.Info("Ignore list cleared")
	return nil
}

// Close flushes pending deletions and empties the cache.
func (e *Engine) Close(ctx context.Context) error {
	var err error
	if e.deletions != nil {
		err = e.deletions.Close(ctx)
	}
	dropped := e.cache.InvalidateAll()
	e.logger.Debug("engine closed", map[string]string{
		"descriptors": fmt.Sprint(dropped),
	})
	return err
}

// withCurrent resolves the descriptor governing path and runs write on it.
// When write finds the handle stale, the handle is discarded and write runs
// once more on a fresh parse.
func (e *Engine) withCurrent(ctx context.Context, path string, write func(*descriptor.Descriptor) error) (*descriptor.Descriptor, error) {
	for attempt := 0; ; attempt++ {
		d, err := e.resolver.Resolve(ctx, path)
		if err != nil {
			return nil, err
		}
		err = write(d)
		if attempt == 0 && errors.Is(err, descriptor.ErrStale) {
			e.cache.Discard(d)
			e.logger.Debug("descriptor changed on disk; reloading", map[string]string{
				"path":       path,
				"descriptor": d.Path(),
			})
			continue
		}
		return d, err
	}
}

func (e *Engine) report(message, path string, err error) {
	fields := map[string]string{"error": err.Error()}
	if path != "" {
		fields["path"] = path
	}
	e.logger.Warn(message, fields)
	e.prompter.Error(err.Error())
}

func displayPath(d *descriptor.Descriptor, path string) string {
	rel, err := d.RelativePath(path)
	if err != nil {
		return filepath.Base(path)
	}
	return strings.ReplaceAll(rel, `\`, "/")
}
