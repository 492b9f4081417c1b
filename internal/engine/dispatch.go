package engine

import (
	"context"

	"github.com/fsnotify/fsnotify"

	"projsync/internal/watcher"
)

// Dispatch routes one watcher event. Descriptor writes invalidate the
// cache; other files go through the save, create and delete handlers.
func (e *Engine) Dispatch(ctx context.Context, event watcher.Event) (Outcome, error) {
	isDescriptor := e.resolver.IsDescriptor(event.Path)
	switch {
	case event.Op.Has(fsnotify.Remove):
		return e.FileDeleted(ctx, event.Path)
	case isDescriptor:
		e.DescriptorChanged(ctx, event.Path)
		return OutcomeSkipped, nil
	case event.Op.Has(fsnotify.Create):
		return e.FileCreated(ctx, event.Path)
	case event.Op.Has(fsnotify.Write):
		return e.FileSaved(ctx, event.Path)
	default:
		return OutcomeSkipped, nil
	}
}
