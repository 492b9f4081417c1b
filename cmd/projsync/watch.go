package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"projsync/internal/batch"
	"projsync/internal/fsutil"
	"projsync/internal/logging"
	"projsync/internal/watcher"
)

// skippedDirs are never watched. ".projsync" holds the ignore list.
var skippedDirs = map[string]struct{}{
	".git":         {},
	".hg":          {},
	".svn":         {},
	".vs":          {},
	".projsync":    {},
	"node_modules": {},
}

func skipWatchPath(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, fsutil.TempPrefix) {
		return true
	}
	_, skip := skippedDirs[name]
	return skip
}

// sessionSummary names the last recorded problem so the user need not
// scroll back through the session.
func sessionSummary(problems int, recent []logging.Entry) string {
	noun := "problems"
	if problems == 1 {
		noun = "problem"
	}
	summary := fmt.Sprintf("%d %s during this session", problems, noun)
	if len(recent) > 0 {
		last := recent[len(recent)-1]
		summary += fmt.Sprintf("; last: %s", last.Message)
		if path := last.Fields["path"]; path != "" {
			summary += fmt.Sprintf(" (%s)", path)
		}
	}
	return summary
}

func (a *app) runWatch(parent context.Context) int {
	root := a.settings.WorkspaceRoot
	if len(a.cfg.Args) == 1 {
		root = fsutil.AbsClean(a.cfg.Args[0])
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)
	flushCtx, abortFlush := context.WithCancel(context.WithoutCancel(parent))
	defer abortFlush()
	stopSignals := watchShutdownSignals(a.logger, cancel, abortFlush, signals)
	defer stopSignals()

	batcher := batch.New(batch.Options{
		Resolver: a.resolver,
		Remover:  a.persister,
		Cache:    a.cache,
		Prompter: a.prompter,
		Window:   a.settings.DeletionDebounce,
		Silent:   a.settings.SilentDeletion,
		Context:  context.WithoutCancel(ctx),
		Logger:   a.base,
		Metrics:  a.metrics,
	})
	eng, err := a.newEngine(batcher)
	if err != nil {
		a.prompter.Error(err.Error())
		return exitCodeFailed
	}

	failed := make(chan error, 1)
	w, err := watcher.NewWithOptions(watcher.Options{
		Logger: a.base,
		Skip:   skipWatchPath,
		OnResync: func(root string) {
			dropped := a.cache.InvalidateAll()
			a.logger.Warn("events may have been missed; descriptors reloaded", map[string]string{
				"root":        root,
				"descriptors": fmt.Sprint(dropped),
			})
		},
		ErrorHandler: func(err error) {
			select {
			case failed <- err:
			default:
			}
			cancel()
		},
	})
	if err != nil {
		a.prompter.Error(fmt.Sprintf("start watcher: %v", err))
		return exitCodeFailed
	}
	defer w.Close()

	handle, err := w.Watch(root, func(event watcher.Event) {
		outcome, err := eng.Dispatch(ctx, event)
		fields := map[string]string{
			"path":    event.Path,
			"op":      event.Op.String(),
			"outcome": outcome.String(),
		}
		if err != nil {
			fields["error"] = err.Error()
		}
		a.logger.Debug("event handled", fields)
	})
	if err != nil {
		a.prompter.Error(fmt.Sprintf("watch %s: %v", root, err))
		return exitCodeFailed
	}
	a.prompter.Info(fmt.Sprintf("Watching %s", root))
	a.logger.Info("watch started", map[string]string{
		"root":            root,
		"silent_deletion": fmt.Sprint(a.settings.SilentDeletion),
		"debounce":        a.settings.DeletionDebounce.String(),
	})

	<-ctx.Done()

	code := exitCodeSuccess
	select {
	case err := <-failed:
		a.prompter.Error(fmt.Sprintf("watcher failed: %v", err))
		code = exitCodeFailed
	default:
	}
	_ = handle.Close()
	if err := eng.Close(flushCtx); err != nil {
		a.prompter.Error(err.Error())
		code = exitCodeFailed
	}
	history := a.base.History()
	warnings := history.Count(logging.LevelWarning)
	errorCount := history.Count(logging.LevelError)
	snapshot := a.metrics.Snapshot()
	a.logger.Info("watch stopped", map[string]string{
		"parses":          fmt.Sprint(snapshot.Parses),
		"writes":          fmt.Sprint(snapshot.Writes),
		"entries_added":   fmt.Sprint(snapshot.EntriesAdded),
		"entries_removed": fmt.Sprint(snapshot.EntriesRemoved),
		"warnings":        fmt.Sprint(warnings),
		"errors":          fmt.Sprint(errorCount),
	})
	if problems := warnings + errorCount; problems > 0 {
		a.prompter.Info(sessionSummary(problems, history.Problems()))
	}
	return code
}
