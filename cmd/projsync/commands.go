package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"projsync"
	"projsync/internal/config"
	"projsync/internal/logging"
)

func (a *app) runAdd(ctx context.Context) int {
	eng, err := a.newEngine(nil)
	if err != nil {
		a.prompter.Error(err.Error())
		return exitCodeFailed
	}
	if err := eng.Add(ctx, a.cfg.Args...); err != nil {
		return exitCodeFailed
	}
	return exitCodeSuccess
}

func (a *app) runRemove(ctx context.Context) int {
	eng, err := a.newEngine(nil)
	if err != nil {
		a.prompter.Error(err.Error())
		return exitCodeFailed
	}
	if err := eng.Remove(ctx, a.cfg.Args...); err != nil {
		return exitCodeFailed
	}
	return exitCodeSuccess
}

func (a *app) runIgnore() int {
	switch a.cfg.Args[0] {
	case "list":
		paths := a.ignore.List()
		if len(paths) == 0 {
			fmt.Fprintln(a.out, "No ignored files")
			return exitCodeSuccess
		}
		for _, path := range paths {
			fmt.Fprintln(a.out, path)
		}
		return exitCodeSuccess
	case "clear":
		eng, err := a.newEngine(nil)
		if err != nil {
			a.prompter.Error(err.Error())
			return exitCodeFailed
		}
		if err := eng.ClearIgnored(); err != nil {
			return exitCodeFailed
		}
		return exitCodeSuccess
	default:
		return exitCodeUsage
	}
}

// runInit writes the built-in settings to the settings file path. It runs
// before settings are loaded so a broken file can be reset.
func runInit(cfg Config, out, errOut io.Writer) int {
	workspace, err := resolveWorkspace(cfg)
	if err != nil {
		return handleError(err, errOut)
	}
	dest := cfg.ConfigPath
	if dest == "" {
		dest = filepath.Join(workspace, config.FileName)
	}
	extractor := &config.Extractor{
		Logger: logging.NewLoggerWithOutput(nil, cfg.LogLevel, errOut).Category("cli"),
	}
	result, err := extractor.Extract(projsync.EmbeddedConfigFS, projsync.DefaultsPath, dest)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return exitCodeFailed
	}
	switch result {
	case config.ExtractUnchanged:
		fmt.Fprintf(out, "%s already holds the default settings\n", dest)
	case config.ExtractReplaced:
		fmt.Fprintf(out, "Wrote %s (previous file saved as %s)\n", dest, dest+config.BackupSuffix)
	default:
		fmt.Fprintf(out, "Wrote %s\n", dest)
	}
	return exitCodeSuccess
}
