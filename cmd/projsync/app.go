package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/term"

	"projsync"
	"projsync/internal/batch"
	"projsync/internal/config"
	"projsync/internal/descriptor"
	"projsync/internal/engine"
	"projsync/internal/fsutil"
	"projsync/internal/ignore"
	"projsync/internal/logging"
	"projsync/internal/metrics"
	"projsync/internal/prompt"
)

// stdinIsTerminal decides between the interactive prompter and automatic
// answers.
var stdinIsTerminal = func(in io.Reader) bool {
	file, ok := in.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

type app struct {
	cfg       Config
	settings  config.Settings
	logger    *logging.Logger
	base      *logging.Logger
	prompter  prompt.Prompter
	metrics   *metrics.Registry
	cache     *descriptor.Cache
	resolver  *descriptor.Resolver
	persister *descriptor.Persister
	ignore    *ignore.Store
	out       io.Writer
}

func newApp(cfg Config, in io.Reader, out, errOut io.Writer) (*app, error) {
	base := logging.NewLoggerWithOutput(logging.NewHistory(logging.DefaultHistorySize), cfg.LogLevel, errOut)

	workspace, err := resolveWorkspace(cfg)
	if err != nil {
		return nil, err
	}

	settings, err := loadSettings(cfg, workspace)
	if err != nil {
		return nil, &cliError{Code: exitCodeConfig, Message: err.Error()}
	}
	settings.WorkspaceRoot = workspace
	for _, key := range settings.UnknownKeys {
		base.Category("config").Warn("unknown setting ignored", map[string]string{"key": key})
	}

	store, err := ignore.Open(settings.IgnorePath(), base)
	if err != nil {
		return nil, &cliError{Code: exitCodeConfig, Message: fmt.Sprintf("open ignore list: %v", err)}
	}

	registry := metrics.Default
	cache := descriptor.NewCache(descriptor.CacheOptions{Logger: base, Metrics: registry})
	resolver := descriptor.NewResolver(descriptor.ResolverOptions{
		Cache:      cache,
		Extensions: settings.DescriptorExtensions,
		Root:       workspace,
		Logger:     base,
		Metrics:    registry,
	})
	persister := descriptor.NewPersister(descriptor.PersisterOptions{
		Cache:   cache,
		Logger:  base,
		Metrics: registry,
	})

	return &app{
		cfg:       cfg,
		settings:  settings,
		logger:    base.Category("cli"),
		base:      base,
		prompter:  newPrompter(cfg, in, out, errOut),
		metrics:   registry,
		cache:     cache,
		resolver:  resolver,
		persister: persister,
		ignore:    store,
		out:       out,
	}, nil
}

func resolveWorkspace(cfg Config) (string, error) {
	workspace := cfg.Workspace
	if workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", &cliError{Code: exitCodeConfig, Message: fmt.Sprintf("resolve workspace: %v", err)}
		}
		workspace = wd
	}
	workspace = fsutil.AbsClean(workspace)
	if info, err := os.Stat(workspace); err != nil || !info.IsDir() {
		return "", &cliError{Code: exitCodeConfig, Message: fmt.Sprintf("workspace %s is not a directory", workspace)}
	}
	return workspace, nil
}

func loadSettings(cfg Config, workspace string) (config.Settings, error) {
	defaults, err := fs.ReadFile(projsync.EmbeddedConfigFS, projsync.DefaultsPath)
	if err != nil {
		return config.Settings{}, fmt.Errorf("read default settings: %w", err)
	}
	path := cfg.ConfigPath
	if path == "" {
		path = filepath.Join(workspace, config.FileName)
	} else if _, err := os.Stat(path); err != nil {
		return config.Settings{}, fmt.Errorf("settings file: %w", err)
	}
	overrides := map[string]any{}
	if cfg.SilentSet {
		overrides["sync.silent-deletion"] = cfg.SilentDeletion
	}
	return config.LoadSettings(path, defaults, overrides)
}

func newPrompter(cfg Config, in io.Reader, out, errOut io.Writer) prompt.Prompter {
	if cfg.AssumeYes {
		return &prompt.Auto{Answer: prompt.ChoiceYes, Out: out, ErrOut: errOut}
	}
	if stdinIsTerminal(in) {
		return prompt.NewTerminal(in, out, errOut)
	}
	return &prompt.Auto{Answer: prompt.ChoiceNotNow, Out: out, ErrOut: errOut}
}

func (a *app) newEngine(deletions *batch.Batcher) (*engine.Engine, error) {
	options := engine.Options{
		Settings:  a.settings,
		Resolver:  a.resolver,
		Persister: a.persister,
		Prompter:  a.prompter,
		Ignore:    a.ignore,
		Logger:    a.base,
	}
	if deletions != nil {
		options.Deletions = deletions
	}
	return engine.New(options)
}

func (a *app) dispatch(ctx context.Context) int {
	switch a.cfg.Command {
	case commandAdd:
		return a.runAdd(ctx)
	case commandRemove:
		return a.runRemove(ctx)
	case commandWatch:
		return a.runWatch(ctx)
	case commandIgnore:
		return a.runIgnore()
	default:
		return exitCodeUsage
	}
}

// close releases the cache and writes the metrics file when requested.
func (a *app) close() error {
	a.cache.InvalidateAll()
	if a.cfg.MetricsFile == "" {
		return nil
	}
	var buffer bytes.Buffer
	if err := a.metrics.WritePrometheus(&buffer); err != nil {
		return fmt.Errorf("render metrics: %w", err)
	}
	if err := fsutil.WriteFileAtomic(a.cfg.MetricsFile, buffer.Bytes()); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
