// Package cli holds flag helpers shared by projsync commands.
package cli

import (
	"errors"
	"flag"

	"projsync/internal/logging"
)

const (
	defaultHelpDesc    = "Show help"
	defaultVersionDesc = "Print version and exit"
)

var ErrConflictingLevels = errors.New("--verbose and --quiet are mutually exclusive")

type HelpVersionFlags struct {
	Help    bool
	Version bool
}

// AddHelpVersionFlags registers -h/--help and -v/--version.
func AddHelpVersionFlags(fs *flag.FlagSet, helpDesc, versionDesc string) *HelpVersionFlags {
	if fs == nil {
		return &HelpVersionFlags{}
	}
	if helpDesc == "" {
		helpDesc = defaultHelpDesc
	}
	if versionDesc == "" {
		versionDesc = defaultVersionDesc
	}
	flags := &HelpVersionFlags{}
	fs.BoolVar(&flags.Help, "help", false, helpDesc)
	fs.BoolVar(&flags.Help, "h", false, helpDesc)
	fs.BoolVar(&flags.Version, "version", false, versionDesc)
	fs.BoolVar(&flags.Version, "v", false, versionDesc)
	return flags
}

type LogLevelFlags struct {
	Verbose bool
	Quiet   bool
}

// AddLogLevelFlags registers --verbose and --quiet.
func AddLogLevelFlags(fs *flag.FlagSet) *LogLevelFlags {
	flags := &LogLevelFlags{}
	if fs == nil {
		return flags
	}
	fs.BoolVar(&flags.Verbose, "verbose", false, "Log debug output")
	fs.BoolVar(&flags.Quiet, "quiet", false, "Log errors only")
	return flags
}

// Level maps the flags to a minimum log level.
func (f *LogLevelFlags) Level() (logging.Level, error) {
	switch {
	case f == nil:
		return logging.LevelInfo, nil
	case f.Verbose && f.Quiet:
		return "", ErrConflictingLevels
	case f.Verbose:
		return logging.LevelDebug, nil
	case f.Quiet:
		return logging.LevelError, nil
	default:
		return logging.LevelInfo, nil
	}
}
