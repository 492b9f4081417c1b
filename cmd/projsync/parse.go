package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"projsync/internal/cli"
	"projsync/internal/logging"
)

const (
	commandAdd     = "add"
	commandRemove  = "remove"
	commandWatch   = "watch"
	commandIgnore  = "ignore"
	commandInit    = "init"
	commandVersion = "version"
)

type Config struct {
	Command     string
	Args        []string
	ConfigPath  string
	Workspace   string
	MetricsFile string
	// SilentDeletion is applied only when SilentSet is true, so the settings
	// file keeps its value otherwise.
	SilentDeletion bool
	SilentSet      bool
	AssumeYes      bool
	LogLevel       logging.Level
	ShowVersion    bool
}

type cliError struct {
	Code    int
	Message string
}

func (e *cliError) Error() string {
	return e.Message
}

func usageErr(message string) error {
	return &cliError{Code: exitCodeUsage, Message: message}
}

func parseArgs(args []string, errOut io.Writer) (Config, error) {
	fs := flag.NewFlagSet("projsync", flag.ContinueOnError)
	fs.SetOutput(errOut)
	configFlag := fs.String("config", "", "Settings file (default: <workspace>/.projsync.toml)")
	workspaceFlag := fs.String("workspace", "", "Workspace root (default: current directory)")
	metricsFlag := fs.String("metrics-file", "", "Write Prometheus counters to this file on exit")
	silentFlag := fs.Bool("silent-deletion", false, "Remove deleted files without asking")
	yesFlag := fs.Bool("yes", false, "Answer yes to every prompt")
	levelFlags := cli.AddLogLevelFlags(fs)
	helpVersion := cli.AddHelpVersionFlags(fs, "Show this help message", "Print version and exit")
	fs.Usage = func() {
		printHelp(fs.Output())
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if helpVersion.Help {
		fs.Usage()
		return Config{}, flag.ErrHelp
	}
	if helpVersion.Version {
		return Config{ShowVersion: true}, nil
	}
	level, err := levelFlags.Level()
	if err != nil {
		return Config{}, usageErr(err.Error())
	}

	cfg := Config{
		ConfigPath:     strings.TrimSpace(*configFlag),
		Workspace:      strings.TrimSpace(*workspaceFlag),
		MetricsFile:    strings.TrimSpace(*metricsFlag),
		SilentDeletion: *silentFlag,
		AssumeYes:      *yesFlag,
		LogLevel:       level,
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "silent-deletion" {
			cfg.SilentSet = true
		}
	})

	if fs.NArg() == 0 {
		fs.Usage()
		return Config{}, usageErr("command is required")
	}
	cfg.Command = fs.Arg(0)
	cfg.Args = fs.Args()[1:]

	switch cfg.Command {
	case commandAdd, commandRemove:
		if len(cfg.Args) == 0 {
			return Config{}, usageErr(fmt.Sprintf("%s requires at least one file", cfg.Command))
		}
	case commandWatch:
		if len(cfg.Args) > 1 {
			return Config{}, usageErr("watch takes at most one directory")
		}
	case commandIgnore:
		if len(cfg.Args) != 1 || (cfg.Args[0] != "list" && cfg.Args[0] != "clear") {
			return Config{}, usageErr("ignore requires list or clear")
		}
	case commandInit:
		if len(cfg.Args) != 0 {
			return Config{}, usageErr("init takes no arguments")
		}
	case commandVersion:
		if len(cfg.Args) != 0 {
			return Config{}, usageErr("version takes no arguments")
		}
		cfg.ShowVersion = true
	default:
		fs.Usage()
		return Config{}, usageErr(fmt.Sprintf("unknown command %q", cfg.Command))
	}
	return cfg, nil
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "Usage: projsync [options] <command> [args]")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Keep project descriptors in sync with the files in a workspace")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Commands:")
	writeOption(out, "add FILE...", "List files in their project descriptor")
	writeOption(out, "remove FILE...", "Drop files from their project descriptor")
	writeOption(out, "watch [DIR]", "Watch the workspace and offer to add or remove files")
	writeOption(out, "ignore list|clear", "Show or clear files never offered for adding")
	writeOption(out, "init", "Write the default settings file into the workspace")
	writeOption(out, "version", "Print version and exit")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Options:")
	writeOption(out, "--config FILE", "Settings file (default: <workspace>/.projsync.toml)")
	writeOption(out, "--workspace DIR", "Workspace root (default: current directory)")
	writeOption(out, "--metrics-file FILE", "Write Prometheus counters to FILE on exit")
	writeOption(out, "--silent-deletion", "Remove deleted files without asking")
	writeOption(out, "--yes", "Answer yes to every prompt")
	writeOption(out, "--verbose", "Log debug output")
	writeOption(out, "--quiet", "Log errors only")
	writeOption(out, "--help", "Show this help message")
	writeOption(out, "--version", "Print version and exit")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Exit codes:")
	fmt.Fprintln(out, "  0  Success")
	fmt.Fprintln(out, "  1  Usage error")
	fmt.Fprintln(out, "  2  Invalid settings")
	fmt.Fprintln(out, "  3  Command failed")
}

func writeOption(out io.Writer, name, desc string) {
	fmt.Fprintf(out, "  %-20s %s\n", name, desc)
}
