package main

import (
	"bytes"
	"errors"
	"flag"
	"strings"
	"testing"

	"projsync/internal/logging"
)

func TestParseArgsRequiresCommand(t *testing.T) {
	var stderr bytes.Buffer
	_, err := parseArgs(nil, &stderr)
	var cliErr *cliError
	if !errors.As(err, &cliErr) || cliErr.Code != exitCodeUsage {
		t.Fatalf("expected usage error, got %v", err)
	}
	if !strings.Contains(stderr.String(), "Usage: projsync") {
		t.Fatalf("expected usage output, got %q", stderr.String())
	}
}

func TestParseArgsHelp(t *testing.T) {
	var stderr bytes.Buffer
	if _, err := parseArgs([]string{"--help"}, &stderr); !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("expected flag.ErrHelp, got %v", err)
	}
	if !strings.Contains(stderr.String(), "ignore list|clear") {
		t.Fatalf("expected command list in help, got %q", stderr.String())
	}
}

func TestParseArgsGlobalOptions(t *testing.T) {
	var stderr bytes.Buffer
	cfg, err := parseArgs([]string{
		"--workspace", " /tmp/ws ",
		"--config", "/tmp/ws/custom.toml",
		"--silent-deletion",
		"--yes",
		"--verbose",
		"add", "a.ts", "b.ts",
	}, &stderr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Workspace != "/tmp/ws" {
		t.Fatalf("expected trimmed workspace, got %q", cfg.Workspace)
	}
	if cfg.ConfigPath != "/tmp/ws/custom.toml" {
		t.Fatalf("expected config path, got %q", cfg.ConfigPath)
	}
	if !cfg.SilentSet || !cfg.SilentDeletion {
		t.Fatalf("expected silent deletion override, got set=%v value=%v", cfg.SilentSet, cfg.SilentDeletion)
	}
	if !cfg.AssumeYes {
		t.Fatalf("expected --yes to be set")
	}
	if cfg.LogLevel != logging.LevelDebug {
		t.Fatalf("expected debug level, got %s", cfg.LogLevel)
	}
	if cfg.Command != commandAdd || len(cfg.Args) != 2 || cfg.Args[1] != "b.ts" {
		t.Fatalf("unexpected command %q args %v", cfg.Command, cfg.Args)
	}
}

func TestParseArgsSilentDeletionUnsetByDefault(t *testing.T) {
	var stderr bytes.Buffer
	cfg, err := parseArgs([]string{"watch"}, &stderr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SilentSet {
		t.Fatalf("expected silent deletion to defer to settings")
	}
	if cfg.LogLevel != logging.LevelInfo {
		t.Fatalf("expected info level, got %s", cfg.LogLevel)
	}
}

func TestParseArgsValidatesCommands(t *testing.T) {
	cases := [][]string{
		{"add"},
		{"remove"},
		{"watch", "a", "b"},
		{"ignore"},
		{"ignore", "purge"},
		{"version", "extra"},
		{"init", "now"},
		{"sync"},
		{"--verbose", "--quiet", "watch"},
	}
	for _, args := range cases {
		var stderr bytes.Buffer
		_, err := parseArgs(args, &stderr)
		var cliErr *cliError
		if !errors.As(err, &cliErr) || cliErr.Code != exitCodeUsage {
			t.Fatalf("%v: expected usage error, got %v", args, err)
		}
	}
}

func TestParseArgsVersion(t *testing.T) {
	for _, args := range [][]string{{"--version"}, {"version"}} {
		var stderr bytes.Buffer
		cfg, err := parseArgs(args, &stderr)
		if err != nil {
			t.Fatalf("%v: unexpected error: %v", args, err)
		}
		if !cfg.ShowVersion {
			t.Fatalf("%v: expected version request", args)
		}
	}
}
