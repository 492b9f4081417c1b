package cli

import (
	"errors"
	"flag"
	"io"
	"testing"

	"projsync/internal/logging"
)

func TestHelpFlag(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	flags := AddHelpVersionFlags(fs, "", "")

	if err := fs.Parse([]string{"-h"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !flags.Help {
		t.Fatalf("expected help flag set")
	}
}

func TestVersionFlag(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	flags := AddHelpVersionFlags(fs, "", "")

	if err := fs.Parse([]string{"--version"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !flags.Version {
		t.Fatalf("expected version flag set")
	}
}

func TestLogLevelFlags(t *testing.T) {
	cases := []struct {
		args     []string
		expected logging.Level
		wantErr  bool
	}{
		{args: nil, expected: logging.LevelInfo},
		{args: []string{"--verbose"}, expected: logging.LevelDebug},
		{args: []string{"--quiet"}, expected: logging.LevelError},
		{args: []string{"--verbose", "--quiet"}, wantErr: true},
	}
	for _, testCase := range cases {
		fs := flag.NewFlagSet("test", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		flags := AddLogLevelFlags(fs)
		if err := fs.Parse(testCase.args); err != nil {
			t.Fatalf("parse %v: %v", testCase.args, err)
		}
		level, err := flags.Level()
		if testCase.wantErr {
			if !errors.Is(err, ErrConflictingLevels) {
				t.Fatalf("%v: expected ErrConflictingLevels, got %v", testCase.args, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%v: unexpected error %v", testCase.args, err)
		}
		if level != testCase.expected {
			t.Fatalf("%v: expected %s, got %s", testCase.args, testCase.expected, level)
		}
	}
}

func TestNilFlagSet(t *testing.T) {
	if flags := AddHelpVersionFlags(nil, "", ""); flags == nil || flags.Help {
		t.Fatalf("expected empty help flags")
	}
	var levels *LogLevelFlags
	if level, err := levels.Level(); err != nil || level != logging.LevelInfo {
		t.Fatalf("expected info level, got %s %v", level, err)
	}
}
