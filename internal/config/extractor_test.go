package config

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
)

func sourceFS(contents string) fstest.MapFS {
	return fstest.MapFS{
		"config/defaults.toml": &fstest.MapFile{Data: []byte(contents), Mode: 0o644},
	}
}

func TestExtractWritesMissingFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "nested", FileName)
	extractor := &Extractor{}

	result, err := extractor.Extract(sourceFS("[sync]\n"), "config/defaults.toml", dest)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if result != ExtractWritten {
		t.Fatalf("expected written, got %d", result)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}
	if string(data) != "[sync]\n" {
		t.Fatalf("expected defaults copied, got %q", data)
	}
}

func TestExtractSkipsIdenticalFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(dest, []byte("[sync]\n"), 0o644); err != nil {
		t.Fatalf("write dest: %v", err)
	}

	result, err := (&Extractor{}).Extract(sourceFS("[sync]\n"), "config/defaults.toml", dest)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if result != ExtractUnchanged {
		t.Fatalf("expected unchanged, got %d", result)
	}
	if _, err := os.Stat(dest + BackupSuffix); !os.IsNotExist(err) {
		t.Fatalf("expected no backup, got %v", err)
	}
}

func TestExtractBacksUpDifferentFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(dest, []byte("[sync]\nenabled = false\n"), 0o644); err != nil {
		t.Fatalf("write dest: %v", err)
	}
	if err := os.WriteFile(dest+BackupSuffix, []byte("stale"), 0o644); err != nil {
		t.Fatalf("write old backup: %v", err)
	}

	result, err := (&Extractor{}).Extract(sourceFS("[sync]\n"), "config/defaults.toml", dest)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if result != ExtractReplaced {
		t.Fatalf("expected replaced, got %d", result)
	}
	backup, err := os.ReadFile(dest + BackupSuffix)
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if string(backup) != "[sync]\nenabled = false\n" {
		t.Fatalf("expected previous settings in backup, got %q", backup)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}
	if string(data) != "[sync]\n" {
		t.Fatalf("expected defaults written, got %q", data)
	}
}

func TestExtractRejectsDirectory(t *testing.T) {
	dest := t.TempDir()
	if _, err := (&Extractor{}).Extract(sourceFS("[sync]\n"), "config/defaults.toml", dest); err == nil {
		t.Fatalf("expected error for directory destination")
	}
}

func TestExtractMissingSource(t *testing.T) {
	dest := filepath.Join(t.TempDir(), FileName)
	if _, err := (&Extractor{}).Extract(sourceFS("[sync]\n"), "config/missing.toml", dest); err == nil {
		t.Fatalf("expected error for missing source")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatalf("expected no file written, got %v", err)
	}
}
