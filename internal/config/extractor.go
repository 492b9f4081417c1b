package config

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"

	"projsync/internal/fsutil"
	"projsync/internal/logging"
)

// ExtractResult tells what Extract did with the destination file.
type ExtractResult int

const (
	ExtractUnchanged ExtractResult = iota
	ExtractWritten
	ExtractReplaced
)

// BackupSuffix is appended to a replaced settings file.
const BackupSuffix = ".bck"

// Extractor writes the built-in settings document into a workspace.
type Extractor struct {
	Logger *logging.Logger
}

// Extract copies sourcePath from sourceFS to destPath. An identical file is
// left alone; a different one is renamed to destPath+BackupSuffix first.
func (e *Extractor) Extract(sourceFS fs.FS, sourcePath, destPath string) (ExtractResult, error) {
	payload, err := fs.ReadFile(sourceFS, sourcePath)
	if err != nil {
		return ExtractUnchanged, fmt.Errorf("read source file: %w", err)
	}

	result := ExtractWritten
	if info, err := os.Stat(destPath); err == nil {
		if info.IsDir() {
			return ExtractUnchanged, fmt.Errorf("destination is a directory: %s", destPath)
		}
		existing, err := os.ReadFile(destPath)
		if err != nil {
			return ExtractUnchanged, fmt.Errorf("read existing file: %w", err)
		}
		if blake3.Sum256(existing) == blake3.Sum256(payload) {
			e.logDebug("settings file up-to-date, skipping", map[string]string{
				"path": destPath,
			})
			return ExtractUnchanged, nil
		}
		backupPath := destPath + BackupSuffix
		if err := removeFileIfExists(backupPath); err != nil {
			return ExtractUnchanged, fmt.Errorf("remove backup file: %w", err)
		}
		if err := os.Rename(destPath, backupPath); err != nil {
			return ExtractUnchanged, fmt.Errorf("backup file: %w", err)
		}
		e.logWarn("settings file backed up", map[string]string{
			"path":   destPath,
			"backup": backupPath,
		})
		result = ExtractReplaced
	} else if !os.IsNotExist(err) {
		return ExtractUnchanged, fmt.Errorf("stat destination: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return ExtractUnchanged, fmt.Errorf("create destination directory: %w", err)
	}
	if err := fsutil.WriteFileAtomic(destPath, payload); err != nil {
		return ExtractUnchanged, fmt.Errorf("write file: %w", err)
	}
	e.logInfo("settings file extracted", map[string]string{
		"path": destPath,
	})
	return result, nil
}

func removeFileIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (e *Extractor) logDebug(message string, fields map[string]string) {
	if e == nil || e.Logger == nil {
		return
	}
	e.Logger.Debug(message, fields)
}

func (e *Extractor) logInfo(message string, fields map[string]string) {
	if e == nil || e.Logger == nil {
		return
	}
	e.Logger.Info(message, fields)
}

func (e *Extractor) logWarn(message string, fields map[string]string) {
	if e == nil || e.Logger == nil {
		return
	}
	e.Logger.Warn(message, fields)
}
