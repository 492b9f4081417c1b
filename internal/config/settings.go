package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"projsync/internal/config/tomlkeys"
	"projsync/internal/descriptor"
)

const (
	// FileName is the settings file looked up in the workspace root.
	FileName = ".projsync.toml"

	keyEnabled          = "sync.enabled"
	keyIncludeRegex     = "sync.include-regex"
	keyExcludeRegex     = "sync.exclude-regex"
	keyItemType         = "sync.item-type"
	keySilentDeletion   = "sync.silent-deletion"
	keyDeletionDebounce = "sync.deletion-debounce-ms"
	keyExtensions       = "sync.descriptor-extensions"
	keyIgnoreFile       = "sync.ignore-file"
)

type Settings struct {
	Enabled bool
	// IncludeRegex, when set, must match a file's workspace-relative path.
	IncludeRegex *regexp.Regexp
	// ExcludeRegex, when set, must not match it.
	ExcludeRegex         *regexp.Regexp
	ItemType             descriptor.ItemTypeRule
	SilentDeletion       bool
	DeletionDebounce     time.Duration
	DescriptorExtensions []string
	// IgnoreFile is relative to WorkspaceRoot unless absolute.
	IgnoreFile    string
	WorkspaceRoot string
	// UnknownKeys lists keys in the settings file that nothing reads,
	// usually typos.
	UnknownKeys []string
}

// SettingError reports a value that could not be applied.
type SettingError struct {
	Key    string
	Source string
	Err    error
}

func (e *SettingError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("setting %s (from %s): %v", e.Key, e.Source, e.Err)
	}
	return fmt.Sprintf("setting %s: %v", e.Key, e.Err)
}

func (e *SettingError) Unwrap() error {
	return e.Err
}

var knownKeys = map[string]struct{}{
	keyEnabled:          {},
	keyIncludeRegex:     {},
	keyExcludeRegex:     {},
	keyItemType:         {},
	keySilentDeletion:   {},
	keyDeletionDebounce: {},
	keyExtensions:       {},
	keyIgnoreFile:       {},
}

func isKnownKey(key string) bool {
	if _, ok := knownKeys[key]; ok {
		return true
	}
	return strings.HasPrefix(key, keyItemType+".")
}

// LoadSettings layers the embedded defaults, the file at path (when it
// exists) and overrides, in that order.
func LoadSettings(path string, defaultsPayload []byte, overrides map[string]any) (Settings, error) {
	defaults, err := tomlkeys.Decode("defaults", defaultsPayload)
	if err != nil {
		return Settings{}, err
	}
	stack := tomlkeys.Stack{defaults}

	var settings Settings
	if strings.TrimSpace(path) != "" {
		payload, err := os.ReadFile(path)
		switch {
		case err == nil:
			file, err := tomlkeys.Decode(path, payload)
			if err != nil {
				return Settings{}, err
			}
			for _, key := range file.Keys() {
				if !isKnownKey(key) {
					settings.UnknownKeys = append(settings.UnknownKeys, key)
				}
			}
			stack = append(stack, file)
		case !os.IsNotExist(err):
			return Settings{}, err
		}
	}
	if len(overrides) > 0 {
		stack = append(stack, tomlkeys.FromTables("command line", overrides))
	}

	if settings.Enabled, err = boolSetting(stack, keyEnabled, true); err != nil {
		return Settings{}, err
	}
	if settings.SilentDeletion, err = boolSetting(stack, keySilentDeletion, false); err != nil {
		return Settings{}, err
	}
	if settings.IgnoreFile, err = stringSetting(stack, keyIgnoreFile); err != nil {
		return Settings{}, err
	}
	if settings.IncludeRegex, err = regexSetting(stack, keyIncludeRegex); err != nil {
		return Settings{}, err
	}
	if settings.ExcludeRegex, err = regexSetting(stack, keyExcludeRegex); err != nil {
		return Settings{}, err
	}
	if settings.DeletionDebounce, err = durationSetting(stack, keyDeletionDebounce); err != nil {
		return Settings{}, err
	}
	if settings.DescriptorExtensions, err = extensionsSetting(stack, keyExtensions); err != nil {
		return Settings{}, err
	}
	if value, source, ok := stack.Table(keyItemType); ok {
		if settings.ItemType, err = parseItemType(value); err != nil {
			return Settings{}, &SettingError{Key: keyItemType, Source: source, Err: err}
		}
	}
	return settings, nil
}

// Matches reports whether a workspace-relative path passes the include and
// exclude filters. Paths are matched with forward slashes.
func (s Settings) Matches(relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	if s.IncludeRegex != nil && !s.IncludeRegex.MatchString(relPath) {
		return false
	}
	if s.ExcludeRegex != nil && s.ExcludeRegex.MatchString(relPath) {
		return false
	}
	return true
}

// IgnorePath is the absolute location of the ignore list.
func (s Settings) IgnorePath() string {
	if s.IgnoreFile == "" || filepath.IsAbs(s.IgnoreFile) {
		return s.IgnoreFile
	}
	return filepath.Join(s.WorkspaceRoot, s.IgnoreFile)
}

func parseItemType(value any) (descriptor.ItemTypeRule, error) {
	switch typed := value.(type) {
	case string:
		tag := strings.TrimSpace(typed)
		if tag == "" {
			return descriptor.ItemTypeRule{}, nil
		}
		return descriptor.Uniform(tag), nil
	case map[string]any:
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		mapping := make(map[string]string, len(typed))
		for _, key := range keys {
			tag, ok := typed[key].(string)
			if !ok || strings.TrimSpace(tag) == "" {
				return descriptor.ItemTypeRule{}, fmt.Errorf("entry %q must be a non-empty string", key)
			}
			mapping[key] = strings.TrimSpace(tag)
		}
		return descriptor.ByExtension(mapping, ""), nil
	case map[string]string:
		return descriptor.ByExtension(typed, ""), nil
	default:
		return descriptor.ItemTypeRule{}, fmt.Errorf("expected a string or a table, got %T", value)
	}
}

func cleanExtensions(extensions []string) []string {
	cleaned := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		cleaned = append(cleaned, ext)
	}
	return cleaned
}

func regexSetting(stack tomlkeys.Stack, key string) (*regexp.Regexp, error) {
	pattern, err := stringSetting(stack, key)
	if err != nil || pattern == "" {
		return nil, err
	}
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		_, source, _ := stack.Value(key)
		return nil, &SettingError{Key: key, Source: source, Err: err}
	}
	return compiled, nil
}

func durationSetting(stack tomlkeys.Stack, key string) (time.Duration, error) {
	value, source, ok := stack.Value(key)
	if !ok {
		return 0, nil
	}
	millis, ok := tomlkeys.AsInt64(value)
	if !ok {
		return 0, &SettingError{Key: key, Source: source, Err: fmt.Errorf("expected milliseconds, got %T", value)}
	}
	if millis < 0 {
		return 0, &SettingError{Key: key, Source: source, Err: fmt.Errorf("must not be negative, got %d", millis)}
	}
	return time.Duration(millis) * time.Millisecond, nil
}

func extensionsSetting(stack tomlkeys.Stack, key string) ([]string, error) {
	value, source, ok := stack.Value(key)
	if !ok {
		return nil, nil
	}
	extensions, ok := tomlkeys.AsStringSlice(value)
	if !ok {
		return nil, &SettingError{Key: key, Source: source, Err: fmt.Errorf("expected an array of strings")}
	}
	return cleanExtensions(extensions), nil
}

func stringSetting(stack tomlkeys.Stack, key string) (string, error) {
	value, source, ok := stack.Value(key)
	if !ok {
		return "", nil
	}
	text, ok := value.(string)
	if !ok {
		return "", &SettingError{Key: key, Source: source, Err: fmt.Errorf("expected a string, got %T", value)}
	}
	return strings.TrimSpace(text), nil
}

func boolSetting(stack tomlkeys.Stack, key string, fallback bool) (bool, error) {
	value, source, ok := stack.Value(key)
	if !ok {
		return fallback, nil
	}
	flag, ok := value.(bool)
	if !ok {
		return fallback, &SettingError{Key: key, Source: source, Err: fmt.Errorf("expected true or false, got %T", value)}
	}
	return flag, nil
}
