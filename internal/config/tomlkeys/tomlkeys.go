// Package tomlkeys decodes TOML into dotted keys normalized to lowercase
// kebab case, so `[sync] item_type` and `sync.item-type` resolve alike.
// Documents remember where they came from, and a Stack resolves a key
// against several of them with the last one winning.
package tomlkeys

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// Document is one decoded source.
type Document struct {
	Source string
	tables map[string]any
	values map[string]any
}

// DecodeError reports a syntax error in a source.
type DecodeError struct {
	Source  string
	Line    int
	Message string
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s line %d: %s", e.Source, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func Decode(source string, data []byte) (Document, error) {
	tables := map[string]any{}
	if _, err := toml.Decode(string(data), &tables); err != nil {
		decodeErr := &DecodeError{Source: source, Err: err}
		var parseErr toml.ParseError
		if errors.As(err, &parseErr) {
			decodeErr.Line = parseErr.Position.Line
			decodeErr.Message = parseErr.Message
		}
		return Document{}, decodeErr
	}
	return FromTables(source, tables), nil
}

// FromTables wraps values that did not come from TOML text, such as
// command-line overrides. Keys may already be dotted.
func FromTables(source string, tables map[string]any) Document {
	flat := make(map[string]any)
	for key, value := range tables {
		flatten(key, value, flat)
	}
	// Sorted so that of two spellings of one key the same one always wins.
	keys := make([]string, 0, len(flat))
	for key := range flat {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	values := make(map[string]any, len(flat))
	for _, key := range keys {
		normalized := NormalizeKey(key)
		if normalized == "" {
			continue
		}
		if _, seen := values[normalized]; !seen {
			values[normalized] = flat[key]
		}
	}
	return Document{Source: source, tables: tables, values: values}
}

func flatten(key string, value any, out map[string]any) {
	table, ok := value.(map[string]any)
	if !ok {
		out[key] = value
		return
	}
	for child, nested := range table {
		flatten(key+"."+child, nested, out)
	}
}

// Keys returns the normalized leaf keys, sorted.
func (d Document) Keys() []string {
	keys := make([]string, 0, len(d.values))
	for key := range d.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Value returns the leaf value at key.
func (d Document) Value(key string) (any, bool) {
	value, ok := d.values[NormalizeKey(key)]
	return value, ok
}

// Table returns the unflattened value at key, so tables come back as maps.
func (d Document) Table(key string) (any, bool) {
	normalized := NormalizeKey(key)
	if value, ok := findKey(d.tables, normalized); ok {
		return value, true
	}
	var current any = d.tables
	for _, part := range strings.Split(normalized, ".") {
		table, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		next, ok := findKey(table, part)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

func findKey(table map[string]any, normalized string) (any, bool) {
	if value, ok := table[normalized]; ok {
		return value, true
	}
	keys := make([]string, 0, len(table))
	for key := range table {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if NormalizeKey(key) == normalized {
			return table[key], true
		}
	}
	return nil, false
}

// Stack resolves keys across documents; later documents win.
type Stack []Document

// Value returns the leaf value at key and the source that set it.
func (s Stack) Value(key string) (any, string, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if value, ok := s[i].Value(key); ok {
			return value, s[i].Source, true
		}
	}
	return nil, "", false
}

// Table is Value for keys that may hold a table.
func (s Stack) Table(key string) (any, string, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if value, ok := s[i].Table(key); ok {
			return value, s[i].Source, true
		}
	}
	return nil, "", false
}

func AsStringSlice(value any) ([]string, bool) {
	switch typed := value.(type) {
	case []string:
		return append([]string(nil), typed...), true
	case []any:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			text, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, text)
		}
		return out, true
	default:
		return nil, false
	}
}

// AsInt64 accepts any integer type, and floats without a fraction.
func AsInt64(value any) (int64, bool) {
	switch typed := value.(type) {
	case int64:
		return typed, true
	case int:
		return int64(typed), true
	case int32:
		return int64(typed), true
	case uint32:
		return int64(typed), true
	case float64:
		if typed == float64(int64(typed)) {
			return int64(typed), true
		}
	}
	return 0, false
}

func NormalizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	return strings.ReplaceAll(strings.ToLower(key), "_", "-")
}
