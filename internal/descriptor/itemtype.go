package descriptor

import (
	"path/filepath"
	"strings"
)

// DefaultItemType is used when a rule has neither a matching extension nor a
// wildcard.
const DefaultItemType = "Content"

// WildcardKey selects the fallback tag in an extension mapping.
const WildcardKey = "*"

// ItemTypeRule derives the item-type tag for a newly added file. It is either
// a single uniform tag or an extension mapping with a wildcard fallback. The
// zero value resolves every file to DefaultItemType.
type ItemTypeRule struct {
	uniform     string
	byExtension map[string]string
	wildcard    string
}

// Uniform returns a rule that tags every file with tag.
func Uniform(tag string) ItemTypeRule {
	return ItemTypeRule{uniform: strings.TrimSpace(tag)}
}

// ByExtension returns a rule that looks the file extension up in mapping and
// falls back to wildcard. Keys are matched case-insensitively and may be
// given with or without the leading dot; a "*" key in mapping is treated as
// the wildcard when wildcard is empty.
func ByExtension(mapping map[string]string, wildcard string) ItemTypeRule {
	rule := ItemTypeRule{
		byExtension: make(map[string]string, len(mapping)),
		wildcard:    strings.TrimSpace(wildcard),
	}
	for key, tag := range mapping {
		key = strings.TrimSpace(key)
		tag = strings.TrimSpace(tag)
		if key == "" || tag == "" {
			continue
		}
		if key == WildcardKey {
			if rule.wildcard == "" {
				rule.wildcard = tag
			}
			continue
		}
		rule.byExtension[normalizeExtension(key)] = tag
	}
	return rule
}

func normalizeExtension(ext string) string {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func (r ItemTypeRule) IsUniform() bool {
	return r.uniform != ""
}

// Resolve returns the tag for fileName.
func (r ItemTypeRule) Resolve(fileName string) string {
	if r.uniform != "" {
		return r.uniform
	}
	if ext := filepath.Ext(fileName); ext != "" {
		if tag, ok := r.byExtension[strings.ToLower(ext)]; ok {
			return tag
		}
	}
	if r.wildcard != "" {
		return r.wildcard
	}
	return DefaultItemType
}

func (r ItemTypeRule) String() string {
	if r.uniform != "" {
		return r.uniform
	}
	if len(r.byExtension) == 0 && r.wildcard == "" {
		return DefaultItemType
	}
	return "by-extension"
}
