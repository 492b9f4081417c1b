package projsync

import "embed"

// EmbeddedConfigFS holds the built-in settings defaults.
//
//go:embed config
var EmbeddedConfigFS embed.FS

// DefaultsPath is the defaults document inside EmbeddedConfigFS.
const DefaultsPath = "config/defaults.toml"
