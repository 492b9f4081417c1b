package logging

import "time"

type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// CategoryKey names the subsystem attribute on exported OTel records.
const CategoryKey = "projsync.category"

// Entry is one log line as recorded in a History.
type Entry struct {
	Time     time.Time
	Level    Level
	Category string
	Message  string
	Fields   map[string]string
}
