package logging

import (
	"context"
	"io"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	logglobal "go.opentelemetry.io/otel/log/global"
)

const otelScope = "projsync"

// Logger writes leveled key/value lines, records them into a History and
// forwards them to the global OTel logger provider.
type Logger struct {
	history  *History
	output   *log.Logger
	minLevel Level
	category string
	fields   map[string]string
}

// NewLoggerWithOutput logs at minLevel and above to output. A nil history
// gets a fresh one of DefaultHistorySize.
func NewLoggerWithOutput(history *History, minLevel Level, output io.Writer) *Logger {
	if history == nil {
		history = NewHistory(DefaultHistorySize)
	}
	if output == nil {
		output = io.Discard
	}
	return &Logger{
		history:  history,
		output:   log.New(output, "", log.LstdFlags),
		minLevel: normalizeLevel(minLevel),
	}
}

// Discard returns a logger that writes nowhere and keeps a small history.
func Discard() *Logger {
	return NewLoggerWithOutput(NewHistory(64), LevelInfo, io.Discard)
}

func (l *Logger) History() *History {
	if l == nil {
		return nil
	}
	return l.history
}

// With returns a logger that adds fields to every entry.
func (l *Logger) With(fields map[string]string) *Logger {
	if l == nil {
		return l
	}
	child := *l
	child.fields = mergeFields(l.fields, fields)
	return &child
}

// Category returns a logger whose entries name the producing subsystem.
func (l *Logger) Category(name string) *Logger {
	if l == nil {
		return l
	}
	child := *l
	child.category = name
	return &child
}

func (l *Logger) Debug(message string, fields map[string]string) {
	l.log(LevelDebug, message, fields)
}

func (l *Logger) Info(message string, fields map[string]string) {
	l.log(LevelInfo, message, fields)
}

func (l *Logger) Warn(message string, fields map[string]string) {
	l.log(LevelWarning, message, fields)
}

func (l *Logger) Error(message string, fields map[string]string) {
	l.log(LevelError, message, fields)
}

func (l *Logger) Enabled(level Level) bool {
	if l == nil {
		return false
	}
	return levelRank(level) >= levelRank(l.minLevel)
}

func (l *Logger) log(level Level, message string, fields map[string]string) {
	if !l.Enabled(level) {
		return
	}
	entry := Entry{
		Time:     time.Now().UTC(),
		Level:    level,
		Category: l.category,
		Message:  message,
		Fields:   mergeFields(l.fields, fields),
	}
	l.history.record(entry)
	emitOTel(entry)
	l.output.Print(formatEntry(entry))
}

func emitOTel(entry Entry) {
	logger := logglobal.GetLoggerProvider().Logger(otelScope)

	var record otellog.Record
	record.SetTimestamp(entry.Time)
	record.SetObservedTimestamp(time.Now().UTC())
	record.SetSeverity(otelSeverity(entry.Level))
	record.SetSeverityText(string(entry.Level))
	record.SetBody(otellog.StringValue(entry.Message))
	attrs := make([]otellog.KeyValue, 0, len(entry.Fields)+1)
	if entry.Category != "" {
		attrs = append(attrs, otellog.String(CategoryKey, entry.Category))
	}
	for _, key := range sortedKeys(entry.Fields) {
		attrs = append(attrs, otellog.String(key, entry.Fields[key]))
	}
	record.AddAttributes(attrs...)
	logger.Emit(context.Background(), record)
}

func otelSeverity(level Level) otellog.Severity {
	switch level {
	case LevelDebug:
		return otellog.SeverityDebug
	case LevelWarning:
		return otellog.SeverityWarn
	case LevelError:
		return otellog.SeverityError
	default:
		return otellog.SeverityInfo
	}
}

var levelRanks = map[Level]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

func normalizeLevel(level Level) Level {
	if _, ok := levelRanks[level]; ok {
		return level
	}
	return LevelInfo
}

func levelRank(level Level) int {
	if rank, ok := levelRanks[level]; ok {
		return rank
	}
	return levelRanks[LevelInfo]
}

// ParseLevel accepts level names case-insensitively, plus "warn".
func ParseLevel(value string) (Level, bool) {
	name := strings.ToLower(strings.TrimSpace(value))
	if name == "warn" {
		return LevelWarning, true
	}
	level := Level(name)
	if _, ok := levelRanks[level]; !ok {
		return "", false
	}
	return level, true
}

func mergeFields(base, extra map[string]string) map[string]string {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	merged := make(map[string]string, len(base)+len(extra))
	for key, value := range base {
		merged[key] = value
	}
	for key, value := range extra {
		merged[key] = value
	}
	return merged
}

func sortedKeys(fields map[string]string) []string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// formatEntry renders `level=info category=engine msg="..." key="value"`.
func formatEntry(entry Entry) string {
	var builder strings.Builder
	builder.WriteString("level=")
	builder.WriteString(string(entry.Level))
	if entry.Category != "" {
		builder.WriteString(" category=")
		builder.WriteString(entry.Category)
	}
	builder.WriteString(" msg=")
	builder.WriteString(strconv.Quote(entry.Message))
	for _, key := range sortedKeys(entry.Fields) {
		builder.WriteString(" ")
		builder.WriteString(key)
		builder.WriteString("=")
		builder.WriteString(strconv.Quote(entry.Fields[key]))
	}
	return builder.String()
}
