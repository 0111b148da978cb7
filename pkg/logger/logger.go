package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l LogLevel) String() string {
	return [...]string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}[l]
}

// ParseLevel converts a level name (case-insensitive) to a LogLevel.
// Unknown names fall back to INFO.
func ParseLevel(level string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

// Logger is a structured logger
type Logger struct {
	level      LogLevel
	writer     io.Writer
	structured bool // JSON output if true
	mu         sync.Mutex
}

// LogEntry represents a structured log entry
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

var (
	defaultLogger *Logger
	defaultMu     sync.RWMutex
)

func init() {
	defaultLogger = NewLogger(INFO, os.Stdout, false)
}

// NewLogger creates a new logger instance
func NewLogger(level LogLevel, writer io.Writer, structured bool) *Logger {
	return &Logger{
		level:      level,
		writer:     writer,
		structured: structured,
	}
}

// SetDefault sets the default logger
func SetDefault(logger *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = logger
}

// Default returns the process-wide logger
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// Enabled reports whether messages at level would be written
func (l *Logger) Enabled(level LogLevel) bool {
	return level >= l.level
}

// Log logs a message with the given level and fields
func (l *Logger) Log(level LogLevel, message string, fields map[string]interface{}) {
	l.LogError(level, message, nil, fields)
}

// LogError logs a message together with an error
func (l *Logger) LogError(level LogLevel, message string, err error, fields map[string]interface{}) {
	if !l.Enabled(level) {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level.String(),
		Message:   message,
		Fields:    fields,
	}

	if err != nil {
		entry.Error = err.Error()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.structured {
		l.logJSON(entry)
	} else {
		l.logText(entry)
	}
}

func (l *Logger) logJSON(entry LogEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		// fields may carry values json cannot encode (funcs, channels)
		entry.Fields = map[string]interface{}{"fields": fmt.Sprintf("%+v", entry.Fields)}
		data, _ = json.Marshal(entry)
	}
	fmt.Fprintln(l.writer, string(data))
}

func (l *Logger) logText(entry LogEntry) {
	msg := fmt.Sprintf("[%s] %s: %s", entry.Timestamp, entry.Level, entry.Message)

	if len(entry.Fields) > 0 {
		msg += fmt.Sprintf(" %+v", entry.Fields)
	}

	if entry.Error != "" {
		msg += fmt.Sprintf(" error=%s", entry.Error)
	}

	fmt.Fprintln(l.writer, msg)
}

// Convenience methods for default logger

func Debug(message string, fields map[string]interface{}) {
	Default().Log(DEBUG, message, fields)
}

func Info(message string, fields map[string]interface{}) {
	Default().Log(INFO, message, fields)
}

func Warn(message string, fields map[string]interface{}) {
	Default().Log(WARN, message, fields)
}

func Error(message string, err error, fields map[string]interface{}) {
	Default().LogError(ERROR, message, err, fields)
}

func Fatal(message string, err error, fields map[string]interface{}) {
	Default().LogError(FATAL, message, err, fields)
	os.Exit(1)
}

// FieldLogger carries a fixed set of fields into every message.
// It resolves the default logger on each call so SetDefault in tests
// takes effect for loggers created at package init.
type FieldLogger struct {
	logger *Logger
	fields map[string]interface{}
}

// WithFields creates a logger with default fields
func WithFields(fields map[string]interface{}) *FieldLogger {
	return &FieldLogger{fields: fields}
}

// ForComponent is shorthand for WithFields({"component": name})
func ForComponent(name string) *FieldLogger {
	return WithFields(map[string]interface{}{"component": name})
}

// With returns a copy carrying the extra fields
func (f *FieldLogger) With(fields map[string]interface{}) *FieldLogger {
	return &FieldLogger{logger: f.logger, fields: f.merge(fields)}
}

func (f *FieldLogger) target() *Logger {
	if f.logger != nil {
		return f.logger
	}
	return Default()
}

func (f *FieldLogger) merge(extra map[string]interface{}) map[string]interface{} {
	if len(extra) == 0 {
		return f.fields
	}
	merged := make(map[string]interface{}, len(f.fields)+len(extra))
	for k, v := range f.fields {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

func (f *FieldLogger) Debug(message string, fields map[string]interface{}) {
	f.target().Log(DEBUG, message, f.merge(fields))
}

func (f *FieldLogger) Info(message string, fields map[string]interface{}) {
	f.target().Log(INFO, message, f.merge(fields))
}

func (f *FieldLogger) Warn(message string, fields map[string]interface{}) {
	f.target().Log(WARN, message, f.merge(fields))
}

func (f *FieldLogger) Error(message string, err error, fields map[string]interface{}) {
	f.target().LogError(ERROR, message, err, f.merge(fields))
}
