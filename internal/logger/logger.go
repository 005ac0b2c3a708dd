// Package logger provides leveled logging on top of the standard log package.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

// Level represents the severity of a log message
type Level int32

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	SILENT // No logging
)

var levelNames = map[Level]string{
	DEBUG:  "DEBUG",
	INFO:   "INFO",
	WARN:   "WARN",
	ERROR:  "ERROR",
	SILENT: "SILENT",
}

// String returns the string representation of a log level
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseLevel parses a log level string
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG, nil
	case "info", "":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	case "silent", "none":
		return SILENT, nil
	default:
		return INFO, fmt.Errorf("invalid log level: %s", s)
	}
}

// Logger writes leveled, module-tagged lines through a *log.Logger.
// Loggers derived with With share the level of their parent.
type Logger struct {
	level  *atomic.Int32
	out    *log.Logger
	module string
}

// New creates a Logger writing to w (stderr when nil).
func New(level Level, w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	l := &Logger{
		level: new(atomic.Int32),
		out:   log.New(w, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	l.level.Store(int32(level))
	return l
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	return New(SILENT, io.Discard)
}

// With returns a child logger tagged with module.
func (l *Logger) With(module string) *Logger {
	return &Logger{level: l.level, out: l.out, module: module}
}

// SetLevel changes the log level for this logger and every logger sharing it.
func (l *Logger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

// Level returns the current log level
func (l *Logger) Level() Level {
	return Level(l.level.Load())
}

// Enabled reports whether messages at level would be written.
func (l *Logger) Enabled(level Level) bool {
	return level >= l.Level() && level < SILENT
}

func (l *Logger) logf(level Level, format string, args ...interface{}) {
	if !l.Enabled(level) {
		return
	}
	prefix := "[" + level.String() + "]"
	if l.module != "" {
		prefix += " [" + l.module + "]"
	}
	l.out.Printf("%s %s", prefix, fmt.Sprintf(format, args...))
}

// Debugf logs a debug message
func (l *Logger) Debugf(format string, args ...interface{}) { l.logf(DEBUG, format, args...) }

// Infof logs an info message
func (l *Logger) Infof(format string, args ...interface{}) { l.logf(INFO, format, args...) }

// Warnf logs a warning message
func (l *Logger) Warnf(format string, args ...interface{}) { l.logf(WARN, format, args...) }

// Errorf logs an error message
func (l *Logger) Errorf(format string, args ...interface{}) { l.logf(ERROR, format, args...) }
