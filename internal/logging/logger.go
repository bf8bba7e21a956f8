package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents the log level. Messages above the logger's level are
// dropped.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

// String returns the level tag written in front of every message
func (l Level) String() string {
	switch l {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	case LevelTrace:
		return "TRACE"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// ParseLevel converts a level name such as "debug" to a Level
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return LevelError, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "info", "":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	case "trace":
		return LevelTrace, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger provides thread-safe logging with timestamps. Derived loggers
// share the writer and its lock.
type Logger struct {
	mu     *sync.Mutex
	writer io.Writer
	level  Level
	file   *os.File
	prefix string
	now    func() time.Time
}

// New creates a new Logger writing to stderr, so stdout stays free for
// export output
func New(verbose bool) *Logger {
	level := LevelInfo
	if verbose {
		level = LevelDebug
	}
	return NewWithWriter(os.Stderr, level)
}

// NewWithWriter creates a Logger writing to w at level
func NewWithWriter(w io.Writer, level Level) *Logger {
	return &Logger{
		mu:     &sync.Mutex{},
		writer: w,
		level:  level,
		now:    time.Now,
	}
}

// NewWithFile creates a new Logger that writes to both file and stderr
func NewWithFile(path string, level Level) (*Logger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l := NewWithWriter(io.MultiWriter(os.Stderr, file), level)
	l.file = file
	return l, nil
}

// Close closes the log file if open
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Level returns the logger's level
func (l *Logger) Level() Level {
	return l.level
}

// Enabled reports whether messages at level are written
func (l *Logger) Enabled(level Level) bool {
	return level <= l.level
}

// formatTimestamp returns a formatted timestamp
func (l *Logger) formatTimestamp() string {
	return l.now().Format("2006-01-02 15:04:05")
}

// log writes a log message with the given level
func (l *Logger) log(level Level, format string, args ...interface{}) {
	if !l.Enabled(level) {
		return
	}

	prefix := l.prefix
	if prefix != "" {
		prefix = "[" + prefix + "] "
	}
	msg := strings.TrimRight(fmt.Sprintf(format, args...), "\n")
	line := fmt.Sprintf("[%s] %-5s %s%s\n", l.formatTimestamp(), level, prefix, msg)

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.writer, line)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(LevelError, format, args...)
}

// Warn logs a warning
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(LevelWarn, format, args...)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(LevelInfo, format, args...)
}

// Debug logs a debug message (only when verbose is enabled)
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(LevelDebug, format, args...)
}

// Debugf is Debug under the name used by diagnostic sinks
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(LevelDebug, format, args...)
}

// Trace logs per-row detail
func (l *Logger) Trace(format string, args ...interface{}) {
	l.log(LevelTrace, format, args...)
}

// WithPrefix returns a new logger with the given prefix appended to the
// current one
func (l *Logger) WithPrefix(prefix string) *Logger {
	child := *l
	if l.prefix != "" && prefix != "" {
		child.prefix = l.prefix + " " + prefix
	} else if prefix != "" {
		child.prefix = prefix
	}
	return &child
}

// WithRun returns a new logger tagged with a shortened run id
func (l *Logger) WithRun(runID string) *Logger {
	if len(runID) > 8 {
		runID = runID[:8]
	}
	return l.WithPrefix("run " + runID)
}

// WithForm returns a new logger tagged with a form id
func (l *Logger) WithForm(formID string) *Logger {
	return l.WithPrefix("form " + formID)
}

// StdLogger returns a standard library logger writing at info level
func (l *Logger) StdLogger() *log.Logger {
	return log.New(stdWriter{l}, "", 0)
}

type stdWriter struct{ l *Logger }

func (w stdWriter) Write(p []byte) (int, error) {
	w.l.Info("%s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
