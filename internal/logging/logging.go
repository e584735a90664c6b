// Package logging implements the leveled, structured logger described
// in SPEC_FULL.md §0.2: stderr always, plus an optional rotating file
// sink backed by lumberjack (the teacher's own log-rotation dependency).
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level is a logging verbosity level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Fields is structured context attached to a log line (action, project,
// entity, correlation id, ...).
type Fields map[string]any

// Logger is the shared AavionDB logger.
type Logger struct {
	mu       sync.Mutex
	min      Level
	out      io.Writer
	fileSink *lumberjack.Logger
}

// New creates a Logger writing to stderr at minimum level min, and, if
// logPath is non-empty, also to a rotating file there.
func New(min Level, logPath string) *Logger {
	l := &Logger{min: min, out: os.Stderr}
	if logPath != "" {
		l.fileSink = &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
	}
	return l
}

// Null returns a Logger that discards everything, for tests.
func Null() *Logger {
	return &Logger{min: LevelError + 1, out: io.Discard}
}

func (l *Logger) log(level Level, msg string, fields Fields) {
	if level < l.min {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	line := formatLine(level, msg, fields)
	fmt.Fprintln(l.out, line)
	if l.fileSink != nil {
		fmt.Fprintln(l.fileSink, line)
	}
}

func formatLine(level Level, msg string, fields Fields) string {
	ts := time.Now().UTC().Format(time.RFC3339Nano)
	line := fmt.Sprintf("%s [%s] %s", ts, level, msg)
	for k, v := range fields {
		line += fmt.Sprintf(" %s=%v", k, v)
	}
	return line
}

func (l *Logger) Debug(msg string, fields Fields) { l.log(LevelDebug, msg, fields) }
func (l *Logger) Info(msg string, fields Fields)  { l.log(LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string, fields Fields)  { l.log(LevelWarn, msg, fields) }
func (l *Logger) Error(msg string, fields Fields) { l.log(LevelError, msg, fields) }

// Close flushes and closes the file sink, if any.
func (l *Logger) Close() error {
	if l.fileSink != nil {
		return l.fileSink.Close()
	}
	return nil
}
