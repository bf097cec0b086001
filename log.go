package vkm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// LogLevel mirrors the five levels of the spec's logger interface. Fatal is
// terminal: it is never returned to a caller, only raised by Fatal/Fatalf.
type LogLevel int

const (
	LogVerbose LogLevel = iota
	LogInfo
	LogWarn
	LogError
	LogFatal
)

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogVerbose:
		return slog.LevelDebug
	case LogInfo:
		return slog.LevelInfo
	case LogWarn:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// Logger receives a level, a sequence of tags, and a message. Tags are
// carried as slog attributes; in debug builds the driver debug messenger
// forwards validation/perf/general messages through this same interface.
type Logger struct {
	base *slog.Logger
}

var defaultLogger = NewLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))

// NewLogger wraps an existing *slog.Logger. Passing nil discards all output.
func NewLogger(base *slog.Logger) *Logger {
	if base == nil {
		base = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Logger{base: base}
}

// SetDefaultLogger replaces the package-level logger used by components that
// were not constructed with an explicit one.
func SetDefaultLogger(l *Logger) {
	if l == nil {
		return
	}
	defaultLogger = l
}

func (l *Logger) log(level LogLevel, tags []string, msg string) {
	if l == nil {
		l = defaultLogger
	}
	args := make([]any, 0, len(tags))
	for i, t := range tags {
		args = append(args, slog.String(fmt.Sprintf("tag%d", i), t))
	}
	l.base.Log(context.Background(), level.slogLevel(), msg, args...)
}

func (l *Logger) Verbosef(format string, args ...any) { l.log(LogVerbose, nil, fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...any)    { l.log(LogInfo, nil, fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...any)    { l.log(LogWarn, nil, fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...any)   { l.log(LogError, nil, fmt.Sprintf(format, args...)) }

// TaggedInfof attaches message-id/queue/command-buffer style tags, mirroring
// the debug-messenger forwarding path described in the logger interface.
func (l *Logger) TaggedInfof(level LogLevel, tags []string, format string, args ...any) {
	l.log(level, tags, fmt.Sprintf(format, args...))
}

// debugLabel logs the association between a native handle and a name. Real
// object labelling (vkSetDebugUtilsObjectNameEXT) is an out-of-scope
// debug-label-attachment concern; this only records it for diagnostics.
func debugLabel(logger *Logger, kind string, name string) {
	if logger == nil {
		logger = defaultLogger
	}
	logger.Verbosef("debugLabel: %s -> %s", kind, name)
}
