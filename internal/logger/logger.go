// Package logger provides leveled, printf-style logging on top of log/slog.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var (
	level   = new(slog.LevelVar)
	current atomic.Pointer[slog.Logger]
)

func init() {
	Setup(os.Stdout, false)
}

// Setup installs the handler used by every logging call. JSON output is
// meant for production, text output for local runs.
func Setup(w io.Writer, json bool) {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	l := slog.New(handler)
	current.Store(l)
	slog.SetDefault(l)
}

// SetLogLevel sets the minimum level from a name such as "DEBUG" or "warn".
// Unknown names fall back to INFO.
func SetLogLevel(name string) {
	level.Set(ParseLevel(name))
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a structured logger carrying the given attributes, for code
// that wants key/value fields instead of formatted messages.
func With(args ...any) *slog.Logger {
	return current.Load().With(args...)
}

func Debug(format string, args ...any) {
	logf(slog.LevelDebug, format, args...)
}

func Info(format string, args ...any) {
	logf(slog.LevelInfo, format, args...)
}

func Warn(format string, args ...any) {
	logf(slog.LevelWarn, format, args...)
}

func Error(format string, args ...any) {
	logf(slog.LevelError, format, args...)
}

// Fatal logs at error level and exits the process with status 1.
func Fatal(format string, args ...any) {
	logf(slog.LevelError, format, args...)
	os.Exit(1)
}

func logf(lvl slog.Level, format string, args ...any) {
	l := current.Load()
	ctx := context.Background()
	if !l.Enabled(ctx, lvl) {
		return
	}
	l.Log(ctx, lvl, fmt.Sprintf(format, args...))
}
