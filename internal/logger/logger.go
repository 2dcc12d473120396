// Package logger provides the process-wide logger.
//
// Calls take a printf-style format. Output goes to stderr as slog text
// records; debug lines are suppressed unless verbose mode is enabled with
// SetVerbose (the CLI wires this to -v).
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

var (
	level   = new(slog.LevelVar)
	current atomic.Pointer[slog.Logger]
)

func init() {
	SetOutput(os.Stderr)
}

// SetVerbose toggles debug logging.
func SetVerbose(verbose bool) {
	if verbose {
		level.Set(slog.LevelDebug)
		return
	}
	level.Set(slog.LevelInfo)
}

// IsVerbose reports whether debug logging is enabled.
func IsVerbose() bool {
	return level.Level() <= slog.LevelDebug
}

// SetOutput redirects log output. Used by tests and by the server when
// running under a supervisor that captures stdout.
func SetOutput(w io.Writer) {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	current.Store(slog.New(h))
}

func logf(l slog.Level, format string, args ...any) {
	lg := current.Load()
	ctx := context.Background()
	if !lg.Enabled(ctx, l) {
		return
	}
	lg.Log(ctx, l, fmt.Sprintf(format, args...))
}

// Debug logs at debug level.
func Debug(format string, args ...any) {
	logf(slog.LevelDebug, format, args...)
}

// Info logs at info level.
func Info(format string, args ...any) {
	logf(slog.LevelInfo, format, args...)
}

// Warn logs at warn level.
func Warn(format string, args ...any) {
	logf(slog.LevelWarn, format, args...)
}

// Error logs at error level.
func Error(format string, args ...any) {
	logf(slog.LevelError, format, args...)
}
