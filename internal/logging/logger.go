package logging

import (
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with a few helpers used across handlers and services.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a logger writing to stdout.
// Development mode uses a human-readable text handler at debug level,
// production uses JSON at info level.
func NewLogger(isDev bool) *Logger {
	return newLogger(os.Stdout, isDev)
}

// NewNopLogger returns a logger that discards everything. Useful in tests.
func NewNopLogger() *Logger {
	return newLogger(io.Discard, false)
}

// NewWithWriter creates a logger writing JSON records to w.
func NewWithWriter(w io.Writer, level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))}
}

func newLogger(w io.Writer, isDev bool) *Logger {
	if isDev {
		return &Logger{Logger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))}
	}
	return &Logger{Logger: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))}
}

// WithFields returns a child logger with the given key/value pairs attached.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{Logger: l.Logger.With(args...)}
}
