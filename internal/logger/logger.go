// Package logger builds the slog logger used for mr diagnostics.
package logger

import (
	"errors"
	"io"
	"log/slog"
	"strings"
)

// New sets up the slog logger with level and format from arguments.
// logLevel: "info", "debug", "warn", "error"
// logFormat: "json" or "text"
// Output goes to w, which is stderr in the CLI: stdout belongs to the
// child process output and listings.
func New(logLevel, logFormat string, w io.Writer) (*slog.Logger, error) {
	if strings.TrimSpace(logLevel) == "" || strings.TrimSpace(logFormat) == "" {
		return nil, errors.New("logLevel and logFormat must not be empty")
	}
	level, err := ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{Key: "timestamp", Value: a.Value}
			}
			return a
		},
	}

	var handler slog.Handler
	switch strings.ToLower(logFormat) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, errors.New("invalid logFormat: " + logFormat)
	}

	return slog.New(handler), nil
}

// ParseLevel converts a level name into a slog.Level.
func ParseLevel(logLevel string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, errors.New("invalid logLevel: " + logLevel)
	}
}
