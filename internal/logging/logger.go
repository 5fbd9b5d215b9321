// Package logging builds the slog loggers used across go-pipe-drain and
// turns child output lines into log records for verbose tracing.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger creates the process-wide logger writing to stderr.
// Format is "json" or "text" (default). Level is "debug", "info", "warn" or
// "error". Verbose forces debug and adds source locations.
func NewLogger(format, level string, verbose bool) *slog.Logger {
	lvl := parseLevel(level)
	if verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(newHandler(os.Stderr, format, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: verbose,
	}))
}

// NewLoggerWithWriter creates a logger that writes to w. A nil writer
// discards everything.
func NewLoggerWithWriter(w io.Writer, format, level string) *slog.Logger {
	if w == nil {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(newHandler(w, format, &slog.HandlerOptions{Level: parseLevel(level)}))
}

func newHandler(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// parseLevel converts a level name to slog.Level. Unknown names are info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetDefault sets the default logger for the slog package.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}
