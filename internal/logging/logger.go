// Package logging provides structured logging for chain-player.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger creates a stderr logger with the specified format and level.
// Format should be "json" or "text".
// Level should be "debug", "info", "warn", or "error".
// Verbose forces debug level and adds source locations.
func NewLogger(format, level string, verbose bool) *slog.Logger {
	return slog.New(NewHandler(os.Stderr, format, level, verbose))
}

// NewLoggerWithWriter creates a logger that writes to a custom writer.
// Useful for testing.
func NewLoggerWithWriter(w io.Writer, format, level string) *slog.Logger {
	return slog.New(NewHandler(w, format, level, false))
}

// NewHandler returns the handler NewLogger would use, writing to w.
func NewHandler(w io.Writer, format, level string, verbose bool) slog.Handler {
	if w == nil {
		w = io.Discard
	}

	logLevel := parseLevel(level)
	if verbose {
		logLevel = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: verbose,
	}

	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	// Default to JSON for structured logging
	return slog.NewJSONHandler(w, opts)
}

// parseLevel converts a string level to slog.Level.
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
