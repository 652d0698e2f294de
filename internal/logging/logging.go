// Package logging provides logging utilities for WAF Sentinel.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup builds the process-wide slog logger from the configured level
// and format and installs it as the default.
func Setup(level, format string) *slog.Logger {
	return SetupWriter(level, format, os.Stderr)
}

// SetupWriter is Setup with an explicit output, used by tests.
func SetupWriter(level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

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
