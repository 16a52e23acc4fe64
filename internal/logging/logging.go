// Package logging configures the process-wide slog logger and provides
// adapters for third-party logging interfaces.
package logging

import (
	"fmt"
	"log/slog"
	"os"
)

// Configure builds the root slog logger from config values and installs it
// as the process default. Returns the logger so callers can scope it with
// component attributes.
func Configure(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}
