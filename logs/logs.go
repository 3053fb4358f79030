// Package logs builds the slog.Logger used across the whole service.
package logs

import (
	"log/slog"
	"os"
	"strings"
)

// FromString maps a level name from configuration to a ready-to-use logger.
// Unknown values default to INFO so a typo in LOG_LEVEL never silences logs.
func FromString(level string) *slog.Logger {
	return FromLevel(parseLevel(level))
}

func FromLevel(level slog.Level) *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

func parseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
