package logging

import (
	"log/slog"
	"os"
	"strings"
)

// level backs every handler created by New so the level can change at runtime.
var level = new(slog.LevelVar)

// New initializes a new slog logger and sets it as the default.
// It reads the LOG_FORMAT environment variable to determine the output format
// and LOG_LEVEL for the initial level. Defaults to "text" and "debug" for development.
func New() {
	logFormat := os.Getenv("LOG_FORMAT")
	if logFormat == "" {
		logFormat = "text" // Default to text for development
	}
	SetLevel(os.Getenv("LOG_LEVEL"))

	var handler slog.Handler
	switch logFormat {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:     level,
			AddSource: true, // Adds source file and line number
		})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
}

// Level returns the current minimum level.
func Level() slog.Level {
	return level.Level()
}

// SetLevel changes the minimum level of the default logger.
// Unknown or empty values fall back to debug.
func SetLevel(name string) slog.Level {
	l := ParseLevel(name)
	level.Set(l)
	return l
}

// ParseLevel maps a LOG_LEVEL value onto a slog level.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}
