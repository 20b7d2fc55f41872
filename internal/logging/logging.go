// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// EnvLevel overrides the configured level when set.
const EnvLevel = "VECSEARCH_LOG_LEVEL"

var logLevel = new(slog.LevelVar)

// Configure installs a text or JSON handler writing to w as the default
// logger and returns it. level is one of debug, info, warn, error; the
// VECSEARCH_LOG_LEVEL environment variable takes precedence.
func Configure(w io.Writer, level, format string) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	SetLevel(level)

	opts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// SetLevel changes the level of the logger installed by Configure and
// returns the level in effect. VECSEARCH_LOG_LEVEL still takes precedence.
func SetLevel(level string) slog.Level {
	if env := os.Getenv(EnvLevel); env != "" {
		level = env
	}
	l := ParseLevel(level)
	logLevel.Set(l)
	return l
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	}
	return slog.LevelInfo
}
