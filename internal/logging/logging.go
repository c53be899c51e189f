// Package logging builds the service's slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// ParseLevel maps DEBUG/INFO/WARN/ERROR (any case) to a slog level, defaulting to INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup logs text to stderr and, when logFile is set, JSON to that file as well.
// The returned cleanup closes the file.
func Setup(level, logFile string) (*slog.Logger, func() error) {
	lvl := ParseLevel(level)
	stderrHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	if logFile == "" {
		return slog.New(stderrHandler), func() error { return nil }
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		logger := slog.New(stderrHandler)
		logger.Error("failed to open log file, using stderr only", "error", err, "file", logFile)
		return logger, func() error { return nil }
	}

	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: lvl})
	return slog.New(slogmulti.Fanout(stderrHandler, fileHandler)), file.Close
}

// WithWriters fans out to a text writer and a JSON writer. Used by tests.
func WithWriters(text, json io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slogmulti.Fanout(
		slog.NewTextHandler(text, &slog.HandlerOptions{Level: level}),
		slog.NewJSONHandler(json, &slog.HandlerOptions{Level: level}),
	))
}

// Discard drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
