// Package util provides shared helpers for logging, retries, rate limiting,
// and US market-hours checks.
package util

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions selects the logger's level, encoding and optional rotating file.
type LogOptions struct {
	Level      string
	Format     string // "json" or "text"
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// NewLogger creates a structured logger using log/slog. Supported levels:
// "debug", "info", "warn", "error"; anything else means "info". When
// opts.File is set, records are also written to a size-rotated file.
func NewLogger(opts LogOptions) *slog.Logger {
	var w io.Writer = os.Stdout
	if opts.File != "" {
		w = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 50),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			Compress:   true,
		})
	}

	hopts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	if strings.EqualFold(opts.Format, "text") {
		return slog.New(slog.NewTextHandler(w, hopts))
	}
	return slog.New(slog.NewJSONHandler(w, hopts))
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetDefault configures the provided logger as the default slog logger.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
