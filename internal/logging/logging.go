// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Options selects the handler and level.
type Options struct {
	Level string
	// JSON forces the JSON handler even on a terminal.
	JSON    bool
	Service string
	Version string
}

// Init builds the logger, installs it as the slog default and returns it.
// Records go to stderr so the exit summary on stdout stays clean.
func Init(opts Options) *slog.Logger {
	json := opts.JSON || !isatty.IsTerminal(os.Stderr.Fd())
	logger := New(os.Stderr, opts.Level, json)
	if opts.Service != "" {
		logger = logger.With("service", opts.Service)
	}
	if opts.Version != "" {
		logger = logger.With("version", opts.Version)
	}
	slog.SetDefault(logger)
	logger.Debug("logging initialized", "json", json, "level", ParseLevel(opts.Level).String())
	return logger
}

// New builds a logger writing to w without touching the default.
func New(w io.Writer, level string, json bool) *slog.Logger {
	lvl := ParseLevel(level)
	handlerOpts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	return slog.New(handler)
}

// ParseLevel maps a level name to a slog level. Unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// Discard returns a logger that drops every record. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 4}))
}
