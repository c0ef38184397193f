package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New constructs a text logger for one component at the requested level.
// An empty level is resolved from the environment.
func New(component, level string) *slog.Logger {
	return NewWithWriter(os.Stderr, component, level)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, component, level string) *slog.Logger {
	if level == "" {
		level = ResolveLevel("")
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return slog.New(h).With("component", component)
}

// ResolveLevel returns the effective level name. DEBUG=true wins, then
// LOG_LEVEL, then the configured level.
func ResolveLevel(configured string) string {
	if os.Getenv("DEBUG") == "true" {
		return "debug"
	}
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		return env
	}
	return configured
}

// Discard returns a logger that drops everything; handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDefault returns l, or slog.Default() when l is nil.
func OrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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
