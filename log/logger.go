package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// New constructs a text slog.Logger on stderr preconfigured at info level
func New(service string) *slog.Logger {
	return NewWithLevel(service, slog.LevelInfo)
}

// NewWithLevel constructs a text slog.Logger on stderr at the provided level
func NewWithLevel(service string, lvl slog.Level) *slog.Logger {
	return NewWithWriter(os.Stderr, service, lvl)
}

// NewWithWriter constructs a text slog.Logger writing to w
func NewWithWriter(w io.Writer, service string, lvl slog.Level) *slog.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: lvl,
	})

	return slog.New(handler).With(slog.String("service", service))
}

// Discard returns a logger that drops every record
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelError + 1,
	}))
}

// ParseLevel maps debug, info, warn/warning and error to slog levels
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
