// Package logging builds the process logger from configuration. Every
// handler it returns passes through security.RedactingHandler.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/flemzord/toolgate/internal/config"
	"github.com/flemzord/toolgate/internal/security"
)

// New creates a configured *slog.Logger. The returned closer releases the
// log file, if any, and should be deferred.
func New(cfg config.LoggingConfig, redactor *security.Redactor) (*slog.Logger, func() error, error) {
	w, closer, err := openOutput(cfg.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("open log output: %w", err)
	}
	return slog.New(NewHandler(w, cfg, redactor)), closer, nil
}

// NewHandler returns the redacting handler writing to w.
func NewHandler(w io.Writer, cfg config.LoggingConfig, redactor *security.Redactor) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var inner slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		inner = slog.NewJSONHandler(w, opts)
	default:
		inner = slog.NewTextHandler(w, opts)
	}
	if redactor == nil {
		redactor = security.NewRedactor()
	}
	return security.NewRedactingHandler(inner, redactor)
}

// ParseLevel converts a level name to slog.Level. Unknown names mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

func openOutput(output string) (io.Writer, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(output) {
	case "stdout":
		return os.Stdout, noop, nil
	case "stderr", "":
		return os.Stderr, noop, nil
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, err
		}
		return f, f.Close, nil
	}
}
