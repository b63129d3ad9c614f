// Package observability configures slog for the smriti binaries.
//
// Every line logged while a memory is being saved carries the capture's
// trace ID, and known secrets are scrubbed before a record is written.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/HrishitaRaj/smriti-ai/common/redact"
	"github.com/HrishitaRaj/smriti-ai/common/trace"
)

// Setup installs the default slog logger writing to stdout. level is one of
// debug, info, warn or error; format is "json" or anything else for text.
// secrets are redacted from every record.
func Setup(level, format string, secrets ...string) *slog.Logger {
	logger := New(os.Stdout, level, format, secrets...)
	slog.SetDefault(logger)
	return logger
}

// New builds a logger without touching the default.
func New(w io.Writer, level, format string, secrets ...string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(redact.NewHandler(handler, secrets...))
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch level {
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

// WithTrace returns base (or the default logger) with the trace_id from ctx.
func WithTrace(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	traceID := trace.FromContext(ctx)
	if traceID == "" {
		return base
	}
	return base.With("trace_id", traceID)
}
