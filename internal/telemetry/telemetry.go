// Package telemetry wraps log/slog for the ambient logging every package in
// this module uses: query planning, connection pool lifecycle, migration
// progress, and cache hit/miss tracing. Grounded on the pack's slog-based
// logger (internal/log in the cloud-genai-toolbox example), adapted from a
// format/level CLI flag pair to a single package-level logger a DataMapper
// can be constructed with.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the contextual logging surface components in this module take,
// so call sites can pass a request-scoped context through without caring
// whether the backing handler is text or JSON.
type Logger interface {
	DebugContext(ctx context.Context, msg string, keysAndValues ...any)
	InfoContext(ctx context.Context, msg string, keysAndValues ...any)
	WarnContext(ctx context.Context, msg string, keysAndValues ...any)
	ErrorContext(ctx context.Context, msg string, keysAndValues ...any)
}

type slogLogger struct {
	l *slog.Logger
}

// New builds a Logger writing to out in the given format ("json" or
// "text") at the given level ("debug", "info", "warn", "error").
func New(format, level string, out io.Writer) (Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	case "text", "":
		handler = slog.NewTextHandler(out, opts)
	default:
		return nil, fmt.Errorf("telemetry: unknown format %q", format)
	}

	return &slogLogger{l: slog.New(handler)}, nil
}

// Discard is a Logger that drops every record, used as the zero-value
// default for components constructed without an explicit Logger.
func Discard() Logger {
	return &slogLogger{l: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// Default builds a text Logger on os.Stderr at info level.
func Default() Logger {
	l, _ := New("text", "info", os.Stderr)
	return l
}

func (s *slogLogger) DebugContext(ctx context.Context, msg string, kv ...any) {
	s.l.DebugContext(ctx, msg, kv...)
}

func (s *slogLogger) InfoContext(ctx context.Context, msg string, kv ...any) {
	s.l.InfoContext(ctx, msg, kv...)
}

func (s *slogLogger) WarnContext(ctx context.Context, msg string, kv ...any) {
	s.l.WarnContext(ctx, msg, kv...)
}

func (s *slogLogger) ErrorContext(ctx context.Context, msg string, kv ...any) {
	s.l.ErrorContext(ctx, msg, kv...)
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("telemetry: unknown level %q", level)
	}
}
