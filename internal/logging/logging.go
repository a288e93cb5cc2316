// Package logging provides structured logging for the service. Loggers travel
// on the context together with the request and attempt identifiers.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	attemptIDKey contextKey = "attempt_id"
	journeyKey   contextKey = "journey"
	loggerKey    contextKey = "logger"
)

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// New creates a structured logger writing to stdout.
func New(level string, format string) *slog.Logger {
	return NewWithWriter(os.Stdout, level, format)
}

// NewWithWriter creates a structured logger writing to w. Unknown levels
// fall back to info; any format other than "json" produces text output.
func NewWithWriter(w io.Writer, level string, format string) *slog.Logger {
	lvl, ok := levels[level]
	if !ok {
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID extracts the request ID from context
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithAttempt tags the context with the journey and attempt being processed.
func WithAttempt(ctx context.Context, journey, attemptID string) context.Context {
	ctx = context.WithValue(ctx, journeyKey, journey)
	return context.WithValue(ctx, attemptIDKey, attemptID)
}

// AttemptID extracts the attempt ID from context
func AttemptID(ctx context.Context) string {
	id, _ := ctx.Value(attemptIDKey).(string)
	return id
}

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext extracts the logger from context, or returns the default
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// L returns the context logger decorated with whatever request, journey and
// attempt identifiers the context carries.
func L(ctx context.Context) *slog.Logger {
	logger := FromContext(ctx)
	if reqID := RequestID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	if journey, _ := ctx.Value(journeyKey).(string); journey != "" {
		logger = logger.With("journey", journey)
	}
	if attemptID := AttemptID(ctx); attemptID != "" {
		logger = logger.With("attempt_id", attemptID)
	}
	return logger
}
