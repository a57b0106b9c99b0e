// Package appcontext carries the run-scoped logger and run id through a sync or transfer run.
package appcontext

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

type loggerKey struct{}

type runIDKey struct{}

// WithLogger creates a new context with the provided logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFromContext retrieves the logger from the context.
// It returns a default logger if no logger is found.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}

	return slog.Default()
}

// WithRunID tags the context with a fresh run id and scopes the logger to it.
func WithRunID(ctx context.Context) (context.Context, string) {
	runID := uuid.NewString()
	ctx = context.WithValue(ctx, runIDKey{}, runID)
	return WithLogger(ctx, LoggerFromContext(ctx).With("run_id", runID)), runID
}

// RunIDFromContext returns the run id, or an empty string outside a run.
func RunIDFromContext(ctx context.Context) string {
	if runID, ok := ctx.Value(runIDKey{}).(string); ok {
		return runID
	}

	return ""
}

// NewLogger builds the process logger. Level is one of debug, info, warn, error;
// format is text or json.
func NewLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
