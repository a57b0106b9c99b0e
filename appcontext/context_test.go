package appcontext_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmbridge/migrator/appcontext"
)

func TestLoggerFromContext_Default(t *testing.T) {
	assert.Equal(t, slog.Default(), appcontext.LoggerFromContext(context.Background()))
}

func TestLoggerFromContext_RoundTrip(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := appcontext.WithLogger(context.Background(), logger)
	assert.Same(t, logger, appcontext.LoggerFromContext(ctx))
}

func TestWithRunID(t *testing.T) {
	assert.Empty(t, appcontext.RunIDFromContext(context.Background()))

	ctx, runID := appcontext.WithRunID(context.Background())
	_, err := uuid.Parse(runID)
	require.NoError(t, err)
	assert.Equal(t, runID, appcontext.RunIDFromContext(ctx))

	_, other := appcontext.WithRunID(context.Background())
	assert.NotEqual(t, runID, other)
}

func TestNewLogger_Levels(t *testing.T) {
	ctx := context.Background()
	assert.True(t, appcontext.NewLogger("debug", "text").Enabled(ctx, slog.LevelDebug))
	assert.False(t, appcontext.NewLogger("warn", "json").Enabled(ctx, slog.LevelInfo))
	assert.True(t, appcontext.NewLogger("bogus", "text").Enabled(ctx, slog.LevelInfo))
	assert.False(t, appcontext.NewLogger("", "").Enabled(ctx, slog.LevelDebug))
}
