package logger_test

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insilica/dockgate/internal/config"
	"github.com/insilica/dockgate/internal/platform/logger"
)

func TestSetupReturnsLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		cfg := config.ServerConfig{Port: 8080, LogLevel: level}
		log, err := logger.Setup(cfg)
		require.NoError(t, err)
		assert.NotNil(t, log)
	}
}

func TestSetupInvalidLevelFallsBack(t *testing.T) {
	cfg := config.ServerConfig{Port: 8080, LogLevel: "chatty"}
	log, err := logger.Setup(cfg)
	require.NoError(t, err)
	require.NotNil(t, log)

	// Falls back to info: debug is suppressed, info is not.
	assert.False(t, log.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, log.Enabled(context.Background(), slog.LevelInfo))
}

func TestFromContext(t *testing.T) {
	base := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("component", "test")
	ctx := logger.WithLogger(context.Background(), base)

	assert.Same(t, base, logger.FromContext(ctx))
	assert.Same(t, slog.Default(), logger.FromContext(context.Background()))
}

func TestFromContextOrDefault(t *testing.T) {
	def := slog.New(slog.NewTextHandler(os.Stderr, nil))

	assert.Same(t, def, logger.FromContextOrDefault(context.Background(), def))

	base := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := logger.WithLogger(context.Background(), base)
	assert.Same(t, base, logger.FromContextOrDefault(ctx, def))

	assert.Same(t, slog.Default(), logger.FromContextOrDefault(context.Background(), nil))
}
