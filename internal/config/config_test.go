package config

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "testbox:jobs", cfg.Redis.Stream)
	assert.Equal(t, 3, cfg.Redis.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Sandbox.TestTimeout)
	assert.Equal(t, "/dist/", cfg.Sandbox.AssetPath)
	assert.Equal(t, "starlark", cfg.Python.Backend)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Equal(t, 5, cfg.RateLimit.Burst)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("TESTBOX_SANDBOX_TEST_TIMEOUT", "250ms")
	t.Setenv("TESTBOX_PYTHON_BACKEND", "docker")
	t.Setenv("TESTBOX_WORKER_CONCURRENCY", "8")
	t.Setenv("TESTBOX_REDIS_ADDR", "redis:6379")
	t.Setenv("TESTBOX_RATE_LIMIT_PER_SECOND", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.Sandbox.TestTimeout)
	assert.Equal(t, "docker", cfg.Python.Backend)
	assert.Equal(t, 8, cfg.Worker.Concurrency)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 2.0, cfg.RateLimit.PerSecond)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"TESTBOX_PYTHON_BACKEND":     "pyodide",
		"TESTBOX_WORKER_CONCURRENCY": "0",
		"TESTBOX_SANDBOX_TEST_TIMEOUT":       "soon",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoggerLevel(t *testing.T) {
	logger := LogConfig{Level: "debug", Format: "json"}.Logger()
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))

	logger = LogConfig{Level: "nonsense"}.Logger()
	assert.False(t, logger.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelInfo))
}
