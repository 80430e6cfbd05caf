package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NotNil(t, cfg)

	assert.Equal(t, "8090", cfg.Server.Port)
	assert.Equal(t, int64(5000), cfg.Sandbox.DeadlineMs)
	assert.Equal(t, int64(250), cfg.Sandbox.OuterBufferMs)
	assert.True(t, cfg.Sandbox.EnableConsole)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("SANDBOX_DEADLINE_MS", "1234")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, int64(1234), cfg.Sandbox.DeadlineMs)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadOrDefaultFallsBack(t *testing.T) {
	t.Setenv("SANDBOX_DEADLINE_MS", "not-a-number")

	cfg := LoadOrDefault()
	require.NotNil(t, cfg)
	assert.Equal(t, int64(5000), cfg.Sandbox.DeadlineMs)
}
