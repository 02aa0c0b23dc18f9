package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetenv clears a variable for the test while keeping the restore that
// t.Setenv registers.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestLoadDefaults(t *testing.T) {
	// Pin the variables the defaults depend on so a polluted environment
	// cannot flip them.
	t.Setenv("ENV", "production")
	unsetenv(t, "HTTP_PORT")
	unsetenv(t, "LOG_LEVEL")
	unsetenv(t, "TUNE_MAX_TRIALS")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "stderr", cfg.Logging.Output)
	assert.Equal(t, 50, cfg.Engine.MaxTrials)
	assert.Equal(t, 10, cfg.Engine.NumInitialPoints)
	assert.Equal(t, 3, cfg.Engine.MaxParallelTrials)
	assert.Equal(t, 1000, cfg.Engine.PoolSize)
	assert.Equal(t, "ei", cfg.Engine.Acquisition)
	assert.InDelta(t, 0.1, cfg.Engine.ExplorationFactor, 1e-12)
	assert.Equal(t, time.Duration(0), cfg.Engine.EvalTimeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("TUNE_MAX_TRIALS", "25")
	t.Setenv("TUNE_ACQUISITION", "ucb")
	t.Setenv("TUNE_EVAL_TIMEOUT", "5s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 25, cfg.Engine.MaxTrials)
	assert.Equal(t, "ucb", cfg.Engine.Acquisition)
	assert.Equal(t, 5*time.Second, cfg.Engine.EvalTimeout)
}

func TestLoadDevelopmentLogLevel(t *testing.T) {
	t.Setenv("ENV", "development")
	unsetenv(t, "LOG_LEVEL")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
}
