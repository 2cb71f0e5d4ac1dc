package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 1, cfg.Scoring.ReadinessIntervalSecs)
	assert.Equal(t, 30, cfg.Scoring.ReadinessTimeoutSecs)
	assert.Equal(t, 2, cfg.Scoring.ReadinessStableChecks)
	assert.Equal(t, 3, cfg.Scoring.RetryMaxAttempts)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	fixture, err := yaml.Marshal(map[string]any{
		"store": map[string]any{
			"driver":       "sqlite",
			"database_url": "pipescore.db",
		},
		"log": map[string]any{
			"level":  "debug",
			"format": "console",
		},
		"server":  map[string]any{"port": 9090},
		"scoring": map[string]any{"readiness_timeout_secs": 120},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), fixture, 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "pipescore.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 120, cfg.Scoring.ReadinessTimeoutSecs)
	// Defaults still apply for unset values
	assert.Equal(t, 1, cfg.Scoring.ReadinessIntervalSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	fixture := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(fixture), 0644))

	t.Setenv("PIPESCORE_STORE_DRIVER", "postgres")
	t.Setenv("PIPESCORE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("PIPESCORE_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestScoringReadinessConversion(t *testing.T) {
	cfg := ScoringConfig{
		ReadinessIntervalSecs: 5,
		ReadinessTimeoutSecs:  60,
		ReadinessStableChecks: 3,
	}
	r := cfg.Readiness()
	assert.Equal(t, 5*time.Second, r.Interval)
	assert.Equal(t, 60*time.Second, r.Timeout)
	assert.Equal(t, 3, r.StableChecks)
}

func TestScoringReadinessZeroKeepsDefaults(t *testing.T) {
	r := ScoringConfig{}.Readiness()
	assert.Equal(t, time.Second, r.Interval)
	assert.Equal(t, 30*time.Second, r.Timeout)
	assert.Equal(t, 2, r.StableChecks)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
