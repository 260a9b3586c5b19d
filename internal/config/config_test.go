package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  console: true\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Log.Console)
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel())
	assert.Equal(t, "data/evbus_journal.db", cfg.Journal.Path)
	assert.Equal(t, filepath.Join("data", "backups"), cfg.Journal.BackupPath)
	assert.Equal(t, "evbus", cfg.Redis.Channel)
	assert.Equal(t, 100.0, cfg.Redis.Rate)
	assert.Equal(t, 200, cfg.Redis.Burst)
	assert.Equal(t, 8090, cfg.Monitoring.HealthCheckPort)
	assert.Equal(t, 9090, cfg.Monitoring.PrometheusPort)
	assert.False(t, cfg.RelayEnabled())
	assert.Zero(t, cfg.JournalRetention())
}

func TestParse_EnvExpansion(t *testing.T) {
	t.Setenv("EVBUS_TEST_REDIS", "127.0.0.1:6379")
	t.Setenv("EVBUS_TEST_LEVEL", "debug")

	cfg, err := Parse([]byte(`
log:
  level: ${EVBUS_TEST_LEVEL}
redis:
  address: ${EVBUS_TEST_REDIS}
  channel: game
journal:
  enabled: true
  path: /tmp/j.db
  retention_days: 7
`))
	require.NoError(t, err)

	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel())
	assert.Equal(t, "127.0.0.1:6379", cfg.Redis.Address)
	assert.Equal(t, "game", cfg.Redis.Channel)
	assert.True(t, cfg.RelayEnabled())
	assert.True(t, cfg.Journal.Enabled)
	assert.Equal(t, "/tmp/backups", cfg.Journal.BackupPath)
	assert.Equal(t, 7*24*time.Hour, cfg.JournalRetention())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"BadLevel", "log:\n  level: loud\n"},
		{"NegativeRetention", "journal:\n  retention_days: -1\n"},
		{"NegativePort", "monitoring:\n  prometheus_port: -5\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	_, err := Parse([]byte("log: [unterminated"))
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("EVBUS_TEST_FROM_DOTENV=yes\n"), 0o600))
	t.Setenv("EVBUS_TEST_FROM_DOTENV", "")
	os.Unsetenv("EVBUS_TEST_FROM_DOTENV")

	require.NoError(t, LoadEnv(envFile, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "yes", os.Getenv("EVBUS_TEST_FROM_DOTENV"))
}
