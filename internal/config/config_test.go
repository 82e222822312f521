package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsAndEnv(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("WORKER_CONCURRENCY", "2")
	t.Setenv("TRACKS_GRACE_PERIOD", "90s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.Security.JWTSecret)
	assert.Equal(t, 2, cfg.Worker.Concurrency)
	assert.Equal(t, 256, cfg.Worker.QueueSize)
	assert.Equal(t, 90*time.Second, cfg.Tracks.GracePeriod)
	assert.Equal(t, 7*24*time.Hour, cfg.Buffer.TTL)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: ":9090"
buffer:
  in_memory: true
security:
  auth_disabled: true
logging:
  level: debug
`), 0o600))
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Port)
	assert.True(t, cfg.Buffer.InMemory)
	assert.True(t, cfg.Security.AuthDisabled)
	assert.Equal(t, "warn", cfg.Logging.Level, "env overrides file")
}

func TestValidate(t *testing.T) {
	cfg := defaultConfig()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")

	cfg.Security.AuthDisabled = true
	assert.NoError(t, cfg.Validate())

	cfg.Worker.Concurrency = 0
	cfg.Worker.QueueSize = -1
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker.concurrency")
	assert.Contains(t, err.Error(), "worker.queue_size")
}
