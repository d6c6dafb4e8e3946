package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Executor.Deadline)
	assert.Positive(t, cfg.Executor.Workers)
	assert.Equal(t, "json", cfg.Pipeline.Defaults["outputFormat"])
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	yml := `
server:
  port: 9100
executor:
  workers: 3
  deadline: 2s
pipeline:
  defaults:
    annotators: tokenize,ssplit
    outputFormat: text
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	t.Setenv("CORENLP_EXECUTOR_WORKERS", "7")
	t.Setenv("CORENLP_REDIS_ADDR", "redis:6379")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 7, cfg.Executor.Workers)
	assert.Equal(t, 2*time.Second, cfg.Executor.Deadline)
	assert.Equal(t, "tokenize,ssplit", cfg.Pipeline.Defaults["annotators"])
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("executor:\n  deadline: 0s\n"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRateLimitSettings(t *testing.T) {
	t.Setenv("CORENLP_RATE_LIMIT", "30")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Server.RateLimit.Enabled)
	assert.Equal(t, 30, cfg.Server.RateLimit.Requests)
	assert.Equal(t, time.Minute, cfg.Server.RateLimit.Window)

	path := filepath.Join(t.TempDir(), "limit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  rateLimit:\n    enabled: true\n    window: 0s\n"), 0o600))
	t.Setenv("CORENLP_RATE_LIMIT", "")
	_, err = Load(path)
	assert.Error(t, err)
}
