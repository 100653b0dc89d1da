package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, filepath.Join(".strata", "uploads"), cfg.UploadsPath())
	assert.Equal(t, filepath.Join(".strata", "sessions"), cfg.SessionsDir())
}

func TestLoad_Layers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strata.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":9000"
data_dir: /srv/strata
executor_timeout: 5s
backend: redis
redis:
  addr: redis:6379
  ttl: 24h
cache_size: 8
`), 0644))

	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("STRATA_CACHE_SIZE=16\nSTRATA_LOG_LEVEL=debug\n"), 0644))

	t.Cleanup(func() { os.Unsetenv("STRATA_CACHE_SIZE") })
	t.Setenv("STRATA_ADDR", ":7000")
	t.Setenv("STRATA_LOG_LEVEL", "warn")

	cfg, err := Load(path, envFile)
	require.NoError(t, err)

	// Environment over YAML, YAML over defaults.
	assert.Equal(t, ":7000", cfg.Addr)
	assert.Equal(t, "/srv/strata", cfg.DataDir)
	assert.Equal(t, 5*time.Second, cfg.ExecutorTimeout)
	assert.Equal(t, BackendRedis, cfg.Backend)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "strata:", cfg.Redis.Prefix)
	assert.Equal(t, 24*time.Hour, cfg.Redis.TTL)

	// .env over YAML, but never over the real environment.
	assert.Equal(t, 16, cfg.CacheSize)
	assert.Equal(t, "warn", cfg.LogLevel)

	assert.Equal(t, "/srv/strata/uploads", cfg.UploadsPath())
}

func TestLoad_NestedEnv(t *testing.T) {
	t.Setenv("STRATA_REDIS_ADDR", "cache:6380")
	t.Setenv("STRATA_DISTRIBUTED_LOCK", "true")

	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", cfg.Redis.Addr)
	assert.True(t, cfg.DistributedLock)
}

func TestLoad_MissingDotenvIsFine(t *testing.T) {
	_, err := Load("", filepath.Join(t.TempDir(), ".env"))
	assert.NoError(t, err)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "")
	assert.Error(t, err)
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("STRATA_CACHE_SIZE", "many")
	_, err := Load("", "")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"backend":         func(c *Config) { c.Backend = "s3" },
		"version backend": func(c *Config) { c.VersionBackend = "redis" },
		"lock":            func(c *Config) { c.DistributedLock = true; c.Redis.Addr = "" },
		"timeout":         func(c *Config) { c.ExecutorTimeout = 0 },
		"cache":           func(c *Config) { c.CacheSize = -1 },
		"operations":      func(c *Config) { c.OperationsFile = "ops.yaml" },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		assert.Error(t, cfg.Validate(), name)
	}
	assert.NoError(t, Default().Validate())

	local := Default()
	local.LocalExecutor = true
	local.OperationsFile = "ops.yaml"
	assert.NoError(t, local.Validate())
}
