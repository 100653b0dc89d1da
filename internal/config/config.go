// Package config loads the service configuration.
//
// Sources are applied in order, later ones winning: built-in defaults, an
// optional YAML file, a .env file, and STRATA_* environment variables.
// Command line flags are applied on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable, e.g. STRATA_ADDR.
const EnvPrefix = "STRATA"

// Backends.
const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendBadger = "badger"
)

// RedisConfig addresses the redis server used for snapshots and locks.
type RedisConfig struct {
	Addr     string        `yaml:"addr" envconfig:"ADDR"`
	Password string        `yaml:"password" envconfig:"PASSWORD"`
	DB       int           `yaml:"db" envconfig:"DB"`
	Prefix   string        `yaml:"prefix" envconfig:"PREFIX"`
	TTL      time.Duration `yaml:"ttl" envconfig:"TTL"`
}

// Config is the full service configuration.
type Config struct {
	Addr    string `yaml:"addr" envconfig:"ADDR"`
	DataDir string `yaml:"data_dir" envconfig:"DATA_DIR"`

	// UploadsDir defaults to <DataDir>/uploads.
	UploadsDir string `yaml:"uploads_dir" envconfig:"UPLOADS_DIR"`

	ExecutorURL     string        `yaml:"executor_url" envconfig:"EXECUTOR_URL"`
	ExecutorTimeout time.Duration `yaml:"executor_timeout" envconfig:"EXECUTOR_TIMEOUT"`
	// LocalExecutor runs the built-in operations in-process; ExecutorURL is ignored.
	LocalExecutor bool `yaml:"local_executor" envconfig:"LOCAL_EXECUTOR"`
	// OperationsFile lists external commands added to the local executor.
	OperationsFile string `yaml:"operations_file" envconfig:"OPERATIONS_FILE"`

	// Backend stores snapshots: file, redis or memory.
	Backend string `yaml:"backend" envconfig:"BACKEND"`
	// VersionBackend stores version arrays: file, badger or memory.
	VersionBackend string `yaml:"version_backend" envconfig:"VERSION_BACKEND"`

	Redis RedisConfig `yaml:"redis" envconfig:"REDIS"`

	// DistributedLock serializes mutations across replicas through redis.
	DistributedLock bool          `yaml:"distributed_lock" envconfig:"DISTRIBUTED_LOCK"`
	LockTTL         time.Duration `yaml:"lock_ttl" envconfig:"LOCK_TTL"`

	CacheSize int  `yaml:"cache_size" envconfig:"CACHE_SIZE"`
	Metrics   bool `yaml:"metrics" envconfig:"METRICS"`

	LogLevel  string `yaml:"log_level" envconfig:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" envconfig:"LOG_FORMAT"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Addr:            ":8080",
		DataDir:         ".strata",
		ExecutorURL:     "http://localhost:8081",
		ExecutorTimeout: 60 * time.Second,
		Backend:         BackendFile,
		VersionBackend:  BackendFile,
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "strata:",
		},
		LockTTL:   30 * time.Second,
		CacheSize: 64,
		Metrics:   true,
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load builds a Config from the defaults, the YAML file at path (skipped when
// path is empty), the dotenv file at envFile (skipped when missing) and the
// environment.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if envFile != "" {
		// Variables already set in the environment take precedence.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendFile, BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("unknown backend %q (want file, redis or memory)", c.Backend)
	}
	switch c.VersionBackend {
	case BackendFile, BackendMemory, BackendBadger:
	default:
		return fmt.Errorf("unknown version backend %q (want file, badger or memory)", c.VersionBackend)
	}
	if c.DistributedLock && c.Redis.Addr == "" {
		return errors.New("distributed lock requires a redis address")
	}
	if c.ExecutorTimeout <= 0 {
		return errors.New("executor timeout must be positive")
	}
	if c.CacheSize < 0 {
		return errors.New("cache size must not be negative")
	}
	if c.OperationsFile != "" && !c.LocalExecutor {
		return errors.New("an operations file requires the local executor")
	}
	return nil
}

// SessionsDir is where file-backed sessions live.
func (c *Config) SessionsDir() string {
	return filepath.Join(c.DataDir, "sessions")
}

// UploadsPath is where the upload service leaves arrays.
func (c *Config) UploadsPath() string {
	if c.UploadsDir != "" {
		return c.UploadsDir
	}
	return filepath.Join(c.DataDir, "uploads")
}

// BadgerDir is where the badger version store lives.
func (c *Config) BadgerDir() string {
	return filepath.Join(c.DataDir, "versions.badger")
}
