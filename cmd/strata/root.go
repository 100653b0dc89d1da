package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/strata/internal/config"
	"github.com/aretw0/strata/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var rootCmd = &cobra.Command{
	Use:           "strata",
	Short:         "Strata keeps the undo/redo history of image editing sessions",
	Long:          `Strata stores every version of an image session, delegates transforms to an operation executor, and serves the result over HTTP or MCP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "YAML configuration file")
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file loaded before the environment")
	rootCmd.PersistentFlags().String("data", "", "Data directory (default .strata)")
	rootCmd.PersistentFlags().String("backend", "", "Snapshot backend: file, redis or memory")
	rootCmd.PersistentFlags().String("version-backend", "", "Version backend: file, badger or memory")
	rootCmd.PersistentFlags().String("redis-addr", "", "Redis address")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text or json")
}

// loadConfig resolves the configuration of cmd: file, .env and environment,
// then any flag set explicitly on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")

	cfg, err := config.Load(path, envFile)
	if err != nil {
		return nil, err
	}
	if err := applyFlags(cmd.Flags(), cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags copies explicitly set flags into cfg.
func applyFlags(flags *pflag.FlagSet, cfg *config.Config) error {
	var err error
	flags.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "data":
			cfg.DataDir = f.Value.String()
		case "uploads":
			cfg.UploadsDir = f.Value.String()
		case "addr":
			cfg.Addr = f.Value.String()
		case "executor-url":
			cfg.ExecutorURL = f.Value.String()
		case "local-executor":
			cfg.LocalExecutor, err = flags.GetBool(f.Name)
		case "operations":
			cfg.OperationsFile = f.Value.String()
		case "executor-timeout":
			cfg.ExecutorTimeout, err = flags.GetDuration(f.Name)
		case "backend":
			cfg.Backend = f.Value.String()
		case "version-backend":
			cfg.VersionBackend = f.Value.String()
		case "redis-addr":
			cfg.Redis.Addr = f.Value.String()
		case "distributed-lock":
			cfg.DistributedLock, err = flags.GetBool(f.Name)
		case "cache-size":
			cfg.CacheSize, err = flags.GetInt(f.Name)
		case "metrics":
			cfg.Metrics, err = flags.GetBool(f.Name)
		case "log-level":
			cfg.LogLevel = f.Value.String()
		case "log-format":
			cfg.LogFormat = f.Value.String()
		}
	})
	return err
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return logging.NewWithFormat(level, cfg.LogFormat)
}
