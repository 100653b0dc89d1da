package main

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/aretw0/strata"
	httpAdapter "github.com/aretw0/strata/internal/adapters/http"
	"github.com/aretw0/strata/internal/config"
	"github.com/aretw0/strata/pkg/adapters/badger"
	"github.com/aretw0/strata/pkg/adapters/file"
	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/adapters/process"
	"github.com/aretw0/strata/pkg/adapters/redis"
	"github.com/aretw0/strata/pkg/observability"
	"github.com/aretw0/strata/pkg/persistence/middleware"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/aretw0/strata/pkg/registry"
	"github.com/aretw0/strata/pkg/render"
	"github.com/aretw0/strata/pkg/transform"
	goredis "github.com/redis/go-redis/v9"
)

// app is everything a command needs, built from one Config.
type app struct {
	engine  *strata.Engine
	streams *httpAdapter.StreamManager
	metrics *observability.Metrics
	logger  *slog.Logger
	redis   *goredis.Client
	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// redisClient dials Redis on first use. The snapshot store and the locker
// share the connection.
func (a *app) redisClient(cfg *config.Config) *goredis.Client {
	if a.redis == nil {
		a.redis = redis.Dial(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		a.closers = append(a.closers, a.redis.Close)
	}
	return a.redis
}

func (a *app) snapshotStore(cfg *config.Config) ports.SnapshotStore {
	switch cfg.Backend {
	case config.BackendRedis:
		return redis.NewSnapshotStore(a.redisClient(cfg),
			redis.WithPrefix(cfg.Redis.Prefix),
			redis.WithTTL(cfg.Redis.TTL))
	case config.BackendMemory:
		return memory.NewStore()
	default:
		return file.NewSnapshotStore(cfg.SessionsDir())
	}
}

func buildApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{logger: logger, streams: httpAdapter.NewStreamManager().WithLogger(logger)}

	if cfg.Metrics {
		a.metrics = observability.NewMetrics()
	}

	snapshots := a.snapshotStore(cfg)
	mws := []middleware.Middleware{middleware.NewLoggingMiddleware(logger)}
	if a.metrics != nil {
		mws = append(mws, middleware.NewMetricsMiddleware(a.metrics))
	}
	snapshots = middleware.Chain(snapshots, mws...)

	var versions ports.VersionStoreFactory
	switch cfg.VersionBackend {
	case config.BackendBadger:
		bcfg := badger.DefaultConfig(cfg.BadgerDir())
		bcfg.Logger = logger
		db, err := badger.Open(bcfg)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open version store: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		versions = badger.NewVersionStoreFactory(db)
	case config.BackendMemory:
		versions = memory.NewVersionStoreFactory()
	default:
		versions = file.NewVersionStoreFactory(cfg.SessionsDir())
	}

	opts := []strata.Option{
		strata.WithLogger(logger),
		strata.WithSnapshotStore(snapshots),
		strata.WithVersionStores(versions),
		strata.WithUploads(file.NewVersionStore(cfg.UploadsPath())),
		strata.WithExecutorURL(cfg.ExecutorURL),
		strata.WithTimeout(cfg.ExecutorTimeout),
		strata.WithLifecycleHooks(a.streams.Hooks()),
	}

	cacheOpts := []render.Option{}
	if cfg.CacheSize > 0 {
		cacheOpts = append(cacheOpts, render.WithMaxEntries(cfg.CacheSize))
	}
	if cfg.LocalExecutor {
		reg := registry.Builtin()
		if cfg.OperationsFile != "" {
			ops, err := process.LoadOperations(cfg.OperationsFile)
			if err != nil {
				a.Close()
				return nil, err
			}
			process.Register(reg, ops, process.WithBaseDir(filepath.Dir(cfg.OperationsFile)))
			logger.Info("registered external operations", "count", len(ops), "file", cfg.OperationsFile)
		}
		opts = append(opts, strata.WithLocalExecutor(reg))
	}
	if a.metrics != nil {
		cacheOpts = append(cacheOpts, render.WithMetrics(a.metrics))
		opts = append(opts,
			strata.WithLifecycleHooks(a.metrics.Hooks()),
			strata.WithTransformOptions(transform.WithMetrics(a.metrics)))
	}
	opts = append(opts, strata.WithCacheOptions(cacheOpts...))

	if cfg.DistributedLock {
		opts = append(opts, strata.WithLocker(redis.NewLocker(a.redisClient(cfg), cfg.Redis.Prefix), cfg.LockTTL))
	}

	eng, err := strata.New(cfg.DataDir, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.engine = eng
	return a, nil
}

func (a *app) httpServer() *httpAdapter.Server {
	return &httpAdapter.Server{
		Sessions:  a.engine.Sessions(),
		Transform: a.engine.Transform(),
		Cache:     a.engine.Cache(),
		Uploads:   a.engine.Uploads(),
		Streams:   a.streams,
		Metrics:   a.metrics,
		Logger:    a.logger,
	}
}
