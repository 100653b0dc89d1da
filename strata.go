package strata

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/aretw0/strata/internal/logging"
	"github.com/aretw0/strata/pkg/adapters/executor"
	"github.com/aretw0/strata/pkg/adapters/file"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/aretw0/strata/pkg/registry"
	"github.com/aretw0/strata/pkg/render"
	"github.com/aretw0/strata/pkg/session"
	"github.com/aretw0/strata/pkg/stack"
	"github.com/aretw0/strata/pkg/transform"
)

// Version is the release of this build.
//
//go:embed VERSION
var Version string

// Engine is the high-level entry point for the Strata library.
// It ties the session registry, the render cache and the transform
// orchestrator together over one set of stores.
type Engine struct {
	sessions     *session.Manager
	orchestrator *transform.Orchestrator
	cache        *render.Cache
	uploads      ports.VersionStore

	snapshots   ports.SnapshotStore
	versions    ports.VersionStoreFactory
	executor    ports.Executor
	executorURL string
	local       *registry.Registry
	locker      ports.DistributedLocker
	lockTTL     time.Duration
	timeout     time.Duration
	cacheOpts   []render.Option
	transOpts   []transform.Option
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLifecycleHooks registers observability hooks on every session stack.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = domain.CombineHooks(e.hooks, hooks)
	}
}

// WithSnapshotStore replaces the file snapshot store.
func WithSnapshotStore(s ports.SnapshotStore) Option {
	return func(e *Engine) {
		e.snapshots = s
	}
}

// WithVersionStores replaces the file version storage.
func WithVersionStores(f ports.VersionStoreFactory) Option {
	return func(e *Engine) {
		e.versions = f
	}
}

// WithUploads sets where uploaded arrays are read from.
func WithUploads(s ports.VersionStore) Option {
	return func(e *Engine) {
		e.uploads = s
	}
}

// WithExecutor injects the operation executor.
func WithExecutor(x ports.Executor) Option {
	return func(e *Engine) {
		e.executor = x
	}
}

// WithExecutorURL uses the HTTP executor listening at url.
func WithExecutorURL(url string) Option {
	return func(e *Engine) {
		e.executorURL = url
	}
}

// WithLocalExecutor runs the operations of reg in-process against the session
// version stores instead of calling a remote executor. A nil reg selects
// registry.Builtin.
func WithLocalExecutor(reg *registry.Registry) Option {
	return func(e *Engine) {
		if reg == nil {
			reg = registry.Builtin()
		}
		e.local = reg
	}
}

// WithLocker serializes mutations across processes sharing the stores.
func WithLocker(l ports.DistributedLocker, ttl time.Duration) Option {
	return func(e *Engine) {
		e.locker = l
		e.lockTTL = ttl
	}
}

// WithTimeout bounds every executor call.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithCacheOptions configures the render cache.
func WithCacheOptions(opts ...render.Option) Option {
	return func(e *Engine) {
		e.cacheOpts = append(e.cacheOpts, opts...)
	}
}

// WithTransformOptions configures the orchestrator.
func WithTransformOptions(opts ...transform.Option) Option {
	return func(e *Engine) {
		e.transOpts = append(e.transOpts, opts...)
	}
}

// WithLogger configures a logger for the Engine and everything it builds.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New initializes an Engine.
// By default sessions live under <dataDir>/sessions and uploads under
// <dataDir>/uploads. dataDir may be empty when every store is injected.
func New(dataDir string, opts ...Option) (*Engine, error) {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = logging.NewNop()
	}

	needsDir := e.snapshots == nil || e.versions == nil || e.uploads == nil
	if needsDir && dataDir == "" {
		return nil, fmt.Errorf("dataDir is required when stores are not injected")
	}
	sessionsPath := filepath.Join(dataDir, "sessions")
	if e.snapshots == nil {
		e.snapshots = file.NewSnapshotStore(sessionsPath)
	}
	if e.versions == nil {
		e.versions = file.NewVersionStoreFactory(sessionsPath)
	}
	if e.uploads == nil {
		e.uploads = file.NewVersionStore(filepath.Join(dataDir, "uploads"))
	}

	if e.executor == nil && e.local != nil {
		e.executor = registry.NewExecutor(e.local, e.versions, registry.WithLogger(e.logger))
	}
	if e.executor == nil {
		if e.executorURL == "" {
			return nil, fmt.Errorf("an executor or executor URL is required")
		}
		e.executor = executor.NewClient(e.executorURL, executor.WithLogger(e.logger))
	}

	e.cache = render.NewCache(e.cacheOpts...)

	stackOpts := []stack.Option{
		stack.WithLogger(e.logger),
		stack.WithHooks(e.hooks),
		stack.WithEvictionHook(e.cache.EvictionHook()),
	}
	if e.locker != nil {
		stackOpts = append(stackOpts, stack.WithLocker(e.locker, e.lockTTL))
	}
	e.sessions = session.NewManager(e.snapshots, e.versions,
		session.WithLogger(e.logger),
		session.WithStackOptions(stackOpts...),
	)

	transOpts := []transform.Option{transform.WithLogger(e.logger)}
	if e.timeout > 0 {
		transOpts = append(transOpts, transform.WithTimeout(e.timeout))
	}
	e.orchestrator = transform.New(e.executor, append(transOpts, e.transOpts...)...)

	return e, nil
}

// Sessions returns the session registry.
func (e *Engine) Sessions() *session.Manager { return e.sessions }

// Transform returns the transform orchestrator.
func (e *Engine) Transform() *transform.Orchestrator { return e.orchestrator }

// Cache returns the render cache.
func (e *Engine) Cache() *render.Cache { return e.cache }

// Uploads returns the store uploaded arrays are read from.
func (e *Engine) Uploads() ports.VersionStore { return e.uploads }

// Stack returns the stack of sessionID, loading it on first use.
func (e *Engine) Stack(ctx context.Context, sessionID string) (*stack.Stack, error) {
	return e.sessions.Stack(ctx, sessionID)
}

// Open copies the upload named upload into sessionID and makes it the base image.
// It returns the new version id.
func (e *Engine) Open(ctx context.Context, sessionID string, upload domain.VersionID) (domain.VersionID, error) {
	st, err := e.sessions.Stack(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return st.Ingest(ctx, e.uploads, upload)
}

// Apply runs the named operation on the active version of sessionID.
func (e *Engine) Apply(ctx context.Context, sessionID, op string, params map[string]any) (transform.Result, error) {
	st, err := e.sessions.Stack(ctx, sessionID)
	if err != nil {
		return transform.Result{}, err
	}
	return e.orchestrator.Apply(ctx, st, op, params)
}

// Render returns the active version of sessionID as PNG.
// ok is false when the session has no image.
func (e *Engine) Render(ctx context.Context, sessionID string) (data []byte, ok bool, err error) {
	st, err := e.sessions.Stack(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	id, ok := st.Current()
	if !ok {
		return nil, false, nil
	}
	data, err = e.cache.GetOrRender(ctx, id, st.Versions().Load)
	return data, true, err
}
