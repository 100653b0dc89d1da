// Package registry holds in-process transform implementations and exposes
// them as a ports.Executor, so a deployment can run without a remote executor.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/aretw0/strata/internal/logging"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/aretw0/strata/pkg/raster"
)

// OpFunc computes the output array of one operation. It must not modify in.
type OpFunc func(ctx context.Context, in *raster.Array, op domain.Operation) (*raster.Array, error)

// Registry manages the available operations.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]OpFunc
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		ops: make(map[string]OpFunc),
	}
}

// Register adds an operation to the registry.
// If an operation with the same name exists, it is overwritten.
func (r *Registry) Register(name string, fn OpFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[name] = fn
}

// Lookup returns the operation registered under name.
func (r *Registry) Lookup(name string) (OpFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.ops[name]
	return fn, ok
}

// Names lists registered operations in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Executor implements ports.Executor by running registered operations against
// the session's own version storage.
type Executor struct {
	registry *Registry
	versions ports.VersionStoreFactory
	logger   *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLogger sets the executor's logger.
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// NewExecutor runs operations from reg against the stores returned by versions.
func NewExecutor(reg *Registry, versions ports.VersionStoreFactory, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry: reg,
		versions: versions,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute loads the input, applies the operation and stores the result under
// a fresh version ID.
func (e *Executor) Execute(ctx context.Context, req ports.ExecRequest) (domain.VersionID, error) {
	fn, ok := e.registry.Lookup(req.Operation.Name)
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedOperation, req.Operation.Name)
	}

	store, err := e.versions(req.SessionID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInputNotFound, err)
	}
	in, err := store.Load(ctx, req.Input)
	if err != nil {
		if errors.Is(err, domain.ErrVersionNotFound) {
			return "", fmt.Errorf("%w: %s", domain.ErrInputNotFound, req.Input)
		}
		return "", err
	}

	out, err := fn(ctx, in, req.Operation)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrExecutorUnavailable, err)
	}

	id := domain.NewVersionID()
	if err := store.Store(ctx, id, out); err != nil {
		return "", fmt.Errorf("failed to store output of %s: %w", req.Operation.Name, err)
	}
	e.logger.Debug("local transform done", "op", req.Operation.Name, "input", req.Input, "output", id)
	return id, nil
}
