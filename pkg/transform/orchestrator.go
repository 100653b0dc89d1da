// Package transform wires transform requests to the Operation Executor and
// records accepted results on a session stack.
package transform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/strata/internal/logging"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/observability"
	"github.com/aretw0/strata/pkg/ports"
)

// DefaultTimeout bounds one executor call.
const DefaultTimeout = 60 * time.Second

// Stack is the part of stack.Stack the orchestrator needs.
type Stack interface {
	ID() string
	Current() (domain.VersionID, bool)
	AddVersionFrom(ctx context.Context, parent, id domain.VersionID) (domain.StackState, error)
	Versions() ports.VersionStore
}

// Result describes an accepted transform.
type Result struct {
	Operation string
	InputID   domain.VersionID
	OutputID  domain.VersionID
	State     domain.StackState
}

// Orchestrator applies operations through an Executor.
type Orchestrator struct {
	executor ports.Executor
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTimeout bounds each executor call. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger configures a logger for the Orchestrator.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithMetrics records executor latency and outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// New creates an Orchestrator calling exec.
func New(exec ports.Executor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		executor: exec,
		timeout:  DefaultTimeout,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Timeout returns the per-call executor deadline.
func (o *Orchestrator) Timeout() time.Duration { return o.timeout }

// Apply runs operation name with params against the active version of s and
// appends the executor's output. The stack is only touched once the executor
// has confirmed success; the executor call itself holds no stack lock.
func (o *Orchestrator) Apply(ctx context.Context, s Stack, name string, params map[string]any) (Result, error) {
	input, ok := s.Current()
	if !ok {
		return Result{}, domain.ErrNoActiveImage
	}

	op, err := domain.ParseOperation(name, params)
	if err != nil {
		return Result{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	output, err := o.executor.Execute(callCtx, ports.ExecRequest{
		SessionID: s.ID(),
		Input:     input,
		Operation: op,
	})
	o.metrics.ObserveTransform(op.Name, outcome(err), time.Since(start))
	if err != nil {
		if !errors.Is(err, domain.ErrExecutorUnavailable) && callCtx.Err() != nil {
			err = fmt.Errorf("%w: %v", domain.ErrExecutorUnavailable, err)
		}
		o.logger.Warn("transform failed",
			"session_id", s.ID(),
			"op", op.Name,
			"version_id", input,
			"err", err)
		return Result{}, err
	}

	state, err := s.AddVersionFrom(ctx, input, output)
	if err != nil {
		if !errors.Is(err, domain.ErrDuplicateVersion) {
			// The output never made it into the history.
			if derr := s.Versions().Delete(context.WithoutCancel(ctx), output); derr != nil {
				o.logger.Warn("failed to discard orphaned output", "session_id", s.ID(), "version_id", output, "err", derr)
			}
		}
		return Result{}, err
	}

	o.logger.Info("transform applied",
		"session_id", s.ID(),
		"op", op.Name,
		"input", input,
		"version_id", output,
		"pointer", state.Pointer)

	return Result{
		Operation: op.Name,
		InputID:   input,
		OutputID:  output,
		State:     state,
	}, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrExecutorUnavailable):
		return "unavailable"
	case errors.Is(err, domain.ErrUnsupportedOperation):
		return "unsupported"
	case errors.Is(err, domain.ErrInputNotFound):
		return "input_not_found"
	default:
		return "error"
	}
}
