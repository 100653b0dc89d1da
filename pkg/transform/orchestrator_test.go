package transform_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/strata/pkg/adapters/executor"
	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/aretw0/strata/pkg/raster"
	"github.com/aretw0/strata/pkg/stack"
	"github.com/aretw0/strata/pkg/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExecutor stores a copy of the input under a fresh id, like a real executor would.
type fakeExecutor struct {
	mu       sync.Mutex
	versions ports.VersionStore
	requests []ports.ExecRequest
	err      error
	block    bool
	next     int
}

func (f *fakeExecutor) Execute(ctx context.Context, req ports.ExecRequest) (domain.VersionID, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.next++
	id := domain.VersionID(fmt.Sprintf("out-%d", f.next))
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return "", fmt.Errorf("%w: %v", domain.ErrExecutorUnavailable, ctx.Err())
	}
	if f.err != nil {
		return "", f.err
	}
	a, err := f.versions.Load(ctx, req.Input)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInputNotFound, err)
	}
	if err := f.versions.Store(ctx, id, a.Clone()); err != nil {
		return "", err
	}
	return id, nil
}

type fixture struct {
	snapshots *memory.Store
	versions  *memory.VersionStore
	stack     *stack.Stack
	exec      *fakeExecutor
}

func newFixture(t *testing.T, withImage bool) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{snapshots: memory.NewStore(), versions: memory.NewVersionStore()}
	s, err := stack.New(ctx, "s1", f.snapshots, f.versions)
	require.NoError(t, err)
	f.stack = s
	f.exec = &fakeExecutor{versions: f.versions}

	if withImage {
		a, err := raster.New(raster.Uint8, 2, 2, 3)
		require.NoError(t, err)
		require.NoError(t, f.versions.Store(ctx, "origin", a))
		require.NoError(t, s.SetImage(ctx, "origin"))
	}
	return f
}

func TestApply_Success(t *testing.T) {
	f := newFixture(t, true)
	o := transform.New(f.exec)

	res, err := o.Apply(context.Background(), f.stack, "blur", map[string]any{"radius": 3.0})
	require.NoError(t, err)

	assert.Equal(t, "blur", res.Operation)
	assert.Equal(t, domain.VersionID("origin"), res.InputID)
	assert.Equal(t, domain.VersionID("out-1"), res.OutputID)
	assert.Equal(t, 1, res.State.Pointer)
	assert.True(t, res.State.UndoPossible)
	assert.False(t, res.State.RedoPossible)

	cur, _ := f.stack.Current()
	assert.Equal(t, res.OutputID, cur)

	require.Len(t, f.exec.requests, 1)
	assert.Equal(t, "s1", f.exec.requests[0].SessionID)
	assert.IsType(t, &domain.BlurParams{}, f.exec.requests[0].Operation.Typed)
}

func TestApply_NoActiveImage(t *testing.T) {
	f := newFixture(t, false)
	o := transform.New(f.exec)

	_, err := o.Apply(context.Background(), f.stack, "blur", map[string]any{"radius": 3.0})
	assert.ErrorIs(t, err, domain.ErrNoActiveImage)
	assert.Empty(t, f.stack.Session().History)
	assert.Empty(t, f.exec.requests, "executor must not be called")
}

func TestApply_ValidationErrors(t *testing.T) {
	f := newFixture(t, true)
	o := transform.New(f.exec)
	ctx := context.Background()

	_, err := o.Apply(ctx, f.stack, "  ", nil)
	assert.ErrorIs(t, err, domain.ErrMissingOperation)

	_, err = o.Apply(ctx, f.stack, "blur", map[string]any{"radius": -1.0})
	assert.ErrorIs(t, err, domain.ErrInvalidParameters)

	assert.Empty(t, f.exec.requests)
	assert.Len(t, f.stack.Session().History, 1)
}

func TestApply_UnknownOperationIsForwarded(t *testing.T) {
	f := newFixture(t, true)
	f.exec.err = fmt.Errorf("%w: sharpen", domain.ErrUnsupportedOperation)
	o := transform.New(f.exec)

	_, err := o.Apply(context.Background(), f.stack, "sharpen", map[string]any{"amount": 2.0})
	assert.ErrorIs(t, err, domain.ErrUnsupportedOperation)
	require.Len(t, f.exec.requests, 1)
	assert.Equal(t, map[string]any{"amount": 2.0}, f.exec.requests[0].Operation.Params)
	assert.Len(t, f.stack.Session().History, 1)
}

func TestApply_ExecutorFailuresLeaveStackUntouched(t *testing.T) {
	for _, want := range []error{domain.ErrUnsupportedOperation, domain.ErrInputNotFound, domain.ErrExecutorUnavailable} {
		t.Run(want.Error(), func(t *testing.T) {
			f := newFixture(t, true)
			f.exec.err = fmt.Errorf("%w: from executor", want)
			before := f.stack.Session()

			_, err := transform.New(f.exec).Apply(context.Background(), f.stack, "tile", map[string]any{"tile_size": 256.0})
			assert.ErrorIs(t, err, want)
			assert.Equal(t, before, f.stack.Session())
		})
	}
}

func TestApply_TimeoutLeavesStateIdentical(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	a, _ := raster.New(raster.Uint8, 2, 2, 3)
	require.NoError(t, f.versions.Store(ctx, "second", a))
	require.NoError(t, f.stack.AddVersion(ctx, "second"))
	_, err := f.stack.Undo(ctx)
	require.NoError(t, err)

	before := f.stack.Session()
	snapBefore, err := f.snapshots.Load(ctx, "s1")
	require.NoError(t, err)

	f.exec.block = true
	o := transform.New(f.exec, transform.WithTimeout(30*time.Millisecond))

	start := time.Now()
	_, err = o.Apply(ctx, f.stack, "blur", nil)
	assert.ErrorIs(t, err, domain.ErrExecutorUnavailable)
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.Equal(t, before, f.stack.Session())
	snapAfter, err := f.snapshots.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, snapBefore, snapAfter)
	assert.True(t, f.versions.Has("second"), "redo branch survives a failed transform")
}

func TestApply_StaleParentDiscardsOutput(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	a, _ := raster.New(raster.Uint8, 2, 2, 3)
	require.NoError(t, f.versions.Store(ctx, "other", a))

	// Another request moves the stack while the executor is working.
	racing := &racingStack{Stack: f.stack, before: func() {
		require.NoError(t, f.stack.SetImage(ctx, "other"))
	}}

	_, err := transform.New(f.exec).Apply(ctx, racing, "blur", nil)
	assert.ErrorIs(t, err, domain.ErrStaleParent)
	assert.False(t, f.versions.Has("out-1"), "orphaned output is deleted")

	cur, _ := f.stack.Current()
	assert.Equal(t, domain.VersionID("other"), cur)
}

type racingStack struct {
	*stack.Stack
	before func()
}

func (r *racingStack) AddVersionFrom(ctx context.Context, parent, id domain.VersionID) (domain.StackState, error) {
	r.before()
	return r.Stack.AddVersionFrom(ctx, parent, id)
}

func TestApply_OverHTTP(t *testing.T) {
	f := newFixture(t, true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		input := domain.VersionID(r.URL.Query().Get("_uuid"))
		a, err := f.versions.Load(r.Context(), input)
		if errors.Is(err, domain.ErrVersionNotFound) {
			http.Error(w, "Input image not found in stack", http.StatusNotFound)
			return
		}
		require.NoError(t, f.versions.Store(r.Context(), "remote-1", a))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"output_uuid":"remote-1"}`))
	}))
	defer srv.Close()

	o := transform.New(executor.NewClient(srv.URL))
	res, err := o.Apply(context.Background(), f.stack, "color_correct", map[string]any{"bandwise": true})
	require.NoError(t, err)
	assert.Equal(t, domain.VersionID("remote-1"), res.OutputID)
	assert.Equal(t, []domain.VersionID{"origin", "remote-1"}, f.stack.Session().History)
}

func TestNew_DefaultTimeout(t *testing.T) {
	assert.Equal(t, transform.DefaultTimeout, transform.New(nil).Timeout())
	assert.Equal(t, time.Second, transform.New(nil, transform.WithTimeout(time.Second)).Timeout())
	assert.Equal(t, transform.DefaultTimeout, transform.New(nil, transform.WithTimeout(0)).Timeout())
}
