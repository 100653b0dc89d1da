package strata_test

import (
	"bytes"
	"context"
	"image/png"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aretw0/strata"
	"github.com/aretw0/strata/pkg/adapters/file"
	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/aretw0/strata/pkg/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// invertExecutor writes 255-v of its input next to it.
type invertExecutor struct {
	versions ports.VersionStoreFactory
}

func (x invertExecutor) Execute(ctx context.Context, req ports.ExecRequest) (domain.VersionID, error) {
	store, err := x.versions(req.SessionID)
	if err != nil {
		return "", err
	}
	in, err := store.Load(ctx, req.Input)
	if err != nil {
		return "", domain.ErrInputNotFound
	}
	out := in.Clone()
	for i := 0; i < out.Len(); i++ {
		out.Set(i, 255-out.At(i))
	}
	id := domain.NewVersionID()
	return id, store.Store(ctx, id, out)
}

func upload(t *testing.T, store ports.VersionStore, v float64) domain.VersionID {
	t.Helper()
	a, err := raster.New(raster.Uint8, 4, 4, 3)
	require.NoError(t, err)
	for i := 0; i < a.Len(); i++ {
		a.Set(i, v)
	}
	id := domain.NewVersionID()
	require.NoError(t, store.Store(context.Background(), id, a))
	return id
}

func TestVersion(t *testing.T) {
	assert.NotEmpty(t, strings.TrimSpace(strata.Version))
}

func TestEngine_RequiresExecutor(t *testing.T) {
	_, err := strata.New(t.TempDir())
	assert.Error(t, err)
}

func TestEngine_RequiresDataDirWithoutStores(t *testing.T) {
	_, err := strata.New("", strata.WithExecutorURL("http://localhost:1"))
	assert.Error(t, err)
}

func TestEngine_EditSession(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	exec := invertExecutor{versions: file.NewVersionStoreFactory(filepath.Join(dir, "sessions"))}

	eng, err := strata.New(dir, strata.WithExecutor(exec))
	require.NoError(t, err)

	_, ok, err := eng.Render(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = eng.Apply(ctx, "s1", "invert", nil)
	assert.ErrorIs(t, err, domain.ErrNoActiveImage)

	base, err := eng.Open(ctx, "s1", upload(t, eng.Uploads(), 10))
	require.NoError(t, err)

	res, err := eng.Apply(ctx, "s1", "invert", nil)
	require.NoError(t, err)
	assert.Equal(t, base, res.InputID)
	assert.Equal(t, 1, res.State.Pointer)

	data, ok, err := eng.Render(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())

	st, err := eng.Stack(ctx, "s1")
	require.NoError(t, err)
	moved, err := st.Undo(ctx)
	require.NoError(t, err)
	assert.True(t, moved)
	cur, _ := st.Current()
	assert.Equal(t, base, cur)
}

func TestEngine_ResumesAfterRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	exec := invertExecutor{versions: file.NewVersionStoreFactory(filepath.Join(dir, "sessions"))}

	first, err := strata.New(dir, strata.WithExecutor(exec))
	require.NoError(t, err)
	_, err = first.Open(ctx, "s1", upload(t, first.Uploads(), 1))
	require.NoError(t, err)
	res, err := first.Apply(ctx, "s1", "invert", nil)
	require.NoError(t, err)

	second, err := strata.New(dir, strata.WithExecutor(exec))
	require.NoError(t, err)
	st, err := second.Stack(ctx, "s1")
	require.NoError(t, err)
	cur, ok := st.Current()
	require.True(t, ok)
	assert.Equal(t, res.OutputID, cur)
	assert.Equal(t, 2, st.State().StackSize)
}

func TestEngine_OpenUnknownUpload(t *testing.T) {
	eng, err := strata.New("",
		strata.WithSnapshotStore(memory.NewStore()),
		strata.WithVersionStores(memory.NewVersionStoreFactory()),
		strata.WithUploads(memory.NewVersionStore()),
		strata.WithExecutorURL("http://localhost:1"),
	)
	require.NoError(t, err)

	_, err = eng.Open(context.Background(), "s1", "missing")
	assert.ErrorIs(t, err, domain.ErrVersionNotFound)
}

func TestEngine_HooksSeeMutations(t *testing.T) {
	var types []domain.MutationType
	hooks := domain.LifecycleHooks{
		OnMutation: func(_ context.Context, ev *domain.MutationEvent) { types = append(types, ev.Type) },
	}
	dir := t.TempDir()
	exec := invertExecutor{versions: file.NewVersionStoreFactory(filepath.Join(dir, "sessions"))}
	eng, err := strata.New(dir, strata.WithExecutor(exec), strata.WithLifecycleHooks(hooks))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = eng.Open(ctx, "s1", upload(t, eng.Uploads(), 0))
	require.NoError(t, err)
	_, err = eng.Apply(ctx, "s1", "invert", nil)
	require.NoError(t, err)

	assert.Equal(t, []domain.MutationType{domain.MutationSetImage, domain.MutationAddVersion}, types)
}

func TestEngine_LocalExecutor(t *testing.T) {
	ctx := context.Background()
	eng, err := strata.New("",
		strata.WithSnapshotStore(memory.NewStore()),
		strata.WithVersionStores(memory.NewVersionStoreFactory()),
		strata.WithUploads(memory.NewVersionStore()),
		strata.WithLocalExecutor(nil),
	)
	require.NoError(t, err)

	_, err = eng.Open(ctx, "s1", upload(t, eng.Uploads(), 40))
	require.NoError(t, err)

	res, err := eng.Apply(ctx, "s1", "blur", map[string]any{"radius": 1})
	require.NoError(t, err)
	assert.Equal(t, 1, res.State.Pointer)

	_, err = eng.Apply(ctx, "s1", "sharpen", nil)
	assert.ErrorIs(t, err, domain.ErrUnsupportedOperation)
}
