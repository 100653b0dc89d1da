package registry_test

import (
	"context"
	"testing"

	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/aretw0/strata/pkg/raster"
	"github.com/aretw0/strata/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.Executor = (*registry.Executor)(nil)

func seeded(t *testing.T, values ...float64) (ports.VersionStoreFactory, domain.VersionID) {
	t.Helper()
	factory := memory.NewVersionStoreFactory()
	store, err := factory("s1")
	require.NoError(t, err)

	a, err := raster.New(raster.Uint8, 1, len(values))
	require.NoError(t, err)
	for i, v := range values {
		a.Set(i, v)
	}
	require.NoError(t, store.Store(context.Background(), "in", a))
	return factory, "in"
}

func load(t *testing.T, factory ports.VersionStoreFactory, id domain.VersionID) *raster.Array {
	t.Helper()
	store, err := factory("s1")
	require.NoError(t, err)
	a, err := store.Load(context.Background(), id)
	require.NoError(t, err)
	return a
}

func TestRegistry_RegisterAndNames(t *testing.T) {
	r := registry.NewRegistry()
	r.Register("b", nil)
	r.Register("a", nil)

	_, ok := r.Lookup("a")
	assert.True(t, ok)
	_, ok = r.Lookup("c")
	assert.False(t, ok)
	assert.Equal(t, []string{"a", "b"}, r.Names())
}

func TestExecutor_Invert(t *testing.T) {
	factory, in := seeded(t, 0, 10, 200)
	exec := registry.NewExecutor(registry.Builtin(), factory)

	out, err := exec.Execute(context.Background(), ports.ExecRequest{
		SessionID: "s1",
		Input:     in,
		Operation: domain.Operation{Name: registry.OpInvert},
	})
	require.NoError(t, err)
	assert.NotEqual(t, in, out)
	assert.True(t, out.Valid())

	a := load(t, factory, out)
	assert.Equal(t, []byte{200, 190, 0}, a.Data)

	// The input is left untouched.
	assert.Equal(t, []byte{0, 10, 200}, load(t, factory, in).Data)
}

func TestExecutor_BlurAverage(t *testing.T) {
	factory, in := seeded(t, 0, 30, 0)
	exec := registry.NewExecutor(registry.Builtin(), factory)

	op, err := domain.ParseOperation(domain.OpBlur, map[string]any{"radius": 1})
	require.NoError(t, err)

	out, err := exec.Execute(context.Background(), ports.ExecRequest{SessionID: "s1", Input: in, Operation: op})
	require.NoError(t, err)

	// Edges are clamped: (0+0+30)/3, (0+30+0)/3, (30+0+0)/3.
	assert.Equal(t, []byte{10, 10, 10}, load(t, factory, out).Data)
}

func TestExecutor_BlurParsesUntypedParams(t *testing.T) {
	factory, in := seeded(t, 9, 9, 9)
	exec := registry.NewExecutor(registry.Builtin(), factory)

	out, err := exec.Execute(context.Background(), ports.ExecRequest{
		SessionID: "s1",
		Input:     in,
		Operation: domain.Operation{Name: domain.OpBlur, Params: map[string]any{"kernel": "gaussian", "radius": 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 9, 9}, load(t, factory, out).Data)
}

func TestExecutor_Errors(t *testing.T) {
	factory, in := seeded(t, 1)
	exec := registry.NewExecutor(registry.Builtin(), factory)
	ctx := context.Background()

	_, err := exec.Execute(ctx, ports.ExecRequest{SessionID: "s1", Input: in, Operation: domain.Operation{Name: "sharpen"}})
	assert.ErrorIs(t, err, domain.ErrUnsupportedOperation)

	_, err = exec.Execute(ctx, ports.ExecRequest{SessionID: "s1", Input: "missing", Operation: domain.Operation{Name: registry.OpIdentity}})
	assert.ErrorIs(t, err, domain.ErrInputNotFound)

	_, err = exec.Execute(ctx, ports.ExecRequest{
		SessionID: "s1",
		Input:     in,
		Operation: domain.Operation{Name: domain.OpBlur, Params: map[string]any{"radius": 0}},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidParameters)
}
