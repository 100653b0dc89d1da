package badger_test

import (
	"context"
	"testing"

	"github.com/aretw0/strata/pkg/adapters/badger"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/aretw0/strata/pkg/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.VersionStore = (*badger.VersionStore)(nil)

func openDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestVersionStore_Contract(t *testing.T) {
	store, err := badger.NewVersionStore(openDB(t), "s1")
	require.NoError(t, err)
	ports.RunVersionStoreContract(t, store)
}

func TestVersionStore_SessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	factory := badger.NewVersionStoreFactory(openDB(t))

	s1, err := factory("s1")
	require.NoError(t, err)
	s10, err := factory("s10")
	require.NoError(t, err)

	a, _ := raster.New(raster.Uint8, 1, 1, 3)
	require.NoError(t, s1.Store(ctx, "v", a))
	require.NoError(t, s10.Store(ctx, "v", a))

	require.NoError(t, s1.Purge(ctx))

	_, err = s1.Load(ctx, "v")
	assert.ErrorIs(t, err, domain.ErrVersionNotFound)
	_, err = s10.Load(ctx, "v")
	assert.NoError(t, err, "purging s1 must not touch s10")
}

func TestVersionStore_IDs(t *testing.T) {
	ctx := context.Background()
	store, err := badger.NewVersionStore(openDB(t), "s1")
	require.NoError(t, err)

	a, _ := raster.New(raster.Float32, 2, 2)
	require.NoError(t, store.Store(ctx, "a", a))
	require.NoError(t, store.Store(ctx, "b", a))
	require.NoError(t, store.Delete(ctx, "a"))

	ids, err := store.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.VersionID{"b"}, ids)
}

func TestVersionStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cfg := badger.DefaultConfig(dir)
	cfg.GCInterval = 0
	db, err := badger.Open(cfg)
	require.NoError(t, err)
	store, err := badger.NewVersionStore(db, "s1")
	require.NoError(t, err)

	a, _ := raster.New(raster.Uint16, 3, 2, 1)
	a.Set(5, 4242)
	require.NoError(t, store.Store(ctx, "keep", a))
	require.NoError(t, db.Close())

	db, err = badger.Open(cfg)
	require.NoError(t, err)
	defer db.Close()
	store, err = badger.NewVersionStore(db, "s1")
	require.NoError(t, err)

	got, err := store.Load(ctx, "keep")
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := badger.Open(badger.Config{})
	assert.Error(t, err)
}

func TestNewVersionStore_RejectsInvalidSession(t *testing.T) {
	_, err := badger.NewVersionStore(openDB(t), "a/b")
	assert.Error(t, err)
}
