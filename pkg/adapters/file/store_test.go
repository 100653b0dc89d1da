package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/strata/pkg/adapters/file"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/aretw0/strata/pkg/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Ensure the file adapters implement their ports
var (
	_ ports.SnapshotStore = (*file.SnapshotStore)(nil)
	_ ports.VersionStore  = (*file.VersionStore)(nil)
)

func TestSnapshotStore_Contract(t *testing.T) {
	store := file.NewSnapshotStore(t.TempDir())
	ports.RunSnapshotStoreContract(t, store)
}

func TestVersionStore_Contract(t *testing.T) {
	store := file.NewVersionStore(filepath.Join(t.TempDir(), "versions"))
	ports.RunVersionStoreContract(t, store)
}

func TestSnapshotStore_AtomicOverwriteLeavesNoTempFiles(t *testing.T) {
	base := t.TempDir()
	store := file.NewSnapshotStore(base)
	ctx := context.Background()

	s := domain.NewSession().WithImage("A")
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Save(ctx, "s1", domain.NewSnapshot("s1", s, time.Now())))
	}

	entries, err := os.ReadDir(filepath.Join(base, "s1"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "snapshot.json", entries[0].Name())
}

func TestSnapshotStore_CorruptFile(t *testing.T) {
	base := t.TempDir()
	store := file.NewSnapshotStore(base)
	require.NoError(t, os.MkdirAll(filepath.Join(base, "s1"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "s1", "snapshot.json"), []byte("{not json"), 0644))

	_, err := store.Load(context.Background(), "s1")
	assert.ErrorIs(t, err, domain.ErrStorageCorruption)
}

func TestSnapshotStore_RejectsPathTraversal(t *testing.T) {
	store := file.NewSnapshotStore(t.TempDir())
	err := store.Save(context.Background(), "../escape", domain.NewSnapshot("x", domain.NewSession(), time.Now()))
	assert.Error(t, err)
}

func TestVersionStoreFactory_ResetRemovesSessionRoot(t *testing.T) {
	base := t.TempDir()
	ctx := context.Background()
	snapshots := file.NewSnapshotStore(base)
	versions, err := file.NewVersionStoreFactory(base)("s1")
	require.NoError(t, err)

	a, _ := raster.New(raster.Uint8, 2, 2, 3)
	require.NoError(t, versions.Store(ctx, "v1", a))
	require.NoError(t, snapshots.Save(ctx, "s1", domain.NewSnapshot("s1", domain.NewSession().WithImage("v1"), time.Now())))
	assert.FileExists(t, filepath.Join(base, "s1", "versions", "v1"+file.ArrayExt))

	require.NoError(t, snapshots.Delete(ctx, "s1"))
	require.NoError(t, versions.Purge(ctx))

	assert.NoDirExists(t, filepath.Join(base, "s1"))
}

func TestVersionStore_RejectsInvalidID(t *testing.T) {
	store := file.NewVersionStore(t.TempDir())
	a, _ := raster.New(raster.Uint8, 1, 1)
	assert.Error(t, store.Store(context.Background(), "../../etc/x", a))

	_, err := store.Load(context.Background(), "../../etc/x")
	assert.ErrorIs(t, err, domain.ErrVersionNotFound)
}
