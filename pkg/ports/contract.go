package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSnapshotStoreContract runs a suite of tests to verify that a SnapshotStore
// implementation adheres to the defined interface contract.
func RunSnapshotStoreContract(t *testing.T, store SnapshotStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	active := &domain.Session{
		History:  []domain.VersionID{"A", "B", "C"},
		Pointer:  1,
		OriginID: "A",
	}

	t.Run("Save and Load", func(t *testing.T) {
		snap := domain.NewSnapshot(sessionID, active, time.Now())
		require.NoError(t, store.Save(ctx, sessionID, snap), "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, domain.SnapshotSchemaVersion, loaded.SchemaVersion)
		assert.Equal(t, snap.History, loaded.History)
		assert.Equal(t, snap.Pointer, loaded.Pointer)
		assert.Equal(t, snap.OriginID, loaded.OriginID)

		restored, err := loaded.Session()
		require.NoError(t, err)
		assert.Equal(t, active, restored)
	})

	t.Run("Overwrite", func(t *testing.T) {
		next, ok := active.Redone()
		require.True(t, ok)
		require.NoError(t, store.Save(ctx, sessionID, domain.NewSnapshot(sessionID, next, time.Now())))

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, 2, loaded.Pointer)
	})

	t.Run("Save is isolated from caller mutation", func(t *testing.T) {
		snap := domain.NewSnapshot(sessionID, active, time.Now())
		require.NoError(t, store.Save(ctx, sessionID, snap))
		snap.History[0] = "mutated"

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, domain.VersionID("A"), loaded.History[0])
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, sessionID, domain.NewSnapshot(sessionID, domain.NewSession(), time.Now())))

		require.NoError(t, store.Delete(ctx, sessionID), "Delete should not return error")

		_, err := store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")

		assert.NoError(t, store.Delete(ctx, sessionID), "Deleting twice should be a no-op")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		_ = store.Save(ctx, id1, domain.NewSnapshot(id1, domain.NewSession(), time.Now()))
		_ = store.Save(ctx, id2, domain.NewSnapshot(id2, domain.NewSession(), time.Now()))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}

// RunVersionStoreContract runs a suite of tests to verify that a VersionStore
// implementation adheres to the defined interface contract. The store must start empty.
func RunVersionStoreContract(t *testing.T, store VersionStore) {
	ctx := context.Background()

	sample := func(dtype raster.DType) *raster.Array {
		a, err := raster.New(dtype, 4, 3, 2)
		require.NoError(t, err)
		for i := 0; i < a.Len(); i++ {
			a.Set(i, float64(i*3))
		}
		return a
	}

	t.Run("Store and Load", func(t *testing.T) {
		for _, dtype := range []raster.DType{raster.Uint8, raster.Uint16, raster.Float32, raster.Float64} {
			id := domain.VersionID("v-" + string(dtype))
			a := sample(dtype)
			require.NoError(t, store.Store(ctx, id, a))

			got, err := store.Load(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, a.DType, got.DType, "dtype must round-trip")
			assert.Equal(t, a.Shape, got.Shape, "shape must round-trip")
			assert.Equal(t, a.Data, got.Data, "payload must round-trip")
		}
	})

	t.Run("Load Missing", func(t *testing.T) {
		_, err := store.Load(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrVersionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Store(ctx, "doomed", sample(raster.Uint8)))
		require.NoError(t, store.Delete(ctx, "doomed"))

		_, err := store.Load(ctx, "doomed")
		assert.ErrorIs(t, err, domain.ErrVersionNotFound)

		assert.NoError(t, store.Delete(ctx, "doomed"), "Delete of an absent version is a no-op")
	})

	t.Run("Purge", func(t *testing.T) {
		require.NoError(t, store.Store(ctx, "p1", sample(raster.Uint8)))
		require.NoError(t, store.Store(ctx, "p2", sample(raster.Uint8)))
		require.NoError(t, store.Purge(ctx))

		for _, id := range []domain.VersionID{"p1", "p2", "v-uint8"} {
			_, err := store.Load(ctx, id)
			assert.ErrorIs(t, err, domain.ErrVersionNotFound)
		}

		// The area must remain usable after a purge.
		require.NoError(t, store.Store(ctx, "after", sample(raster.Uint8)))
		_, err := store.Load(ctx, "after")
		assert.NoError(t, err)
	})
}
