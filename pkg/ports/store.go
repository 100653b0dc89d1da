package ports

import (
	"context"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/raster"
)

// SnapshotStore defines the interface for persisting session snapshots.
// This allows a restarted process to resume an interrupted session.
type SnapshotStore interface {
	// Save atomically overwrites the snapshot for a given session ID.
	Save(ctx context.Context, sessionID string, snap *domain.Snapshot) error

	// Load retrieves the snapshot for a given session ID.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, sessionID string) (*domain.Snapshot, error)

	// Delete removes the snapshot for a given session ID. Missing sessions are not an error.
	Delete(ctx context.Context, sessionID string) error

	// List returns the IDs of all persisted sessions.
	List(ctx context.Context) ([]string, error)
}

// VersionStore holds the image array behind each version ID of one storage area.
type VersionStore interface {
	// Store writes the array for id. Arrays round-trip exactly.
	Store(ctx context.Context, id domain.VersionID, a *raster.Array) error

	// Load reads the array for id.
	// Returns domain.ErrVersionNotFound if nothing is stored under id.
	Load(ctx context.Context, id domain.VersionID) (*raster.Array, error)

	// Delete removes the array for id. It is a no-op if id is absent.
	Delete(ctx context.Context, id domain.VersionID) error

	// Purge removes every array in the storage area.
	Purge(ctx context.Context) error
}

// VersionStoreFactory returns the version storage area of a session.
type VersionStoreFactory func(sessionID string) (VersionStore, error)
