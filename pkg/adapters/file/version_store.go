package file

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/aretw0/strata/pkg/raster"
)

// ArrayExt is the file extension of stored arrays.
const ArrayExt = ".arr"

// VersionStore implements ports.VersionStore with one file per version under Root.
type VersionStore struct {
	Root string
}

// NewVersionStore creates a VersionStore rooted at root.
func NewVersionStore(root string) *VersionStore {
	return &VersionStore{Root: root}
}

// NewVersionStoreFactory lays out each session's versions under
// <sessionsPath>/<session>/versions, next to the snapshot written by SnapshotStore.
func NewVersionStoreFactory(sessionsPath string) ports.VersionStoreFactory {
	return func(sessionID string) (ports.VersionStore, error) {
		if !domain.ValidSessionID(sessionID) {
			return nil, fmt.Errorf("invalid session id %q", sessionID)
		}
		return NewVersionStore(filepath.Join(sessionsPath, sessionID, "versions")), nil
	}
}

func (s *VersionStore) path(id domain.VersionID) (string, error) {
	if !id.Valid() {
		return "", fmt.Errorf("invalid version id %q", id)
	}
	return filepath.Join(s.Root, string(id)+ArrayExt), nil
}

// Store writes the encoded array atomically.
func (s *VersionStore) Store(ctx context.Context, id domain.VersionID, a *raster.Array) error {
	p, err := s.path(id)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := raster.Encode(&buf, a); err != nil {
		return fmt.Errorf("failed to encode version %s: %w", id, err)
	}
	if err := writeAtomic(p, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write version %s: %w", id, err)
	}
	return nil
}

// Load reads and decodes the array stored for id.
func (s *VersionStore) Load(ctx context.Context, id domain.VersionID) (*raster.Array, error) {
	p, err := s.path(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrVersionNotFound, err)
	}

	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrVersionNotFound, id)
		}
		return nil, fmt.Errorf("failed to open version %s: %w", id, err)
	}
	defer f.Close()

	a, err := raster.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode version %s: %w", id, err)
	}
	return a, nil
}

// Delete removes the file for id.
func (s *VersionStore) Delete(ctx context.Context, id domain.VersionID) error {
	p, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete version %s: %w", id, err)
	}
	return nil
}

// Purge removes Root entirely, and its parent if that leaves it empty.
func (s *VersionStore) Purge(ctx context.Context) error {
	if err := os.RemoveAll(s.Root); err != nil {
		return fmt.Errorf("failed to purge versions: %w", err)
	}
	_ = os.Remove(filepath.Dir(s.Root))
	return nil
}
