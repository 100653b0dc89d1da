package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aretw0/strata/pkg/domain"
)

const snapshotFile = "snapshot.json"

// SnapshotStore implements ports.SnapshotStore using the local filesystem.
// Each session owns a directory under BasePath holding snapshot.json.
type SnapshotStore struct {
	BasePath string
}

// NewSnapshotStore creates a new SnapshotStore with the given base path.
// If basePath is empty, it defaults to ".strata/sessions".
func NewSnapshotStore(basePath string) *SnapshotStore {
	if basePath == "" {
		basePath = filepath.Join(".strata", "sessions")
	}
	return &SnapshotStore{BasePath: basePath}
}

// SessionDir returns the storage root of a session.
func (s *SnapshotStore) SessionDir(sessionID string) string {
	return filepath.Join(s.BasePath, sessionID)
}

func (s *SnapshotStore) path(sessionID string) (string, error) {
	if !domain.ValidSessionID(sessionID) {
		return "", fmt.Errorf("invalid session id %q", sessionID)
	}
	return filepath.Join(s.SessionDir(sessionID), snapshotFile), nil
}

// Save persists the snapshot to a JSON file atomically.
func (s *SnapshotStore) Save(ctx context.Context, sessionID string, snap *domain.Snapshot) error {
	destPath, err := s.path(sessionID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := writeAtomic(destPath, data); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// Load retrieves the snapshot from its JSON file.
func (s *SnapshotStore) Load(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	filePath, err := s.path(sessionID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal snapshot: %v", domain.ErrStorageCorruption, err)
	}

	return &snap, nil
}

// Delete removes the snapshot file, and the session directory once it is empty.
func (s *SnapshotStore) Delete(ctx context.Context, sessionID string) error {
	filePath, err := s.path(sessionID)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete snapshot file: %w", err)
	}
	_ = os.Remove(s.SessionDir(sessionID)) // fails while versions remain

	return nil
}

// List returns all persisted session IDs.
func (s *SnapshotStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := []string{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.BasePath, entry.Name(), snapshotFile)); err == nil {
			sessions = append(sessions, entry.Name())
		}
	}

	return sessions, nil
}
