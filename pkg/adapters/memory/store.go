package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/aretw0/strata/pkg/raster"
)

// Store implements ports.SnapshotStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.Snapshot
	mu   sync.RWMutex
}

// NewStore creates a new in-memory snapshot store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.Snapshot),
	}
}

// Save persists the snapshot in memory.
func (s *Store) Save(ctx context.Context, sessionID string, snap *domain.Snapshot) error {
	// Deep copy to ensure isolation, similar to serialization
	copied := snap.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sessionID] = copied
	return nil
}

// Load retrieves the snapshot from memory.
func (s *Store) Load(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.data[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	// Copy on read so caller can't mutate store state directly by pointer
	return snap.Clone(), nil
}

// Delete removes the snapshot.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}

// List returns persisted sessions.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]string, 0, len(s.data))
	for id := range s.data {
		sessions = append(sessions, id)
	}
	return sessions, nil
}

// VersionStore implements ports.VersionStore in memory.
// Safe for concurrent use.
type VersionStore struct {
	data map[domain.VersionID]*raster.Array
	mu   sync.RWMutex
}

// NewVersionStore creates an empty in-memory version store.
func NewVersionStore() *VersionStore {
	return &VersionStore{data: make(map[domain.VersionID]*raster.Array)}
}

// NewVersionStoreFactory returns a factory handing out one store per session.
// Repeated calls for the same session return the same store.
func NewVersionStoreFactory() ports.VersionStoreFactory {
	var mu sync.Mutex
	stores := make(map[string]*VersionStore)
	return func(sessionID string) (ports.VersionStore, error) {
		mu.Lock()
		defer mu.Unlock()
		vs, ok := stores[sessionID]
		if !ok {
			vs = NewVersionStore()
			stores[sessionID] = vs
		}
		return vs, nil
	}
}

// Store keeps a copy of a.
func (s *VersionStore) Store(ctx context.Context, id domain.VersionID, a *raster.Array) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("failed to store version %s: %w", id, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = a.Clone()
	return nil
}

// Load returns a copy of the array stored for id.
func (s *VersionStore) Load(ctx context.Context, id domain.VersionID) (*raster.Array, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.data[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrVersionNotFound, id)
	}
	return a.Clone(), nil
}

// Delete removes id.
func (s *VersionStore) Delete(ctx context.Context, id domain.VersionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

// Purge removes every stored array.
func (s *VersionStore) Purge(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[domain.VersionID]*raster.Array)
	return nil
}

// Has reports whether id is stored. Intended for tests.
func (s *VersionStore) Has(id domain.VersionID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[id]
	return ok
}

// Len returns the number of stored arrays.
func (s *VersionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
