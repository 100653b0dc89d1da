package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/strata/internal/logging"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/aretw0/strata/pkg/stack"
)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager is the registry of session stacks, keyed by session id.
// Each session is built and loaded at most once; concurrent callers for the
// same id share the instance, while different ids never wait on each other.
// It uses Reference Counting to garbage collect unused construction locks.
type Manager struct {
	snapshots ports.SnapshotStore
	versions  ports.VersionStoreFactory

	mu     sync.Mutex            // Global lock for the maps
	locks  map[string]*lockEntry // Per-session construction locks
	stacks map[string]*stack.Stack

	stackOpts []stack.Option
	logger    *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking on every stack.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return WithStackOptions(stack.WithLocker(locker, ttl))
}

// WithLogger configures a logger for the Manager and its stacks.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithStackOptions applies opts to every stack the Manager builds.
func WithStackOptions(opts ...stack.Option) Option {
	return func(m *Manager) {
		m.stackOpts = append(m.stackOpts, opts...)
	}
}

// NewManager creates a registry persisting snapshots to snapshots and arrays to
// the area versions returns for each session.
func NewManager(snapshots ports.SnapshotStore, versions ports.VersionStoreFactory, opts ...Option) *Manager {
	m := &Manager{
		snapshots: snapshots,
		versions:  versions,
		locks:     make(map[string]*lockEntry),
		stacks:    make(map[string]*stack.Stack),
		logger:    logging.NewNop(), // Default to no-op
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(sessionID) after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return // Should not happen if paired correctly
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

func (m *Manager) cached(sessionID string) (*stack.Stack, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stacks[sessionID]
	return s, ok
}

// Stack returns the stack of sessionID, loading its snapshot on first use.
// An empty id selects domain.DefaultSessionID.
func (m *Manager) Stack(ctx context.Context, sessionID string) (*stack.Stack, error) {
	if sessionID == "" {
		sessionID = domain.DefaultSessionID
	}
	if s, ok := m.cached(sessionID); ok {
		return s, nil
	}
	if !domain.ValidSessionID(sessionID) {
		return nil, fmt.Errorf("invalid session id %q", sessionID)
	}

	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	// Another caller may have finished building while we waited.
	if s, ok := m.cached(sessionID); ok {
		return s, nil
	}

	versions, err := m.versions(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to open version store of %s: %w", sessionID, err)
	}

	opts := append([]stack.Option{stack.WithLogger(m.logger)}, m.stackOpts...)
	s, err := stack.New(ctx, sessionID, m.snapshots, versions, opts...)
	if err != nil {
		m.logger.Error("failed to load session", "session_id", sessionID, "err", err)
		return nil, err
	}

	m.mu.Lock()
	m.stacks[sessionID] = s
	m.mu.Unlock()
	return s, nil
}

// List returns every known session: persisted ones plus those only held in memory.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	persisted, err := m.snapshots.List(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(persisted))
	ids := make([]string, 0, len(persisted))
	for _, id := range persisted {
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	m.mu.Lock()
	for id := range m.stacks {
		if _, dup := seen[id]; !dup {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	sort.Strings(ids)
	return ids, nil
}

// Forget drops the in-memory stack of sessionID. The next Stack call reloads it.
func (m *Manager) Forget(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stacks, sessionID)
}

// Delete resets sessionID, removing its snapshot and versions, and forgets it.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	s, err := m.Stack(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := s.Reset(ctx); err != nil {
		return err
	}
	m.Forget(s.ID())
	return nil
}

// Snapshots returns the underlying snapshot store.
func (m *Manager) Snapshots() ports.SnapshotStore {
	return m.snapshots
}
