// Package stack implements the version stack of one editing session.
//
// Every mutation follows the same path: take the write lock, compute the next
// session on a copy, persist its snapshot, and only then publish it in memory.
// A failed save therefore leaves the in-memory stack exactly as it was.
// Versions dropped by the mutation are deleted after the commit.
package stack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/strata/internal/logging"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/aretw0/strata/pkg/raster"
)

// DefaultLockTTL bounds how long a distributed lock survives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// Stack is the undo/redo history of one session. It is safe for concurrent use.
type Stack struct {
	id        string
	snapshots ports.SnapshotStore
	versions  ports.VersionStore

	mu      sync.RWMutex
	session *domain.Session

	locker  ports.DistributedLocker
	lockTTL time.Duration
	hooks   domain.LifecycleHooks
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Stack.
type Option func(*Stack)

// WithLogger configures a logger for the Stack.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Stack) {
		s.logger = logger
	}
}

// WithLocker serializes mutations across processes sharing the snapshot store.
// While a distributed lock is held the stack reloads its snapshot before mutating.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(s *Stack) {
		s.locker = locker
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithHooks registers lifecycle hooks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(s *Stack) {
		s.hooks = hooks
	}
}

// WithEvictionHook adds fn to the eviction callbacks, keeping any already set.
func WithEvictionHook(fn func([]domain.VersionID)) Option {
	return func(s *Stack) {
		prev := s.hooks.OnEvict
		s.hooks.OnEvict = func(ctx context.Context, ids []domain.VersionID) {
			if prev != nil {
				prev(ctx, ids)
			}
			fn(ids)
		}
	}
}

// WithClock overrides the time source used for snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Stack) {
		s.now = now
	}
}

// New creates the stack of sessionID and restores its persisted snapshot, if any.
// A snapshot that fails validation is reported as domain.ErrStorageCorruption.
func New(ctx context.Context, sessionID string, snapshots ports.SnapshotStore, versions ports.VersionStore, opts ...Option) (*Stack, error) {
	if !domain.ValidSessionID(sessionID) {
		return nil, fmt.Errorf("invalid session id %q", sessionID)
	}
	s := &Stack{
		id:        sessionID,
		snapshots: snapshots,
		versions:  versions,
		lockTTL:   DefaultLockTTL,
		logger:    logging.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	session, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	s.session = session

	if !session.Empty() {
		s.logger.Info("session restored",
			"session_id", sessionID,
			"pointer", session.Pointer,
			"stack_size", len(session.History))
	}
	return s, nil
}

func (s *Stack) load(ctx context.Context) (*domain.Session, error) {
	snap, err := s.snapshots.Load(ctx, s.id)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return domain.NewSession(), nil
		}
		return nil, fmt.Errorf("failed to load session %s: %w", s.id, err)
	}
	if snap.SessionID != "" && snap.SessionID != s.id {
		return nil, fmt.Errorf("%w: snapshot of %q found under %q", domain.ErrStorageCorruption, snap.SessionID, s.id)
	}
	session, err := snap.Session()
	if err != nil {
		return nil, fmt.Errorf("failed to restore session %s: %w", s.id, err)
	}
	return session, nil
}

// ID returns the session id.
func (s *Stack) ID() string { return s.id }

// Versions returns the version storage area of the session.
func (s *Stack) Versions() ports.VersionStore { return s.versions }

// Current returns the active version id, or false when the stack is empty.
func (s *Stack) Current() (domain.VersionID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Current()
}

// State returns a consistent view of the stack flags.
func (s *Stack) State() domain.StackState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.State()
}

// Session returns a deep copy of the session.
func (s *Stack) Session() *domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Clone()
}

// Refresh reloads the session from the snapshot store.
func (s *Stack) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx)
}

func (s *Stack) refreshLocked(ctx context.Context) error {
	session, err := s.load(ctx)
	if err != nil {
		return err
	}
	s.session = session
	return nil
}

// SetImage starts a new history holding only id. Every version of the previous
// history other than id is deleted.
func (s *Stack) SetImage(ctx context.Context, id domain.VersionID) error {
	if !id.Valid() {
		return fmt.Errorf("invalid version id %q", id)
	}
	_, _, err := s.mutate(ctx, domain.MutationSetImage, id, func(cur *domain.Session) (*domain.Session, bool, error) {
		return cur.WithImage(id), true, nil
	})
	return err
}

// SetImageFrom stores a under a fresh version id and makes it the new base
// image. Both steps run under the stack lock, so a concurrent Reset cannot
// purge the array between them.
func (s *Stack) SetImageFrom(ctx context.Context, a *raster.Array) (domain.VersionID, error) {
	id := domain.NewVersionID()
	stored := false
	_, _, err := s.mutate(ctx, domain.MutationSetImage, id, func(cur *domain.Session) (*domain.Session, bool, error) {
		if err := s.versions.Store(ctx, id, a); err != nil {
			return nil, false, fmt.Errorf("%w: store %s: %v", domain.ErrPersistence, id, err)
		}
		stored = true
		return cur.WithImage(id), true, nil
	})
	if err != nil {
		if stored {
			_ = s.versions.Delete(context.WithoutCancel(ctx), id)
		}
		return "", err
	}
	return id, nil
}

// Ingest copies the array stored under upload in uploads into the stack's own
// storage and makes the copy the new base image.
func (s *Stack) Ingest(ctx context.Context, uploads ports.VersionStore, upload domain.VersionID) (domain.VersionID, error) {
	a, err := uploads.Load(ctx, upload)
	if err != nil {
		return "", err
	}
	id, err := s.SetImageFrom(ctx, a)
	if err != nil {
		return "", err
	}
	s.logger.Info("image set", "session_id", s.id, "upload", upload, "version_id", id)
	return id, nil
}

// AddVersion appends id after the active version. Redo entries beyond the
// active version are dropped and their arrays deleted.
func (s *Stack) AddVersion(ctx context.Context, id domain.VersionID) error {
	_, err := s.AddVersionFrom(ctx, "", id)
	return err
}

// AddVersionFrom is AddVersion guarded by a compare step: it fails with
// domain.ErrStaleParent unless parent is still the active version.
// An empty parent skips the check.
func (s *Stack) AddVersionFrom(ctx context.Context, parent, id domain.VersionID) (domain.StackState, error) {
	if !id.Valid() {
		return domain.StackState{}, fmt.Errorf("invalid version id %q", id)
	}
	next, _, err := s.mutate(ctx, domain.MutationAddVersion, id, func(cur *domain.Session) (*domain.Session, bool, error) {
		if parent != "" {
			active, ok := cur.Current()
			if !ok {
				return nil, false, domain.ErrNoActiveImage
			}
			if active != parent {
				return nil, false, fmt.Errorf("%w: active version is %s, not %s", domain.ErrStaleParent, active, parent)
			}
		}
		next, err := cur.WithVersion(id)
		if err != nil {
			return nil, false, err
		}
		return next, true, nil
	})
	if err != nil {
		return domain.StackState{}, err
	}
	return next.State(), nil
}

// Undo steps back one version. It reports false without error at the boundary.
func (s *Stack) Undo(ctx context.Context) (bool, error) {
	_, changed, err := s.mutate(ctx, domain.MutationUndo, "", func(cur *domain.Session) (*domain.Session, bool, error) {
		next, ok := cur.Undone()
		return next, ok, nil
	})
	return changed, err
}

// Redo steps forward one version. It reports false without error at the boundary.
func (s *Stack) Redo(ctx context.Context) (bool, error) {
	_, changed, err := s.mutate(ctx, domain.MutationRedo, "", func(cur *domain.Session) (*domain.Session, bool, error) {
		next, ok := cur.Redone()
		return next, ok, nil
	})
	return changed, err
}

// Reset deletes the snapshot and every version of the session.
// If the snapshot cannot be deleted the stack is left untouched; once it is
// gone the stack is empty even if purging the versions fails.
func (s *Stack) Reset(ctx context.Context) error {
	return s.withLock(ctx, func(ctx context.Context) error {
		old := s.session

		if err := s.snapshots.Delete(ctx, s.id); err != nil {
			return fmt.Errorf("%w: delete snapshot of %s: %v", domain.ErrPersistence, s.id, err)
		}
		s.session = domain.NewSession()

		purgeErr := s.versions.Purge(ctx)

		s.notify(ctx, domain.MutationReset, "", old.History)

		if purgeErr != nil {
			return fmt.Errorf("%w: purge versions of %s: %v", domain.ErrPersistence, s.id, purgeErr)
		}
		s.logger.Info("session reset", "session_id", s.id, "evicted", len(old.History))
		return nil
	})
}

type transition func(cur *domain.Session) (next *domain.Session, changed bool, err error)

// mutate runs fn on the current session and commits the result once its
// snapshot is saved. It returns the committed session.
func (s *Stack) mutate(ctx context.Context, typ domain.MutationType, version domain.VersionID, fn transition) (*domain.Session, bool, error) {
	var (
		committed *domain.Session
		changed   bool
	)
	err := s.withLock(ctx, func(ctx context.Context) error {
		old := s.session
		next, ok, err := fn(old)
		if err != nil {
			return err
		}
		if !ok {
			committed = old
			return nil
		}

		snap := domain.NewSnapshot(s.id, next, s.now())
		if err := s.snapshots.Save(ctx, s.id, snap); err != nil {
			s.logger.Error("failed to persist session", "session_id", s.id, "op", string(typ), "err", err)
			return fmt.Errorf("%w: save snapshot of %s: %v", domain.ErrPersistence, s.id, err)
		}
		s.session = next
		committed, changed = next, true

		evicted := domain.Evicted(old, next)
		for _, id := range evicted {
			if err := s.versions.Delete(ctx, id); err != nil {
				// The mutation is committed; a leftover array only costs space.
				s.logger.Warn("failed to delete evicted version", "session_id", s.id, "version_id", id, "err", err)
			}
		}
		s.notify(ctx, typ, version, evicted)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return committed.Clone(), changed, nil
}

func (s *Stack) notify(ctx context.Context, typ domain.MutationType, version domain.VersionID, evicted []domain.VersionID) {
	if len(evicted) > 0 && s.hooks.OnEvict != nil {
		s.hooks.OnEvict(ctx, evicted)
	}
	s.logger.Debug("stack mutated",
		"session_id", s.id,
		"op", string(typ),
		"version_id", version,
		"pointer", s.session.Pointer)
	if s.hooks.OnMutation != nil {
		s.hooks.OnMutation(ctx, &domain.MutationEvent{
			Timestamp: s.now(),
			Type:      typ,
			SessionID: s.id,
			Pointer:   s.session.Pointer,
			Version:   version,
			Evicted:   evicted,
		})
	}
}

// withLock holds the write lock, plus the distributed lock when configured,
// for the duration of fn.
func (s *Stack) withLock(ctx context.Context, fn func(context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, s.id, s.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", s.id,
					"err", err,
				)
			}
		}()

		// Another replica may have moved the session since we last looked.
		if err := s.refreshLocked(ctx); err != nil {
			return err
		}
	}

	return fn(ctx)
}
