package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/aretw0/strata/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Dial returns a client for the server at addr. The client is shared by the
// snapshot store and the locker; the caller closes it.
func Dial(addr, password string, db int) *backend.Client {
	return backend.NewClient(&backend.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// SnapshotStore implements ports.SnapshotStore on Redis.
//
// Each snapshot is a JSON string under <prefix>snapshot:<id>. The sorted set
// <prefix>index scores every session by its expiry in unix milliseconds, or
// +inf when snapshots do not expire.
type SnapshotStore struct {
	client backend.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// Option configures a SnapshotStore.
type Option func(*SnapshotStore)

// WithTTL expires snapshots ttl after their last save. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *SnapshotStore) { s.ttl = ttl }
}

// WithPrefix namespaces every key.
func WithPrefix(prefix string) Option {
	return func(s *SnapshotStore) { s.prefix = prefix }
}

// NewSnapshotStore stores snapshots through client.
func NewSnapshotStore(client backend.UniversalClient, opts ...Option) *SnapshotStore {
	s := &SnapshotStore{client: client, prefix: "strata:", now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SnapshotStore) snapshotKey(sessionID string) string {
	return s.prefix + "snapshot:" + sessionID
}

func (s *SnapshotStore) indexKey() string { return s.prefix + "index" }

func (s *SnapshotStore) expiry() float64 {
	if s.ttl <= 0 {
		return math.Inf(1)
	}
	return float64(s.now().Add(s.ttl).UnixMilli())
}

// Save writes the snapshot and its index entry in one MULTI/EXEC.
func (s *SnapshotStore) Save(ctx context.Context, sessionID string, snap *domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot of %s: %w", sessionID, err)
	}

	_, err = s.client.TxPipelined(ctx, func(tx backend.Pipeliner) error {
		tx.Set(ctx, s.snapshotKey(sessionID), data, s.ttl)
		tx.ZAdd(ctx, s.indexKey(), backend.Z{Score: s.expiry(), Member: sessionID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save %s: %w", sessionID, err)
	}
	return nil
}

// Load returns domain.ErrSessionNotFound for missing or expired sessions.
func (s *SnapshotStore) Load(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	data, err := s.client.Get(ctx, s.snapshotKey(sessionID)).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis load %s: %w", sessionID, err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: snapshot of %s: %v", domain.ErrStorageCorruption, sessionID, err)
	}
	return &snap, nil
}

func (s *SnapshotStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.client.TxPipelined(ctx, func(tx backend.Pipeliner) error {
		tx.Del(ctx, s.snapshotKey(sessionID))
		tx.ZRem(ctx, s.indexKey(), sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete %s: %w", sessionID, err)
	}
	return nil
}

// List returns the sessions whose snapshots have not expired. Expired index
// entries are dropped on the way.
func (s *SnapshotStore) List(ctx context.Context) ([]string, error) {
	now := strconv.FormatInt(s.now().UnixMilli(), 10)

	if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", now).Err(); err != nil {
		return nil, fmt.Errorf("redis prune index: %w", err)
	}
	ids, err := s.client.ZRangeByScore(ctx, s.indexKey(), &backend.ZRangeBy{Min: "(" + now, Max: "+inf"}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list sessions: %w", err)
	}
	return ids, nil
}
