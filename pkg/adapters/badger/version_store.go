package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/aretw0/strata/pkg/raster"
	"github.com/dgraph-io/badger/v4"
)

// VersionStore implements ports.VersionStore for one session of a shared DB.
// Keys are "v/<session>/<version>"; values are raster-encoded arrays.
type VersionStore struct {
	db     *DB
	prefix []byte
}

// NewVersionStore returns the store of sessionID inside db.
func NewVersionStore(db *DB, sessionID string) (*VersionStore, error) {
	if !domain.ValidSessionID(sessionID) {
		return nil, fmt.Errorf("invalid session id %q", sessionID)
	}
	return &VersionStore{db: db, prefix: []byte("v/" + sessionID + "/")}, nil
}

// NewVersionStoreFactory hands out per-session stores sharing db.
func NewVersionStoreFactory(db *DB) ports.VersionStoreFactory {
	return func(sessionID string) (ports.VersionStore, error) {
		return NewVersionStore(db, sessionID)
	}
}

func (s *VersionStore) key(id domain.VersionID) []byte {
	k := make([]byte, 0, len(s.prefix)+len(id))
	k = append(k, s.prefix...)
	return append(k, id...)
}

// Store writes the encoded array under id.
func (s *VersionStore) Store(ctx context.Context, id domain.VersionID, a *raster.Array) error {
	if !id.Valid() {
		return fmt.Errorf("invalid version id %q", id)
	}
	data, err := raster.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode version %s: %w", id, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key(id), data)
	})
	if err != nil {
		return fmt.Errorf("failed to write version %s: %w", id, err)
	}
	return nil
}

// Load reads and decodes the array stored under id.
func (s *VersionStore) Load(ctx context.Context, id domain.VersionID) (*raster.Array, error) {
	var a *raster.Array
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			decoded, err := raster.Unmarshal(val)
			if err != nil {
				return err
			}
			a = decoded
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrVersionNotFound, id)
		}
		return nil, fmt.Errorf("failed to read version %s: %w", id, err)
	}
	return a, nil
}

// Delete removes id. Deleting a missing key is not an error.
func (s *VersionStore) Delete(ctx context.Context, id domain.VersionID) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.key(id))
	})
	if err != nil {
		return fmt.Errorf("failed to delete version %s: %w", id, err)
	}
	return nil
}

// Purge drops every version of the session.
func (s *VersionStore) Purge(ctx context.Context) error {
	if err := s.db.DropPrefix(s.prefix); err != nil {
		return fmt.Errorf("failed to purge versions: %w", err)
	}
	return nil
}

// IDs lists the versions currently stored for the session.
func (s *VersionStore) IDs(ctx context.Context) ([]domain.VersionID, error) {
	ids := []domain.VersionID{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(s.prefix); it.ValidForPrefix(s.prefix); it.Next() {
			ids = append(ids, domain.VersionID(it.Item().Key()[len(s.prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	return ids, nil
}
