package domain

import (
	"fmt"
	"time"
)

// SnapshotSchemaVersion is the schema written by this build.
const SnapshotSchemaVersion = 1

// Snapshot is the persisted record of a Session. It is decoupled from the
// in-memory representation so the format can evolve independently.
type Snapshot struct {
	SchemaVersion int         `json:"schema_version"`
	SessionID     string      `json:"session_id"`
	History       []VersionID `json:"history"`
	Pointer       int         `json:"pointer"`
	OriginID      VersionID   `json:"origin_id,omitempty"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// NewSnapshot captures s for persistence.
func NewSnapshot(sessionID string, s *Session, now time.Time) *Snapshot {
	return &Snapshot{
		SchemaVersion: SnapshotSchemaVersion,
		SessionID:     sessionID,
		History:       append([]VersionID{}, s.History...),
		Pointer:       s.Pointer,
		OriginID:      s.OriginID,
		UpdatedAt:     now.UTC(),
	}
}

// Session restores the session held by the snapshot. Unknown schema versions
// and invariant violations are reported as ErrStorageCorruption, never repaired.
func (snap *Snapshot) Session() (*Session, error) {
	if snap.SchemaVersion != SnapshotSchemaVersion {
		return nil, fmt.Errorf("%w: unsupported snapshot schema version %d", ErrStorageCorruption, snap.SchemaVersion)
	}
	s := &Session{
		History:  append([]VersionID{}, snap.History...),
		Pointer:  snap.Pointer,
		OriginID: snap.OriginID,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Clone returns a deep copy.
func (snap *Snapshot) Clone() *Snapshot {
	c := *snap
	c.History = append([]VersionID{}, snap.History...)
	return &c
}
