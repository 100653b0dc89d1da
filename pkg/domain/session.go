package domain

import "fmt"

// Session is the editing context of one user: a linear history of versions and
// the position of the active one.
//
// Session values are treated as immutable by the transition methods below; each
// returns a fresh copy so callers can persist the result before committing it.
type Session struct {
	// History is the chronological list of versions. It never has gaps.
	History []VersionID

	// Pointer is the index of the active version, or -1 when no image is active.
	Pointer int

	// OriginID is the version the session was seeded from.
	OriginID VersionID
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{History: []VersionID{}, Pointer: -1}
}

// Empty reports whether no image is active.
func (s *Session) Empty() bool { return s.Pointer < 0 }

// CanUndo reports whether there is an earlier version to move to.
func (s *Session) CanUndo() bool { return s.Pointer > 0 }

// CanRedo reports whether there is a later version to move to.
func (s *Session) CanRedo() bool { return s.Pointer < len(s.History)-1 }

// Current returns the active version.
func (s *Session) Current() (VersionID, bool) {
	if s.Pointer < 0 || s.Pointer >= len(s.History) {
		return "", false
	}
	return s.History[s.Pointer], true
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	return &Session{
		History:  append([]VersionID{}, s.History...),
		Pointer:  s.Pointer,
		OriginID: s.OriginID,
	}
}

// State returns the read-only view used by transports.
func (s *Session) State() StackState {
	return StackState{
		HasImage:     len(s.History) > 0,
		StackSize:    len(s.History),
		Pointer:      s.Pointer,
		IsDirty:      len(s.History) > 1,
		UndoPossible: s.CanUndo(),
		RedoPossible: s.CanRedo(),
	}
}

// Validate checks the structural invariants of the session.
func (s *Session) Validate() error {
	if s.Pointer < -1 || s.Pointer >= len(s.History) {
		return fmt.Errorf("%w: pointer %d out of range for history of %d", ErrStorageCorruption, s.Pointer, len(s.History))
	}
	if s.Pointer == -1 && len(s.History) > 0 {
		return fmt.Errorf("%w: no active version but history has %d entries", ErrStorageCorruption, len(s.History))
	}
	if s.Pointer >= 0 && s.OriginID == "" {
		return fmt.Errorf("%w: active session without origin", ErrStorageCorruption)
	}
	seen := make(map[VersionID]struct{}, len(s.History))
	for i, id := range s.History {
		if id == "" {
			return fmt.Errorf("%w: empty version id at %d", ErrStorageCorruption, i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: version %s appears twice in history", ErrStorageCorruption, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// WithImage starts a new one-element history seeded from id.
func (s *Session) WithImage(id VersionID) *Session {
	return &Session{History: []VersionID{id}, Pointer: 0, OriginID: id}
}

// WithVersion appends id after the active version, discarding every later entry.
func (s *Session) WithVersion(id VersionID) (*Session, error) {
	if s.Pointer < -1 {
		return nil, fmt.Errorf("%w: pointer %d", ErrStorageCorruption, s.Pointer)
	}
	next := s.Clone()
	next.Pointer++
	next.History = next.History[:next.Pointer]
	for _, existing := range next.History {
		if existing == id {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateVersion, id)
		}
	}
	next.History = append(next.History, id)
	if next.OriginID == "" {
		next.OriginID = id
	}
	if next.Pointer != len(next.History)-1 {
		return nil, fmt.Errorf("%w: pointer %d after append to history of %d", ErrStorageCorruption, next.Pointer, len(next.History))
	}
	return next, nil
}

// Undone moves the pointer back one step. ok is false at the boundary.
func (s *Session) Undone() (next *Session, ok bool) {
	if !s.CanUndo() {
		return s, false
	}
	next = s.Clone()
	next.Pointer--
	return next, true
}

// Redone moves the pointer forward one step. ok is false at the boundary.
func (s *Session) Redone() (next *Session, ok bool) {
	if !s.CanRedo() {
		return s, false
	}
	next = s.Clone()
	next.Pointer++
	return next, true
}

// Evicted returns the versions referenced by old that next no longer references.
func Evicted(old, next *Session) []VersionID {
	keep := make(map[VersionID]struct{}, len(next.History))
	for _, id := range next.History {
		keep[id] = struct{}{}
	}
	var gone []VersionID
	for _, id := range old.History {
		if _, ok := keep[id]; !ok {
			gone = append(gone, id)
		}
	}
	return gone
}

// StackState is the read-only view of a session exposed to clients.
type StackState struct {
	HasImage     bool `json:"has_image"`
	StackSize    int  `json:"stack_size"`
	Pointer      int  `json:"current_pointer"`
	IsDirty      bool `json:"is_dirty"`
	UndoPossible bool `json:"undo_possible"`
	RedoPossible bool `json:"redo_possible"`
}
