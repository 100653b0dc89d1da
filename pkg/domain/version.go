package domain

import (
	"encoding/base64"
	"strings"

	"github.com/google/uuid"
)

// VersionID is an opaque, globally unique token naming one stored image array.
type VersionID string

// NewVersionID returns a 22 character, URL and filename safe identifier derived
// from a random UUID.
func NewVersionID() VersionID {
	id := uuid.New()
	s := base64.RawURLEncoding.EncodeToString(id[:])
	return VersionID(strings.ReplaceAll(s, "-", "0"))
}

// String implements fmt.Stringer.
func (v VersionID) String() string { return string(v) }

// Valid reports whether v can safely name a stored object: non-empty, and
// limited to letters, digits, '_' and '-' so it never escapes a storage directory.
func (v VersionID) Valid() bool {
	if v == "" || len(v) > 128 {
		return false
	}
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

// DefaultSessionID names the session used when a caller does not select one.
const DefaultSessionID = "default"

// ValidSessionID reports whether id is usable as a session key. The rules match
// VersionID.Valid since both end up in storage paths and keys.
func ValidSessionID(id string) bool {
	return VersionID(id).Valid()
}
