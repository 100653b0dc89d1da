package domain

import "errors"

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrVersionNotFound is returned when a version ID has no stored array.
var ErrVersionNotFound = errors.New("version not found")

// ErrNoActiveImage is returned when an operation needs an image but the session is empty.
var ErrNoActiveImage = errors.New("no active image")

// ErrMissingOperation is returned when a transform request does not name an operation.
var ErrMissingOperation = errors.New("missing transform operation")

// ErrInvalidParameters is returned when an operation's parameters fail validation.
var ErrInvalidParameters = errors.New("invalid operation parameters")

// ErrUnsupportedOperation is returned when the executor does not implement the operation.
var ErrUnsupportedOperation = errors.New("unsupported operation")

// ErrInputNotFound is returned when the executor cannot find the input version.
var ErrInputNotFound = errors.New("input version not found by executor")

// ErrExecutorUnavailable is returned when the executor is unreachable or timed out.
var ErrExecutorUnavailable = errors.New("operation executor unavailable")

// ErrInvalidExecutorResponse is returned when the executor reports success without an output.
var ErrInvalidExecutorResponse = errors.New("invalid response from operation executor")

// ErrStaleParent is returned when the active version changed while a transform was running.
var ErrStaleParent = errors.New("active version changed during transform")

// ErrDuplicateVersion is returned when a version is appended that history already holds.
var ErrDuplicateVersion = errors.New("version already in history")

// ErrPersistence is returned when a mutation could not be persisted. The mutation did not happen.
var ErrPersistence = errors.New("session persistence failed")

// ErrStorageCorruption is returned when persisted state violates the session invariants.
var ErrStorageCorruption = errors.New("session storage corrupted")
