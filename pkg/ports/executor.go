package ports

import (
	"context"

	"github.com/aretw0/strata/pkg/domain"
)

// ExecRequest describes one transform to perform.
type ExecRequest struct {
	SessionID string
	Input     domain.VersionID
	Operation domain.Operation
}

// Executor performs the pixel-level work of a transform. It reads Input from the
// session's version storage and stores its output under a new version ID.
//
// Implementations report domain.ErrUnsupportedOperation, domain.ErrInputNotFound and
// domain.ErrExecutorUnavailable (wrapped) for the corresponding failures.
type Executor interface {
	Execute(ctx context.Context, req ExecRequest) (domain.VersionID, error)
}
