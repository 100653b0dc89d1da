package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
)

type loggingMiddleware struct {
	next   ports.SnapshotStore
	logger *slog.Logger
}

// NewLoggingMiddleware logs failed calls at error level and successful
// writes at debug level.
func NewLoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next ports.SnapshotStore) ports.SnapshotStore {
		return &loggingMiddleware{next: next, logger: logger}
	}
}

func (m *loggingMiddleware) log(op, sessionID string, start time.Time, err error) {
	if err != nil {
		m.logger.Error("snapshot store failed", "op", op, "session_id", sessionID, "duration", time.Since(start), "err", err)
		return
	}
	m.logger.Debug("snapshot store", "op", op, "session_id", sessionID, "duration", time.Since(start))
}

func (m *loggingMiddleware) Save(ctx context.Context, sessionID string, snap *domain.Snapshot) error {
	start := time.Now()
	err := m.next.Save(ctx, sessionID, snap)
	m.log("save", sessionID, start, err)
	return err
}

func (m *loggingMiddleware) Load(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	start := time.Now()
	snap, err := m.next.Load(ctx, sessionID)
	// A missing session is the normal first load.
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		m.log("load", sessionID, start, err)
	}
	return snap, err
}

func (m *loggingMiddleware) Delete(ctx context.Context, sessionID string) error {
	start := time.Now()
	err := m.next.Delete(ctx, sessionID)
	m.log("delete", sessionID, start, err)
	return err
}

func (m *loggingMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}
