package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/observability"
	"github.com/aretw0/strata/pkg/ports"
)

type metricsMiddleware struct {
	next    ports.SnapshotStore
	metrics *observability.Metrics
}

// NewMetricsMiddleware records the outcome and latency of every call.
// Loading a session that does not exist counts as a success.
func NewMetricsMiddleware(m *observability.Metrics) Middleware {
	return func(next ports.SnapshotStore) ports.SnapshotStore {
		return &metricsMiddleware{next: next, metrics: m}
	}
}

func (m *metricsMiddleware) Save(ctx context.Context, sessionID string, snap *domain.Snapshot) error {
	start := time.Now()
	err := m.next.Save(ctx, sessionID, snap)
	m.metrics.ObserveSnapshot("save", err, time.Since(start))
	return err
}

func (m *metricsMiddleware) Load(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	start := time.Now()
	snap, err := m.next.Load(ctx, sessionID)
	observed := err
	if errors.Is(err, domain.ErrSessionNotFound) {
		observed = nil
	}
	m.metrics.ObserveSnapshot("load", observed, time.Since(start))
	return snap, err
}

func (m *metricsMiddleware) Delete(ctx context.Context, sessionID string) error {
	start := time.Now()
	err := m.next.Delete(ctx, sessionID)
	m.metrics.ObserveSnapshot("delete", err, time.Since(start))
	return err
}

func (m *metricsMiddleware) List(ctx context.Context) ([]string, error) {
	start := time.Now()
	ids, err := m.next.List(ctx)
	m.metrics.ObserveSnapshot("list", err, time.Since(start))
	return ids, err
}
