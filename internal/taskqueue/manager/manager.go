// Package manager implements task creation, query, batch control, the
// expiration sweep, cleanup, and stale-lease recovery on top of the store
// package, whose conditional-update primitives also decide whether a failed
// or stale task is requeued or failed.
package manager

import (
	"context"
	"time"

	"github.com/hetangai/mediaqueue/internal/log"
	"github.com/hetangai/mediaqueue/internal/taskqueue/metrics"
	"github.com/hetangai/mediaqueue/internal/taskqueue/model"
	"github.com/hetangai/mediaqueue/internal/taskqueue/store"
)

// DefaultStaleTimeout is how old a running lease's locked_at must be,
// at construction time, before the startup sweep reclaims it.
const DefaultStaleTimeout = 120 * time.Second

// Manager is the application-facing entry point for task lifecycle
// operations. It is safe for concurrent use — every mutation delegates to
// the store's conditional primitives.
type Manager struct {
	store *store.Store
	now   func() time.Time

	staleTimeout time.Duration
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithStaleTimeout overrides the startup-recovery staleness threshold.
func WithStaleTimeout(d time.Duration) Option {
	return func(m *Manager) { m.staleTimeout = d }
}

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New opens a Manager over an already-open Store and runs the startup
// stale-lease recovery sweep before returning.
func New(ctx context.Context, st *store.Store, opts ...Option) (*Manager, error) {
	m := &Manager{
		store:        st,
		now:          time.Now,
		staleTimeout: DefaultStaleTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.recoverStaleTasks(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// recoverStaleTasks reopens (or terminates) running tasks abandoned by a
// worker process that exited without releasing its lease. It runs once,
// at Manager construction, across every kind.
func (m *Manager) recoverStaleTasks(ctx context.Context) error {
	now := m.now()
	cutoff := now.Add(-m.staleTimeout)
	logger := log.WithComponent("manager")

	for _, kind := range model.Kinds {
		recovered, err := m.store.RecoverStale(ctx, kind, cutoff, now)
		if err != nil {
			return err
		}
		for _, r := range recovered {
			event := "stale_task_recovered"
			newStatus := string(model.StatusPending)
			outcome := "requeued"
			if !r.Requeued {
				event = "stale_task_failed"
				newStatus = string(model.StatusFailed)
				outcome = "failed"
			}
			metrics.RecordStaleLeaseRecovered(string(kind), outcome)
			logger.Warn().
				Str(log.FieldEvent, event).
				Str(log.FieldKind, string(kind)).
				Str(log.FieldTaskID, r.ID).
				Str(log.FieldNewStatus, newStatus).
				Str("previous_owner", r.PreviousOwner).
				Msg("recovered abandoned lease at startup")
		}
	}
	return nil
}
