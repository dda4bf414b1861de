package manager

import (
	"context"
	"time"

	"github.com/hetangai/mediaqueue/internal/taskqueue/model"
)

// Pause moves a pending task to paused. Returns false if the task was not
// pending (no-op, not an error).
func (m *Manager) Pause(ctx context.Context, kind model.Kind, id string) (bool, error) {
	return m.store.Pause(ctx, kind, id, m.now())
}

// Resume moves a paused task back to pending.
func (m *Manager) Resume(ctx context.Context, kind model.Kind, id string) (bool, error) {
	return m.store.Resume(ctx, kind, id, m.now())
}

// Cancel moves a pending or paused task to cancelled. A running task is
// left untouched — cancel never interrupts in-flight execution.
func (m *Manager) Cancel(ctx context.Context, kind model.Kind, id string) (bool, error) {
	return m.store.Cancel(ctx, kind, id, m.now())
}

// Retry resets a failed or cancelled task to pending with a fresh retry
// budget, for operator-driven resubmission.
func (m *Manager) Retry(ctx context.Context, kind model.Kind, id string) (bool, error) {
	return m.store.Retry(ctx, kind, id, m.now())
}

// PauseAll pauses every pending task. kind == nil means every kind.
func (m *Manager) PauseAll(ctx context.Context, kind *model.Kind) (int64, error) {
	return m.forEachKind(ctx, kind, m.store.PauseAllPending)
}

// ResumeAll resumes every paused task. kind == nil means every kind.
func (m *Manager) ResumeAll(ctx context.Context, kind *model.Kind) (int64, error) {
	return m.forEachKind(ctx, kind, m.store.ResumeAllPaused)
}

// CancelAllPending cancels every pending or paused task. kind == nil means
// every kind.
func (m *Manager) CancelAllPending(ctx context.Context, kind *model.Kind) (int64, error) {
	return m.forEachKind(ctx, kind, m.store.CancelAllPending)
}

func (m *Manager) forEachKind(ctx context.Context, kind *model.Kind, op func(context.Context, model.Kind, time.Time) (int64, error)) (int64, error) {
	now := m.now()
	kinds := model.Kinds
	if kind != nil {
		kinds = []model.Kind{*kind}
	}
	var total int64
	for _, k := range kinds {
		n, err := op(ctx, k, now)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
