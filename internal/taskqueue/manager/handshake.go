package manager

import (
	"context"
	"time"

	"github.com/hetangai/mediaqueue/internal/taskqueue/model"
)

const defaultUnprocessedLimit = 50

// GetUnprocessedCompletedTasks returns successful tasks the reconciler has
// not yet collected, oldest completed first. kind == nil means every kind.
func (m *Manager) GetUnprocessedCompletedTasks(ctx context.Context, kind *model.Kind, limit int) ([]map[string]any, error) {
	return m.unprocessed(ctx, kind, model.StatusSuccess, limit)
}

// GetUnprocessedFailedTasks returns terminally failed tasks the reconciler
// has not yet collected, oldest completed first. kind == nil means every
// kind.
func (m *Manager) GetUnprocessedFailedTasks(ctx context.Context, kind *model.Kind, limit int) ([]map[string]any, error) {
	return m.unprocessed(ctx, kind, model.StatusFailed, limit)
}

func (m *Manager) unprocessed(ctx context.Context, kind *model.Kind, status model.Status, limit int) ([]map[string]any, error) {
	if limit <= 0 {
		limit = defaultUnprocessedLimit
	}
	kinds := model.Kinds
	if kind != nil {
		kinds = []model.Kind{*kind}
	}
	var out []map[string]any
	for _, k := range kinds {
		tasks, err := m.store.UnprocessedTasks(ctx, k, status, limit)
		if err != nil {
			return nil, err
		}
		out = append(out, toDicts(tasks)...)
	}
	return out, nil
}

// MarkTaskProcessed flags a terminal task as handled by the reconciler.
// Executors never call this — only the reconciler, via the Manager.
func (m *Manager) MarkTaskProcessed(ctx context.Context, kind model.Kind, id string) error {
	return m.store.MarkProcessed(ctx, kind, id, m.now())
}

// CleanupExpired cancels every still-pending task whose expire_at deadline
// has passed, across every kind. Safe to call repeatedly — the second call
// in a row affects zero rows.
func (m *Manager) CleanupExpired(ctx context.Context) (int64, error) {
	now := m.now()
	var total int64
	for _, k := range model.Kinds {
		n, err := m.store.CleanupExpired(ctx, k, now)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// CleanupCompleted deletes successful and cancelled tasks completed more
// than olderThan ago, across every kind.
func (m *Manager) CleanupCompleted(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := m.now().Add(-olderThan)
	var total int64
	for _, k := range model.Kinds {
		n, err := m.store.CleanupCompleted(ctx, k, cutoff)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
