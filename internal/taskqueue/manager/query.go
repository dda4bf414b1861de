package manager

import (
	"context"
	"errors"
	"sort"

	"github.com/hetangai/mediaqueue/internal/taskqueue/metrics"
	"github.com/hetangai/mediaqueue/internal/taskqueue/model"
	"github.com/hetangai/mediaqueue/internal/taskqueue/store"
)

// GetTask fetches a single task as its exported dictionary form, or nil if
// it does not exist.
func (m *Manager) GetTask(ctx context.Context, kind model.Kind, id string) (map[string]any, error) {
	t, err := m.store.Get(ctx, kind, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t.ToDict(), nil
}

// PollTasks resolves "kind:id" references and returns a flat map keyed by
// task id. Each reference is fetched with its own lookup; references are not
// grouped into one query per kind. Malformed, unknown-kind and missing
// references are left out of the map.
func (m *Manager) PollTasks(ctx context.Context, refs []string) (map[string]map[string]any, error) {
	out := make(map[string]map[string]any)
	for _, raw := range refs {
		ref, ok := model.ParseRef(raw)
		if !ok || !ref.Kind.Valid() {
			continue
		}
		t, err := m.store.Get(ctx, ref.Kind, ref.ID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[ref.ID] = t.ToDict()
	}
	return out, nil
}

// ListTasks returns tasks newest-first by created_at. When kind is nil,
// every kind is queried (limit rows each) and the results are merged,
// sorted, and sliced in memory — matching the reference implementation's
// multi-type list_tasks behavior.
func (m *Manager) ListTasks(ctx context.Context, kind *model.Kind, status model.Status, offset, limit int) ([]map[string]any, error) {
	if kind != nil {
		tasks, err := m.store.ListTasks(ctx, *kind, status, limit, offset)
		if err != nil {
			return nil, err
		}
		return toDicts(tasks), nil
	}

	var merged []map[string]any
	for _, k := range model.Kinds {
		tasks, err := m.store.ListTasks(ctx, k, status, limit, 0)
		if err != nil {
			return nil, err
		}
		merged = append(merged, toDicts(tasks)...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		ci, _ := merged[i]["created_at"].(string)
		cj, _ := merged[j]["created_at"].(string)
		return ci > cj
	})

	if offset >= len(merged) {
		return []map[string]any{}, nil
	}
	end := offset + limit
	if end > len(merged) || limit <= 0 {
		end = len(merged)
	}
	return merged[offset:end], nil
}

func toDicts(tasks []model.Task) []map[string]any {
	out := make([]map[string]any, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ToDict())
	}
	return out
}

// Summary is the task-count breakdown returned by GetSummary: per-kind and
// a merged "total" row, each keyed by status.
type Summary struct {
	ByKind map[model.Kind]map[model.Status]int
	Total  map[model.Status]int
}

// GetSummary counts tasks by kind and status, plus an aggregate total.
func (m *Manager) GetSummary(ctx context.Context) (Summary, error) {
	s := Summary{
		ByKind: make(map[model.Kind]map[model.Status]int, len(model.Kinds)),
		Total:  make(map[model.Status]int, len(model.AllStatuses)),
	}
	for _, st := range model.AllStatuses {
		s.Total[st] = 0
	}
	for _, k := range model.Kinds {
		counts, err := m.store.Summary(ctx, k)
		if err != nil {
			return Summary{}, err
		}
		s.ByKind[k] = counts
		for st, n := range counts {
			s.Total[st] += n
			metrics.SetQueueDepth(string(k), string(st), n)
		}
	}
	return s, nil
}
