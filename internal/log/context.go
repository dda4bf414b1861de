package log

import "context"

type ctxKey string

const (
	taskIDKey   ctxKey = "task_id"
	workerIDKey ctxKey = "worker_id"
)

// ContextWithTaskID stores the provided task ID in the context.
func ContextWithTaskID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, taskIDKey, id)
}

// ContextWithWorkerID stores the provided worker ID in the context.
func ContextWithWorkerID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, workerIDKey, id)
}

// TaskIDFromContext extracts the task ID from context if present.
func TaskIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(taskIDKey).(string); ok {
		return v
	}
	return ""
}

// WorkerIDFromContext extracts the worker ID from context if present.
func WorkerIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(workerIDKey).(string); ok {
		return v
	}
	return ""
}
