package log

// Canonical field name constants for structured logging.
const (
	FieldTaskID    = "task_id"
	FieldWorkerID  = "worker_id"
	FieldKind      = "kind"
	FieldComponent = "component"
	FieldEvent     = "event"
	FieldOldStatus = "old_status"
	FieldNewStatus = "new_status"
	FieldRetry     = "retry_count"
	FieldProvider  = "provider"
)
