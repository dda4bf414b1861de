package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hetangai/mediaqueue/internal/taskqueue/model"
)

// CandidateRow is the slice of columns the executor needs to decide whether
// a pending task's dependencies are met, without paying for the full
// kind-specific payload.
type CandidateRow struct {
	ID        string
	DependsOn string
	ProjectID string
	Priority  int
	CreatedAt time.Time
}

// candidatePredicate is the base eligibility condition from the claim
// algorithm: a fresh pending task, or one whose lease has gone stale, and
// not yet past its expiry. It is reasserted verbatim (by id) in the CAS
// update, so a row that changed underneath a candidate scan is never
// claimed twice.
const candidatePredicate = `
	(status = 'pending' OR (status = 'running' AND locked_at < ?))
	AND (expire_at IS NULL OR expire_at > ?)
`

// ListCandidates returns leasable tasks for kind ordered so that rows whose
// project_id matches preferredProject sort first, then by priority
// ascending (lower number = higher priority), then by age — the
// project-preference ordering the claim algorithm applies before filtering
// on dependency state. preferredProject == "" means no project is
// preferred and ordering falls through to plain priority/age.
func (s *Store) ListCandidates(ctx context.Context, kind model.Kind, now time.Time, lockCutoff time.Time, preferredProject string, limit int) ([]CandidateRow, error) {
	table := tableFor(string(kind))
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, depends_on, project_id, priority, created_at
		FROM %s
		WHERE `+candidatePredicate+`
		ORDER BY (project_id IS NOT NULL AND project_id = ?) DESC, priority ASC, created_at ASC
		LIMIT ?`, table),
		lockCutoff.Unix(), now.Unix(), preferredProject, limit,
	)
	if err != nil {
		if isBusy(err) {
			return nil, ErrBusy
		}
		return nil, fmt.Errorf("store: list candidates %s: %w", table, err)
	}
	defer rows.Close()

	var out []CandidateRow
	for rows.Next() {
		var c CandidateRow
		var dependsOn, projectID sql.NullString
		var createdAt int64
		if err := rows.Scan(&c.ID, &dependsOn, &projectID, &c.Priority, &createdAt); err != nil {
			return nil, err
		}
		c.DependsOn = stringFromNull(dependsOn)
		c.ProjectID = stringFromNull(projectID)
		c.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// ClaimCandidate attempts the atomic lease on one candidate: the same
// eligibility predicate used to list it is reasserted by id in the UPDATE,
// so two workers racing on the same candidate never both win — exactly one
// sees RowsAffected() == 1. This single primitive covers both a fresh
// pending claim and preemption of a task whose previous lease went stale.
func (s *Store) ClaimCandidate(ctx context.Context, kind model.Kind, id, workerID string, now time.Time, lockCutoff time.Time) (bool, error) {
	table := tableFor(string(kind))
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET status = 'running', locked_by = ?, locked_at = ?, started_at = ?, updated_at = ?
		WHERE id = ? AND `+candidatePredicate, table),
		workerID, now.Unix(), now.Unix(), now.Unix(), id, lockCutoff.Unix(), now.Unix(),
	)
	if err != nil {
		if isBusy(err) {
			return false, ErrBusy
		}
		return false, fmt.Errorf("store: claim %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Heartbeat renews a held lease. It returns false (not an error) if the
// lease was lost — preempted by a sweeper or raced away — so the caller can
// abandon the in-flight generation instead of clobbering a new owner.
func (s *Store) Heartbeat(ctx context.Context, kind model.Kind, id, workerID string, now time.Time) (bool, error) {
	table := tableFor(string(kind))
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET locked_at = ?, updated_at = ?
		WHERE id = ? AND locked_by = ? AND status = 'running'`, table),
		now.Unix(), now.Unix(), id, workerID,
	)
	if err != nil {
		if isBusy(err) {
			return false, ErrBusy
		}
		return false, fmt.Errorf("store: heartbeat %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseSuccess marks a held task done, recording the produced result.
// resultDurationMs is only meaningful (and only applied) for kind == audio,
// the sole kind-specific result extra named by the specification.
func (s *Store) ReleaseSuccess(ctx context.Context, kind model.Kind, id, workerID, resultURL, resultLocalPath string, resultDurationMs *int, now time.Time) (bool, error) {
	table := tableFor(string(kind))
	query := fmt.Sprintf(`
		UPDATE %s SET status = 'success', result_url = ?, result_local_path = ?,
			error = NULL, completed_at = ?, updated_at = ?`, table)
	args := []any{nullString(resultURL), nullString(resultLocalPath), now.Unix(), now.Unix()}

	if kind == model.KindAudio && resultDurationMs != nil {
		query += ", result_duration_ms = ?"
		args = append(args, *resultDurationMs)
	}
	query += " WHERE id = ? AND locked_by = ? AND status = 'running'"
	args = append(args, id, workerID)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isBusy(err) {
			return false, ErrBusy
		}
		return false, fmt.Errorf("store: release success %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseFailure records a failed attempt and increments retry_count. If the
// incremented retry_count is still below max_retries it reopens the task as
// pending; otherwise it terminates the task as failed. retried reports which path
// was taken.
func (s *Store) ReleaseFailure(ctx context.Context, kind model.Kind, id, workerID, errMsg string, now time.Time) (retried bool, err error) {
	table := tableFor(string(kind))
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var retryCount, maxRetries int
	var status string
	row := tx.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT retry_count, max_retries, status FROM %s WHERE id = ? AND locked_by = ?", table),
		id, workerID,
	)
	if err := row.Scan(&retryCount, &maxRetries, &status); err != nil {
		if err == sql.ErrNoRows {
			return false, ErrNotFound
		}
		return false, err
	}
	if status != "running" {
		return false, nil
	}

	if retryCount+1 < maxRetries {
		_, err = tx.ExecContext(ctx, fmt.Sprintf(`
			UPDATE %s SET status = 'pending', retry_count = retry_count + 1, error = ?,
				locked_by = NULL, locked_at = NULL, updated_at = ?
			WHERE id = ? AND locked_by = ? AND status = 'running'`, table),
			nullString(errMsg), now.Unix(), id, workerID,
		)
		retried = true
	} else {
		_, err = tx.ExecContext(ctx, fmt.Sprintf(`
			UPDATE %s SET status = 'failed', retry_count = retry_count + 1, error = ?,
				completed_at = ?, updated_at = ?
			WHERE id = ? AND locked_by = ? AND status = 'running'`, table),
			nullString(errMsg), now.Unix(), now.Unix(), id, workerID,
		)
		retried = false
	}
	if err != nil {
		if isBusy(err) {
			return false, ErrBusy
		}
		return false, fmt.Errorf("store: release failure %s: %w", table, err)
	}
	return retried, tx.Commit()
}

// Pause moves a pending task to paused. No-op (false, nil) if it is no
// longer pending.
func (s *Store) Pause(ctx context.Context, kind model.Kind, id string, now time.Time) (bool, error) {
	return s.conditionalStatus(ctx, kind, id, "pending", "paused", now)
}

// Resume moves a paused task back to pending.
func (s *Store) Resume(ctx context.Context, kind model.Kind, id string, now time.Time) (bool, error) {
	return s.conditionalStatus(ctx, kind, id, "paused", "pending", now)
}

// Cancel moves a pending or paused task to cancelled. A task in any other
// status, running included, is left untouched and Cancel returns false.
func (s *Store) Cancel(ctx context.Context, kind model.Kind, id string, now time.Time) (bool, error) {
	table := tableFor(string(kind))
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET status = 'cancelled', completed_at = ?, updated_at = ?
		WHERE id = ? AND status IN ('pending', 'paused')`, table),
		now.Unix(), now.Unix(), id,
	)
	if err != nil {
		if isBusy(err) {
			return false, ErrBusy
		}
		return false, fmt.Errorf("store: cancel %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Retry resets a failed or cancelled task back to pending with a fresh
// retry budget, for operator-driven resubmission.
func (s *Store) Retry(ctx context.Context, kind model.Kind, id string, now time.Time) (bool, error) {
	table := tableFor(string(kind))
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET status = 'pending', retry_count = 0, error = NULL,
			completed_at = NULL, locked_by = NULL, locked_at = NULL, started_at = NULL, updated_at = ?
		WHERE id = ? AND status IN ('failed', 'cancelled')`, table),
		now.Unix(), id,
	)
	if err != nil {
		if isBusy(err) {
			return false, ErrBusy
		}
		return false, fmt.Errorf("store: retry %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) conditionalStatus(ctx context.Context, kind model.Kind, id, from, to string, now time.Time) (bool, error) {
	table := tableFor(string(kind))
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET status = ?, updated_at = ? WHERE id = ? AND status = ?`, table),
		to, now.Unix(), id, from,
	)
	if err != nil {
		if isBusy(err) {
			return false, ErrBusy
		}
		return false, fmt.Errorf("store: %s->%s %s: %w", from, to, table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// PauseAllPending and friends operate on the whole pending backlog of a
// kind, used by pause_all/resume_all/cancel_all_pending.
func (s *Store) PauseAllPending(ctx context.Context, kind model.Kind, now time.Time) (int64, error) {
	return s.bulkStatus(ctx, kind, "pending", "paused", now)
}

func (s *Store) ResumeAllPaused(ctx context.Context, kind model.Kind, now time.Time) (int64, error) {
	return s.bulkStatus(ctx, kind, "paused", "pending", now)
}

func (s *Store) CancelAllPending(ctx context.Context, kind model.Kind, now time.Time) (int64, error) {
	table := tableFor(string(kind))
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET status = 'cancelled', completed_at = ?, updated_at = ?
		WHERE status IN ('pending', 'paused')`, table),
		now.Unix(), now.Unix(),
	)
	if err != nil {
		if isBusy(err) {
			return 0, ErrBusy
		}
		return 0, fmt.Errorf("store: cancel all pending %s: %w", table, err)
	}
	return res.RowsAffected()
}

func (s *Store) bulkStatus(ctx context.Context, kind model.Kind, from, to string, now time.Time) (int64, error) {
	table := tableFor(string(kind))
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(
		"UPDATE %s SET status = ?, updated_at = ? WHERE status = ?", table),
		to, now.Unix(), from,
	)
	if err != nil {
		if isBusy(err) {
			return 0, ErrBusy
		}
		return 0, fmt.Errorf("store: %s->%s all %s: %w", from, to, table, err)
	}
	return res.RowsAffected()
}

// RecoveredTask describes one row the startup sweep touched, for logging.
type RecoveredTask struct {
	ID            string
	PreviousOwner string
	Requeued      bool // true: back to pending; false: terminated as failed
}

// RecoverStale scans for tasks left running by a process that died without
// releasing its lease (locked_at older than cutoff) and either reopens them
// as pending with retry_count incremented, or, once max_retries is
// exhausted, terminates them as failed — mirroring the reference
// implementation's startup recovery exactly.
func (s *Store) RecoverStale(ctx context.Context, kind model.Kind, cutoff, now time.Time) ([]RecoveredTask, error) {
	table := tableFor(string(kind))
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT id, locked_by, retry_count, max_retries FROM %s WHERE status = 'running' AND locked_at < ?", table),
		cutoff.Unix(),
	)
	if err != nil {
		if isBusy(err) {
			return nil, ErrBusy
		}
		return nil, fmt.Errorf("store: scan stale %s: %w", table, err)
	}

	type staleRow struct {
		id                     string
		lockedBy               sql.NullString
		retryCount, maxRetries int
	}
	var stale []staleRow
	for rows.Next() {
		var r staleRow
		if err := rows.Scan(&r.id, &r.lockedBy, &r.retryCount, &r.maxRetries); err != nil {
			rows.Close()
			return nil, err
		}
		stale = append(stale, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	var recovered []RecoveredTask
	for _, r := range stale {
		owner := stringFromNull(r.lockedBy)
		note := fmt.Sprintf("task recovered after stale (was running by %s)", owner)
		if r.retryCount < r.maxRetries {
			_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
				UPDATE %s SET status = 'pending', locked_by = NULL, locked_at = NULL,
					retry_count = retry_count + 1, error = ?, updated_at = ?
				WHERE id = ? AND status = 'running'`, table),
				note, now.Unix(), r.id,
			)
			recovered = append(recovered, RecoveredTask{ID: r.id, PreviousOwner: owner, Requeued: true})
		} else {
			failNote := fmt.Sprintf("task failed after max retries (was running by %s)", owner)
			_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
				UPDATE %s SET status = 'failed', locked_by = NULL, locked_at = NULL,
					error = ?, completed_at = ?, updated_at = ?
				WHERE id = ? AND status = 'running'`, table),
				failNote, now.Unix(), now.Unix(), r.id,
			)
			recovered = append(recovered, RecoveredTask{ID: r.id, PreviousOwner: owner, Requeued: false})
		}
		if err != nil {
			if isBusy(err) {
				return recovered, ErrBusy
			}
			return recovered, fmt.Errorf("store: recover stale %s: %w", table, err)
		}
	}
	return recovered, nil
}

// CleanupExpired cancels still-pending tasks whose expire_at deadline has
// passed. Only pending tasks are touched — a task that reached running
// before expiry is allowed to finish normally. Idempotent: a task already
// terminal is untouched regardless of expire_at, so running this twice in
// a row affects zero rows the second time.
func (s *Store) CleanupExpired(ctx context.Context, kind model.Kind, now time.Time) (int64, error) {
	table := tableFor(string(kind))
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET status = 'cancelled', error = 'Task expired', completed_at = ?, updated_at = ?
		WHERE status = 'pending' AND expire_at IS NOT NULL AND expire_at < ?`, table),
		now.Unix(), now.Unix(), now.Unix(),
	)
	if err != nil {
		if isBusy(err) {
			return 0, ErrBusy
		}
		return 0, fmt.Errorf("store: cleanup expired %s: %w", table, err)
	}
	return res.RowsAffected()
}

// CleanupCompleted deletes successful and cancelled tasks older than
// before, freeing space once their results have been collected by the
// reconciler. Failed tasks are left in place for diagnosis.
func (s *Store) CleanupCompleted(ctx context.Context, kind model.Kind, before time.Time) (int64, error) {
	table := tableFor(string(kind))
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM %s
		WHERE status IN ('success', 'cancelled') AND completed_at IS NOT NULL AND completed_at < ?`, table),
		before.Unix(),
	)
	if err != nil {
		if isBusy(err) {
			return 0, ErrBusy
		}
		return 0, fmt.Errorf("store: cleanup completed %s: %w", table, err)
	}
	return res.RowsAffected()
}

// MarkProcessed flags a terminal task as having been collected by the
// reconciler, so it is excluded from future unprocessed-task scans.
func (s *Store) MarkProcessed(ctx context.Context, kind model.Kind, id string, now time.Time) error {
	table := tableFor(string(kind))
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(
		"UPDATE %s SET processed = 1, updated_at = ? WHERE id = ?", table),
		now.Unix(), id,
	)
	if err != nil {
		if isBusy(err) {
			return ErrBusy
		}
		return fmt.Errorf("store: mark processed %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Summary counts tasks of a kind by status, for get_summary.
func (s *Store) Summary(ctx context.Context, kind model.Kind) (map[model.Status]int, error) {
	table := tableFor(string(kind))
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT status, COUNT(*) FROM %s GROUP BY status", table))
	if err != nil {
		if isBusy(err) {
			return nil, ErrBusy
		}
		return nil, fmt.Errorf("store: summary %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[model.Status]int, len(model.AllStatuses))
	for _, st := range model.AllStatuses {
		out[st] = 0
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		out[model.Status(status)] = count
	}
	return out, rows.Err()
}

// UnprocessedTasks lists terminal, unprocessed tasks of a kind in the given
// status, oldest completed first, for the reconciler handshake
// (get_unprocessed_completed_tasks / get_unprocessed_failed_tasks).
func (s *Store) UnprocessedTasks(ctx context.Context, kind model.Kind, status model.Status, limit int) ([]model.Task, error) {
	table := tableFor(string(kind))
	cols, err := s.selectColumns(kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT %s FROM %s WHERE status = ? AND processed = 0 ORDER BY completed_at ASC LIMIT ?", cols, table),
		string(status), limit,
	)
	if err != nil {
		if isBusy(err) {
			return nil, ErrBusy
		}
		return nil, fmt.Errorf("store: unprocessed %s %s: %w", status, table, err)
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		t, err := s.scanKind(kind, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListTasks returns tasks of a kind, optionally filtered by status, newest
// first, for the list_tasks operation. status == "" means no filter.
func (s *Store) ListTasks(ctx context.Context, kind model.Kind, status model.Status, limit, offset int) ([]model.Task, error) {
	table := tableFor(string(kind))
	cols, err := s.selectColumns(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s", cols, table)
	args := []any{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		if isBusy(err) {
			return nil, ErrBusy
		}
		return nil, fmt.Errorf("store: list %s: %w", table, err)
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		t, err := s.scanKind(kind, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Get fetches a single task of the given kind as the generic Task
// interface, for callers that don't need the concrete struct.
func (s *Store) Get(ctx context.Context, kind model.Kind, id string) (model.Task, error) {
	switch kind {
	case model.KindImage:
		return s.GetImageTask(ctx, id)
	case model.KindVideo:
		return s.GetVideoTask(ctx, id)
	case model.KindAudio:
		return s.GetAudioTask(ctx, id)
	default:
		return nil, fmt.Errorf("store: unknown kind %q", kind)
	}
}

func (s *Store) selectColumns(kind model.Kind) (string, error) {
	switch kind {
	case model.KindImage:
		return imageSelectColumns, nil
	case model.KindVideo:
		return videoSelectColumns, nil
	case model.KindAudio:
		return audioSelectColumns, nil
	default:
		return "", fmt.Errorf("store: unknown kind %q", kind)
	}
}

func (s *Store) scanKind(kind model.Kind, row scanner) (model.Task, error) {
	switch kind {
	case model.KindImage:
		return scanImageTask(row)
	case model.KindVideo:
		return scanVideoTask(row)
	case model.KindAudio:
		return scanAudioTask(row)
	default:
		return nil, fmt.Errorf("store: unknown kind %q", kind)
	}
}
