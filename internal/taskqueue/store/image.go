package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hetangai/mediaqueue/internal/taskqueue/model"
)

const imageSelectColumns = `
	id, subtype, status, priority, depends_on, result_url, result_local_path, error,
	max_retries, retry_count, timeout_seconds, expire_at, locked_by, locked_at,
	started_at, created_at, updated_at, completed_at, project_id, processed,
	prompt, aspect_ratio, resolution, reference_images, provider, output_dir,
	shot_id, shot_sequence, slot
`

// InsertImageTask inserts a new pending image task.
func (s *Store) InsertImageTask(ctx context.Context, t *model.ImageTask) error {
	l := t.Life
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO image_task (
			id, subtype, status, priority, depends_on, result_url, result_local_path, error,
			max_retries, retry_count, timeout_seconds, expire_at, locked_by, locked_at,
			started_at, created_at, updated_at, completed_at, project_id, processed,
			prompt, aspect_ratio, resolution, reference_images, provider, output_dir,
			shot_id, shot_sequence, slot
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		l.ID, l.Subtype, string(l.Status), l.Priority, nullString(l.DependsOn),
		nullString(l.ResultURL), nullString(l.ResultLocalPath), nullString(l.Error),
		l.MaxRetries, l.RetryCount, l.TimeoutSeconds, unixOrNull(l.ExpireAt),
		nullString(l.LockedBy), unixOrNull(l.LockedAt), unixOrNull(l.StartedAt),
		unixOrNull(l.CreatedAt), unixOrNull(l.UpdatedAt), unixOrNull(l.CompletedAt),
		nullString(l.ProjectID), boolToInt(l.Processed),
		t.Prompt, t.AspectRatio, nullString(t.Resolution), nullString(t.ReferenceImages),
		t.Provider, nullString(t.OutputDir), nullString(t.ShotID), nullInt(t.ShotSequence), nullInt(t.Slot),
	)
	if err != nil {
		if isBusy(err) {
			return ErrBusy
		}
		return fmt.Errorf("store: insert image_task: %w", err)
	}
	return nil
}

func scanImageTask(row scanner) (*model.ImageTask, error) {
	var t model.ImageTask
	var status string
	var dependsOn, resultURL, resultPath, errMsg, lockedBy, projectID sql.NullString
	var resolution, refImages, outputDir, shotID sql.NullString
	var expireAt, lockedAt, startedAt, createdAt, updatedAt, completedAt sql.NullInt64
	var processed int
	var shotSeq, slot sql.NullInt64

	if err := row.Scan(
		&t.Life.ID, &t.Life.Subtype, &status, &t.Life.Priority, &dependsOn, &resultURL, &resultPath, &errMsg,
		&t.Life.MaxRetries, &t.Life.RetryCount, &t.Life.TimeoutSeconds, &expireAt, &lockedBy, &lockedAt,
		&startedAt, &createdAt, &updatedAt, &completedAt, &projectID, &processed,
		&t.Prompt, &t.AspectRatio, &resolution, &refImages, &t.Provider, &outputDir,
		&shotID, &shotSeq, &slot,
	); err != nil {
		return nil, err
	}

	t.Life.Status = model.Status(status)
	t.Life.DependsOn = stringFromNull(dependsOn)
	t.Life.ResultURL = stringFromNull(resultURL)
	t.Life.ResultLocalPath = stringFromNull(resultPath)
	t.Life.Error = stringFromNull(errMsg)
	t.Life.ExpireAt = timeFromUnix(expireAt)
	t.Life.LockedBy = stringFromNull(lockedBy)
	t.Life.LockedAt = timeFromUnix(lockedAt)
	t.Life.StartedAt = timeFromUnix(startedAt)
	t.Life.CreatedAt = timeFromUnix(createdAt)
	t.Life.UpdatedAt = timeFromUnix(updatedAt)
	t.Life.CompletedAt = timeFromUnix(completedAt)
	t.Life.ProjectID = stringFromNull(projectID)
	t.Life.Processed = processed != 0
	t.Resolution = stringFromNull(resolution)
	t.ReferenceImages = stringFromNull(refImages)
	t.OutputDir = stringFromNull(outputDir)
	t.ShotID = stringFromNull(shotID)
	t.ShotSequence = intFromNull(shotSeq)
	t.Slot = intFromNull(slot)
	return &t, nil
}

// GetImageTask fetches a single image task, returning ErrNotFound if absent.
func (s *Store) GetImageTask(ctx context.Context, id string) (*model.ImageTask, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+imageSelectColumns+" FROM image_task WHERE id = ?", id)
	t, err := scanImageTask(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get image_task: %w", err)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// scanner abstracts *sql.Row and *sql.Rows so scan functions work for both
// single-row gets and multi-row candidate scans.
type scanner interface {
	Scan(dest ...any) error
}
