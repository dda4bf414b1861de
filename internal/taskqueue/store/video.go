package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hetangai/mediaqueue/internal/taskqueue/model"
)

const videoSelectColumns = `
	id, subtype, status, priority, depends_on, result_url, result_local_path, error,
	max_retries, retry_count, timeout_seconds, expire_at, locked_by, locked_at,
	started_at, created_at, updated_at, completed_at, project_id, processed,
	prompt, aspect_ratio, resolution, reference_images, duration, provider, output_dir,
	shot_id, shot_sequence
`

// InsertVideoTask inserts a new pending video task.
func (s *Store) InsertVideoTask(ctx context.Context, t *model.VideoTask) error {
	l := t.Life
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO video_task (
			id, subtype, status, priority, depends_on, result_url, result_local_path, error,
			max_retries, retry_count, timeout_seconds, expire_at, locked_by, locked_at,
			started_at, created_at, updated_at, completed_at, project_id, processed,
			prompt, aspect_ratio, resolution, reference_images, duration, provider, output_dir,
			shot_id, shot_sequence
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		l.ID, l.Subtype, string(l.Status), l.Priority, nullString(l.DependsOn),
		nullString(l.ResultURL), nullString(l.ResultLocalPath), nullString(l.Error),
		l.MaxRetries, l.RetryCount, l.TimeoutSeconds, unixOrNull(l.ExpireAt),
		nullString(l.LockedBy), unixOrNull(l.LockedAt), unixOrNull(l.StartedAt),
		unixOrNull(l.CreatedAt), unixOrNull(l.UpdatedAt), unixOrNull(l.CompletedAt),
		nullString(l.ProjectID), boolToInt(l.Processed),
		t.Prompt, t.AspectRatio, nullString(t.Resolution), nullString(t.ReferenceImages),
		t.Duration, t.Provider, nullString(t.OutputDir), nullString(t.ShotID), nullInt(t.ShotSequence),
	)
	if err != nil {
		if isBusy(err) {
			return ErrBusy
		}
		return fmt.Errorf("store: insert video_task: %w", err)
	}
	return nil
}

func scanVideoTask(row scanner) (*model.VideoTask, error) {
	var t model.VideoTask
	var status string
	var dependsOn, resultURL, resultPath, errMsg, lockedBy, projectID sql.NullString
	var resolution, refImages, outputDir, shotID sql.NullString
	var expireAt, lockedAt, startedAt, createdAt, updatedAt, completedAt sql.NullInt64
	var processed int
	var shotSeq sql.NullInt64

	if err := row.Scan(
		&t.Life.ID, &t.Life.Subtype, &status, &t.Life.Priority, &dependsOn, &resultURL, &resultPath, &errMsg,
		&t.Life.MaxRetries, &t.Life.RetryCount, &t.Life.TimeoutSeconds, &expireAt, &lockedBy, &lockedAt,
		&startedAt, &createdAt, &updatedAt, &completedAt, &projectID, &processed,
		&t.Prompt, &t.AspectRatio, &resolution, &refImages, &t.Duration, &t.Provider, &outputDir,
		&shotID, &shotSeq,
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
	return &t, nil
}

// GetVideoTask fetches a single video task, returning ErrNotFound if absent.
func (s *Store) GetVideoTask(ctx context.Context, id string) (*model.VideoTask, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+videoSelectColumns+" FROM video_task WHERE id = ?", id)
	t, err := scanVideoTask(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get video_task: %w", err)
	}
	return t, nil
}
