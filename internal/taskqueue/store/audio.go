package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hetangai/mediaqueue/internal/taskqueue/model"
)

const audioSelectColumns = `
	id, subtype, status, priority, depends_on, result_url, result_local_path, error,
	max_retries, retry_count, timeout_seconds, expire_at, locked_by, locked_at,
	started_at, created_at, updated_at, completed_at, project_id, processed,
	text, voice_ref, emotion, emotion_intensity, speed, provider, output_dir,
	result_duration_ms, shot_id, shot_sequence, dialogue_index
`

// InsertAudioTask inserts a new pending audio (text-to-speech) task.
func (s *Store) InsertAudioTask(ctx context.Context, t *model.AudioTask) error {
	l := t.Life
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audio_task (
			id, subtype, status, priority, depends_on, result_url, result_local_path, error,
			max_retries, retry_count, timeout_seconds, expire_at, locked_by, locked_at,
			started_at, created_at, updated_at, completed_at, project_id, processed,
			text, voice_ref, emotion, emotion_intensity, speed, provider, output_dir,
			result_duration_ms, shot_id, shot_sequence, dialogue_index
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		l.ID, l.Subtype, string(l.Status), l.Priority, nullString(l.DependsOn),
		nullString(l.ResultURL), nullString(l.ResultLocalPath), nullString(l.Error),
		l.MaxRetries, l.RetryCount, l.TimeoutSeconds, unixOrNull(l.ExpireAt),
		nullString(l.LockedBy), unixOrNull(l.LockedAt), unixOrNull(l.StartedAt),
		unixOrNull(l.CreatedAt), unixOrNull(l.UpdatedAt), unixOrNull(l.CompletedAt),
		nullString(l.ProjectID), boolToInt(l.Processed),
		t.Text, nullString(t.VoiceRef), nullString(t.Emotion), nullString(t.EmotionIntensity),
		t.Speed, t.Provider, nullString(t.OutputDir), nullInt(t.ResultDurationMs),
		nullString(t.ShotID), nullInt(t.ShotSequence), nullInt(t.DialogueIndex),
	)
	if err != nil {
		if isBusy(err) {
			return ErrBusy
		}
		return fmt.Errorf("store: insert audio_task: %w", err)
	}
	return nil
}

func scanAudioTask(row scanner) (*model.AudioTask, error) {
	var t model.AudioTask
	var status string
	var dependsOn, resultURL, resultPath, errMsg, lockedBy, projectID sql.NullString
	var voiceRef, emotion, emotionIntensity, outputDir, shotID sql.NullString
	var expireAt, lockedAt, startedAt, createdAt, updatedAt, completedAt sql.NullInt64
	var processed int
	var resultDurationMs, shotSeq, dialogueIndex sql.NullInt64

	if err := row.Scan(
		&t.Life.ID, &t.Life.Subtype, &status, &t.Life.Priority, &dependsOn, &resultURL, &resultPath, &errMsg,
		&t.Life.MaxRetries, &t.Life.RetryCount, &t.Life.TimeoutSeconds, &expireAt, &lockedBy, &lockedAt,
		&startedAt, &createdAt, &updatedAt, &completedAt, &projectID, &processed,
		&t.Text, &voiceRef, &emotion, &emotionIntensity, &t.Speed, &t.Provider, &outputDir,
		&resultDurationMs, &shotID, &shotSeq, &dialogueIndex,
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
	t.VoiceRef = stringFromNull(voiceRef)
	t.Emotion = stringFromNull(emotion)
	t.EmotionIntensity = stringFromNull(emotionIntensity)
	t.OutputDir = stringFromNull(outputDir)
	t.ResultDurationMs = intFromNull(resultDurationMs)
	t.ShotID = stringFromNull(shotID)
	t.ShotSequence = intFromNull(shotSeq)
	t.DialogueIndex = intFromNull(dialogueIndex)
	return &t, nil
}

// GetAudioTask fetches a single audio task, returning ErrNotFound if absent.
func (s *Store) GetAudioTask(ctx context.Context, id string) (*model.AudioTask, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+audioSelectColumns+" FROM audio_task WHERE id = ?", id)
	t, err := scanAudioTask(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get audio_task: %w", err)
	}
	return t, nil
}
