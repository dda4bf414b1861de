package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hetangai/mediaqueue/internal/taskqueue/model"
	"github.com/hetangai/mediaqueue/internal/taskqueue/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue.db")
	s, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func insertPendingImage(t *testing.T, s *store.Store, id string, priority int, createdAt time.Time) {
	t.Helper()
	task := &model.ImageTask{
		Life: model.Lifecycle{
			ID:             id,
			Subtype:        "text2image",
			Status:         model.StatusPending,
			Priority:       priority,
			MaxRetries:     3,
			TimeoutSeconds: 300,
			CreatedAt:      createdAt,
			UpdatedAt:      createdAt,
		},
		Prompt:      "a red bicycle",
		AspectRatio: "1:1",
		Provider:    "mock",
	}
	require.NoError(t, s.InsertImageTask(context.Background(), task))
}

func TestInsertAndGetImageTask(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	insertPendingImage(t, s, "img-1", 100, now)

	got, err := s.GetImageTask(context.Background(), "img-1")
	require.NoError(t, err)
	require.Equal(t, "img-1", got.Life.ID)
	require.Equal(t, model.StatusPending, got.Life.Status)
	require.Equal(t, "a red bicycle", got.Prompt)
}

func TestGetImageTaskNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetImageTask(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestListCandidatesOrdersByPriorityThenAge(t *testing.T) {
	s := openTestStore(t)
	base := time.Now().UTC().Truncate(time.Second)
	insertPendingImage(t, s, "low-priority-old", 200, base)
	insertPendingImage(t, s, "high-priority-new", 10, base.Add(time.Minute))
	insertPendingImage(t, s, "high-priority-old", 10, base)

	now := base.Add(2 * time.Minute)
	cutoff := now.Add(-time.Minute)
	candidates, err := s.ListCandidates(context.Background(), model.KindImage, now, cutoff, "", 10)
	require.NoError(t, err)
	require.Len(t, candidates, 3)

	require.Equal(t, "high-priority-old", candidates[0].ID)
	require.Equal(t, "high-priority-new", candidates[1].ID)
	require.Equal(t, "low-priority-old", candidates[2].ID)
}

func TestClaimCandidateIsExclusive(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()
	insertPendingImage(t, s, "img-1", 100, now)
	cutoff := now.Add(-time.Minute)

	ok, err := s.ClaimCandidate(context.Background(), model.KindImage, "img-1", "worker-a", now, cutoff)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.ClaimCandidate(context.Background(), model.KindImage, "img-1", "worker-b", now, cutoff)
	require.NoError(t, err)
	require.False(t, ok, "a second worker must not be able to claim an already-running task")
}

func TestStaleLeaseIsReclaimableByClaim(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()
	insertPendingImage(t, s, "img-1", 100, now.Add(-time.Hour))

	firstLockTime := now.Add(-time.Hour)
	ok, err := s.ClaimCandidate(context.Background(), model.KindImage, "img-1", "worker-a", firstLockTime, firstLockTime.Add(-time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	// worker-a's lease is now stale relative to "now"; a stale-aware claim
	// from worker-b must succeed.
	cutoff := now.Add(-30 * time.Second)
	ok, err = s.ClaimCandidate(context.Background(), model.KindImage, "img-1", "worker-b", now, cutoff)
	require.NoError(t, err)
	require.True(t, ok, "a stale running lease must be preemptable through the normal claim path")

	got, err := s.GetImageTask(context.Background(), "img-1")
	require.NoError(t, err)
	require.Equal(t, "worker-b", got.Life.LockedBy)
}

func TestHeartbeatRequiresOwnership(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()
	insertPendingImage(t, s, "img-1", 100, now)
	cutoff := now.Add(-time.Minute)
	_, err := s.ClaimCandidate(context.Background(), model.KindImage, "img-1", "worker-a", now, cutoff)
	require.NoError(t, err)

	ok, err := s.Heartbeat(context.Background(), model.KindImage, "img-1", "worker-a", now.Add(time.Second))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Heartbeat(context.Background(), model.KindImage, "img-1", "worker-b", now.Add(time.Second))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReleaseSuccessAppliesAudioExtras(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()
	task := &model.AudioTask{
		Life: model.Lifecycle{
			ID:             "aud-1",
			Subtype:        "text2speech",
			Status:         model.StatusPending,
			Priority:       100,
			MaxRetries:     3,
			TimeoutSeconds: 120,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		Text:  "hello there",
		Speed: 1.0,
	}
	require.NoError(t, s.InsertAudioTask(context.Background(), task))

	cutoff := now.Add(-time.Minute)
	ok, err := s.ClaimCandidate(context.Background(), model.KindAudio, "aud-1", "worker-a", now, cutoff)
	require.NoError(t, err)
	require.True(t, ok)

	durationMs := 4200
	ok, err = s.ReleaseSuccess(context.Background(), model.KindAudio, "aud-1", "worker-a", "", "/tmp/aud-1.wav", &durationMs, now)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.GetAudioTask(context.Background(), "aud-1")
	require.NoError(t, err)
	require.Equal(t, model.StatusSuccess, got.Life.Status)
	require.Equal(t, 4200, got.ResultDurationMs)
}

func TestReleaseFailureRetriesUntilMaxThenFails(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()
	task := &model.ImageTask{
		Life: model.Lifecycle{
			ID:             "img-1",
			Subtype:        "text2image",
			Status:         model.StatusPending,
			Priority:       100,
			MaxRetries:     2,
			TimeoutSeconds: 300,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		Prompt: "x",
	}
	require.NoError(t, s.InsertImageTask(context.Background(), task))
	cutoff := now.Add(-time.Minute)

	for i := 0; i < 2; i++ {
		ok, err := s.ClaimCandidate(context.Background(), model.KindImage, "img-1", "worker-a", now, cutoff)
		require.NoError(t, err)
		require.True(t, ok)

		retried, err := s.ReleaseFailure(context.Background(), model.KindImage, "img-1", "worker-a", "boom", now)
		require.NoError(t, err)
		if i == 0 {
			require.True(t, retried)
		} else {
			require.False(t, retried)
		}
	}

	got, err := s.GetImageTask(context.Background(), "img-1")
	require.NoError(t, err)
	require.Equal(t, model.StatusFailed, got.Life.Status)
	require.Equal(t, 2, got.Life.RetryCount)
}

func TestCleanupExpiredOnlyAffectsPending(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()
	insertPendingImage(t, s, "img-1", 100, now.Add(-time.Hour))

	// claim img-1 (which has no expiry) so that it is running
	cutoff := now.Add(-time.Minute)
	ok, err := s.ClaimCandidate(context.Background(), model.KindImage, "img-1", "worker-a", now.Add(-time.Hour), cutoff)
	require.NoError(t, err)
	require.True(t, ok, "sanity claim before marking as running")

	// Running tasks are untouched by cleanup; insert a second, pending and
	// expired task to verify cleanup only hits it.
	task := &model.ImageTask{
		Life: model.Lifecycle{
			ID:             "img-2",
			Subtype:        "text2image",
			Status:         model.StatusPending,
			Priority:       100,
			MaxRetries:     3,
			TimeoutSeconds: 300,
			ExpireAt:       now.Add(-time.Second),
			CreatedAt:      now.Add(-time.Hour),
			UpdatedAt:      now.Add(-time.Hour),
		},
		Prompt: "y",
	}
	require.NoError(t, s.InsertImageTask(context.Background(), task))

	n, err := s.CleanupExpired(context.Background(), model.KindImage, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	got, err := s.GetImageTask(context.Background(), "img-2")
	require.NoError(t, err)
	require.Equal(t, model.StatusCancelled, got.Life.Status)
	require.Equal(t, "Task expired", got.Life.Error)

	runningTask, err := s.GetImageTask(context.Background(), "img-1")
	require.NoError(t, err)
	require.Equal(t, model.StatusRunning, runningTask.Life.Status)
}

func TestRecoverStaleRequeuesUnderMaxRetries(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()
	task := &model.ImageTask{
		Life: model.Lifecycle{
			ID:             "img-1",
			Subtype:        "text2image",
			Status:         model.StatusPending,
			Priority:       100,
			MaxRetries:     3,
			RetryCount:     0,
			TimeoutSeconds: 300,
			CreatedAt:      now.Add(-time.Hour),
			UpdatedAt:      now.Add(-time.Hour),
		},
		Prompt: "z",
	}
	require.NoError(t, s.InsertImageTask(context.Background(), task))

	cutoff := now.Add(-time.Minute)
	ok, err := s.ClaimCandidate(context.Background(), model.KindImage, "img-1", "dead-worker", now.Add(-time.Hour), cutoff)
	require.NoError(t, err)
	require.True(t, ok)

	recovered, err := s.RecoverStale(context.Background(), model.KindImage, now.Add(-time.Minute), now)
	require.NoError(t, err)
	require.Len(t, recovered, 1)
	require.True(t, recovered[0].Requeued)
	require.Equal(t, "dead-worker", recovered[0].PreviousOwner)

	got, err := s.GetImageTask(context.Background(), "img-1")
	require.NoError(t, err)
	require.Equal(t, model.StatusPending, got.Life.Status)
	require.Equal(t, 1, got.Life.RetryCount)
}

func TestRecoverStaleFailsOnceRetriesExhausted(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()
	task := &model.ImageTask{
		Life: model.Lifecycle{
			ID:             "img-1",
			Subtype:        "text2image",
			Status:         model.StatusPending,
			Priority:       100,
			MaxRetries:     1,
			RetryCount:     1,
			TimeoutSeconds: 300,
			CreatedAt:      now.Add(-time.Hour),
			UpdatedAt:      now.Add(-time.Hour),
		},
		Prompt: "z",
	}
	require.NoError(t, s.InsertImageTask(context.Background(), task))

	cutoff := now.Add(-time.Minute)
	ok, err := s.ClaimCandidate(context.Background(), model.KindImage, "img-1", "dead-worker", now.Add(-time.Hour), cutoff)
	require.NoError(t, err)
	require.True(t, ok)

	recovered, err := s.RecoverStale(context.Background(), model.KindImage, now.Add(-time.Minute), now)
	require.NoError(t, err)
	require.Len(t, recovered, 1)
	require.False(t, recovered[0].Requeued)

	got, err := s.GetImageTask(context.Background(), "img-1")
	require.NoError(t, err)
	require.Equal(t, model.StatusFailed, got.Life.Status)
	require.False(t, got.Life.CompletedAt.IsZero())
}

func TestRetryResetsStartedAt(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()
	task := &model.ImageTask{
		Life: model.Lifecycle{
			ID:             "img-1",
			Subtype:        "text2image",
			Status:         model.StatusFailed,
			Priority:       100,
			MaxRetries:     3,
			RetryCount:     3,
			TimeoutSeconds: 300,
			StartedAt:      now.Add(-time.Hour),
			CompletedAt:    now.Add(-time.Minute),
			Error:          "boom",
			CreatedAt:      now.Add(-time.Hour),
			UpdatedAt:      now.Add(-time.Minute),
		},
		Prompt: "z",
	}
	require.NoError(t, s.InsertImageTask(context.Background(), task))

	ok, err := s.Retry(context.Background(), model.KindImage, "img-1", now)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.GetImageTask(context.Background(), "img-1")
	require.NoError(t, err)
	require.Equal(t, model.StatusPending, got.Life.Status)
	require.Equal(t, 0, got.Life.RetryCount)
	require.True(t, got.Life.StartedAt.IsZero())
	require.True(t, got.Life.CompletedAt.IsZero())
	require.Empty(t, got.Life.Error)
}
