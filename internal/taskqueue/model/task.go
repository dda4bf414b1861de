package model

import "time"

// Lifecycle holds the columns shared by every task kind. It is embedded
// in ImageTask, VideoTask, and AudioTask rather than hoisted into a single
// polymorphic table, so that each kind keeps its own indexed, typed
// payload columns (see design notes).
type Lifecycle struct {
	ID       string
	Subtype  string
	Status   Status
	Priority int

	DependsOn string // comma-separated "kind:id" refs, empty if none

	ResultURL       string
	ResultLocalPath string
	Error           string

	MaxRetries     int
	RetryCount     int
	TimeoutSeconds int
	ExpireAt       time.Time

	LockedBy string
	LockedAt time.Time

	StartedAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt time.Time

	ProjectID string // optional; empty means "no project preference"
	Processed bool
}

// Task is implemented by *ImageTask, *VideoTask, *AudioTask. It lets the
// executor and manager packages be written once and parameterized over
// kind, instead of duplicating the claim/heartbeat/release machinery
// three times.
type Task interface {
	Kind() Kind
	Lifecycle() *Lifecycle
	ToDict() map[string]any
}

// ImageTask is a text2image or image2image generation request.
type ImageTask struct {
	Life Lifecycle

	Prompt           string
	AspectRatio      string
	Resolution       string // optional
	ReferenceImages  string // comma-separated local paths, optional
	Provider         string
	OutputDir        string // optional

	ShotID       string
	ShotSequence int
	Slot         int // 1..4
}

func (t *ImageTask) Kind() Kind            { return KindImage }
func (t *ImageTask) Lifecycle() *Lifecycle { return &t.Life }

func (t *ImageTask) ToDict() map[string]any {
	d := lifecycleDict(&t.Life, "image")
	d["prompt"] = t.Prompt
	d["aspect_ratio"] = t.AspectRatio
	d["resolution"] = orNil(t.Resolution)
	d["reference_images"] = orNil(t.ReferenceImages)
	d["provider"] = t.Provider
	d["output_dir"] = orNil(t.OutputDir)
	d["shot_id"] = orNil(t.ShotID)
	d["shot_sequence"] = intOrNil(t.ShotSequence)
	d["slot"] = intOrNil(t.Slot)
	return d
}

// VideoTask is a text2video, frames2video, or reference2video request.
type VideoTask struct {
	Life Lifecycle

	Prompt          string
	AspectRatio     string
	Resolution      string
	ReferenceImages string // ordered for frames2video, unordered set for reference2video
	Duration        int    // seconds, default 5
	Provider        string
	OutputDir       string

	ShotID       string
	ShotSequence int
}

func (t *VideoTask) Kind() Kind            { return KindVideo }
func (t *VideoTask) Lifecycle() *Lifecycle { return &t.Life }

func (t *VideoTask) ToDict() map[string]any {
	d := lifecycleDict(&t.Life, "video")
	d["prompt"] = t.Prompt
	d["aspect_ratio"] = t.AspectRatio
	d["resolution"] = orNil(t.Resolution)
	d["reference_images"] = orNil(t.ReferenceImages)
	d["duration"] = t.Duration
	d["provider"] = t.Provider
	d["output_dir"] = orNil(t.OutputDir)
	d["shot_id"] = orNil(t.ShotID)
	d["shot_sequence"] = intOrNil(t.ShotSequence)
	return d
}

// AudioTask is a text2speech request.
type AudioTask struct {
	Life Lifecycle

	Text             string
	VoiceRef         string
	Emotion          string
	EmotionIntensity string
	Speed            float64 // default 1.0
	Provider         string
	OutputDir        string
	ResultDurationMs int

	ShotID        string
	ShotSequence  int
	DialogueIndex int
}

func (t *AudioTask) Kind() Kind            { return KindAudio }
func (t *AudioTask) Lifecycle() *Lifecycle { return &t.Life }

func (t *AudioTask) ToDict() map[string]any {
	d := lifecycleDict(&t.Life, "audio")
	d["text"] = t.Text
	d["voice_ref"] = orNil(t.VoiceRef)
	d["emotion"] = orNil(t.Emotion)
	d["emotion_intensity"] = orNil(t.EmotionIntensity)
	d["speed"] = t.Speed
	d["provider"] = t.Provider
	d["output_dir"] = orNil(t.OutputDir)
	d["result_duration_ms"] = intOrNil(t.ResultDurationMs)
	d["shot_id"] = orNil(t.ShotID)
	d["shot_sequence"] = intOrNil(t.ShotSequence)
	d["dialogue_index"] = intOrNil(t.DialogueIndex)
	return d
}

func lifecycleDict(l *Lifecycle, taskType string) map[string]any {
	return map[string]any{
		"id":                taskType + ":" + l.ID,
		"task_id":           l.ID,
		"task_type":         taskType,
		"subtype":           l.Subtype,
		"status":            string(l.Status),
		"priority":          l.Priority,
		"depends_on":        orNil(l.DependsOn),
		"result_url":        orNil(l.ResultURL),
		"result_local_path": orNil(l.ResultLocalPath),
		"error":             orNil(l.Error),
		"max_retries":       l.MaxRetries,
		"retry_count":       l.RetryCount,
		"timeout_seconds":   l.TimeoutSeconds,
		"expire_at":         timeOrNil(l.ExpireAt),
		"locked_by":         orNil(l.LockedBy),
		"locked_at":         timeOrNil(l.LockedAt),
		"started_at":        timeOrNil(l.StartedAt),
		"created_at":        timeOrNil(l.CreatedAt),
		"updated_at":        timeOrNil(l.UpdatedAt),
		"completed_at":      timeOrNil(l.CompletedAt),
		"project_id":        orNil(l.ProjectID),
		"processed":         l.Processed,
	}
}

func orNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func intOrNil(i int) any {
	if i == 0 {
		return nil
	}
	return i
}

func timeOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
