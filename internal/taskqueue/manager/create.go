package manager

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hetangai/mediaqueue/internal/taskqueue/model"
)

// ImageTaskInput is the payload for create_image_task. Zero-value optional
// fields default the same way the reference implementation does.
type ImageTaskInput struct {
	Subtype         string // text2image | image2image
	Prompt          string
	AspectRatio     string
	Provider        string
	Resolution      string
	ReferenceImages string
	OutputDir       string

	Priority    int // default 100
	MaxRetries  int // default 3
	Timeout     time.Duration // default 300s
	TTL         time.Duration // default 3600s
	DependsOn   string

	ShotID       string
	ShotSequence int
	Slot         int
}

func (in *ImageTaskInput) applyDefaults() {
	if in.Priority == 0 {
		in.Priority = 100
	}
	if in.MaxRetries == 0 {
		in.MaxRetries = 3
	}
	if in.Timeout == 0 {
		in.Timeout = 300 * time.Second
	}
	if in.TTL == 0 {
		in.TTL = 3600 * time.Second
	}
}

// CreateImageTask inserts a new pending image task and returns its id.
func (m *Manager) CreateImageTask(ctx context.Context, in ImageTaskInput) (string, error) {
	in.applyDefaults()
	now := m.now()
	id := uuid.NewString()

	t := &model.ImageTask{
		Life: model.Lifecycle{
			ID:             id,
			Subtype:        in.Subtype,
			Status:         model.StatusPending,
			Priority:       in.Priority,
			DependsOn:      in.DependsOn,
			MaxRetries:     in.MaxRetries,
			TimeoutSeconds: int(in.Timeout.Seconds()),
			ExpireAt:       now.Add(in.TTL),
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		Prompt:          in.Prompt,
		AspectRatio:     in.AspectRatio,
		Resolution:      in.Resolution,
		ReferenceImages: in.ReferenceImages,
		Provider:        in.Provider,
		OutputDir:       in.OutputDir,
		ShotID:          in.ShotID,
		ShotSequence:    in.ShotSequence,
		Slot:            in.Slot,
	}
	if err := m.store.InsertImageTask(ctx, t); err != nil {
		return "", err
	}
	return id, nil
}

// VideoTaskInput is the payload for create_video_task.
type VideoTaskInput struct {
	Subtype         string // text2video | frames2video | reference2video
	Prompt          string
	AspectRatio     string
	Provider        string
	Resolution      string
	ReferenceImages string
	Duration        int // seconds, default 5
	OutputDir       string

	Priority   int
	MaxRetries int
	Timeout    time.Duration // default 600s
	TTL        time.Duration // default 7200s
	DependsOn  string

	ShotID       string
	ShotSequence int
}

func (in *VideoTaskInput) applyDefaults() {
	if in.Priority == 0 {
		in.Priority = 100
	}
	if in.MaxRetries == 0 {
		in.MaxRetries = 3
	}
	if in.Timeout == 0 {
		in.Timeout = 600 * time.Second
	}
	if in.TTL == 0 {
		in.TTL = 7200 * time.Second
	}
	if in.Duration == 0 {
		in.Duration = 5
	}
}

// CreateVideoTask inserts a new pending video task and returns its id.
func (m *Manager) CreateVideoTask(ctx context.Context, in VideoTaskInput) (string, error) {
	in.applyDefaults()
	now := m.now()
	id := uuid.NewString()

	t := &model.VideoTask{
		Life: model.Lifecycle{
			ID:             id,
			Subtype:        in.Subtype,
			Status:         model.StatusPending,
			Priority:       in.Priority,
			DependsOn:      in.DependsOn,
			MaxRetries:     in.MaxRetries,
			TimeoutSeconds: int(in.Timeout.Seconds()),
			ExpireAt:       now.Add(in.TTL),
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		Prompt:          in.Prompt,
		AspectRatio:     in.AspectRatio,
		Resolution:      in.Resolution,
		ReferenceImages: in.ReferenceImages,
		Duration:        in.Duration,
		Provider:        in.Provider,
		OutputDir:       in.OutputDir,
		ShotID:          in.ShotID,
		ShotSequence:    in.ShotSequence,
	}
	if err := m.store.InsertVideoTask(ctx, t); err != nil {
		return "", err
	}
	return id, nil
}

// AudioTaskInput is the payload for create_audio_task.
type AudioTaskInput struct {
	Text             string
	Provider         string
	VoiceRef         string
	Emotion          string
	EmotionIntensity string
	Speed            float64 // default 1.0
	OutputDir        string

	Priority   int
	MaxRetries int
	Timeout    time.Duration // default 120s
	TTL        time.Duration // default 3600s
	DependsOn  string

	ShotID        string
	ShotSequence  int
	DialogueIndex int
}

func (in *AudioTaskInput) applyDefaults() {
	if in.Priority == 0 {
		in.Priority = 100
	}
	if in.MaxRetries == 0 {
		in.MaxRetries = 3
	}
	if in.Timeout == 0 {
		in.Timeout = 120 * time.Second
	}
	if in.TTL == 0 {
		in.TTL = 3600 * time.Second
	}
	if in.Speed == 0 {
		in.Speed = 1.0
	}
}

// CreateAudioTask inserts a new pending text-to-speech task and returns its
// id. Subtype is always "text2speech", matching the reference
// implementation.
func (m *Manager) CreateAudioTask(ctx context.Context, in AudioTaskInput) (string, error) {
	in.applyDefaults()
	now := m.now()
	id := uuid.NewString()

	t := &model.AudioTask{
		Life: model.Lifecycle{
			ID:             id,
			Subtype:        "text2speech",
			Status:         model.StatusPending,
			Priority:       in.Priority,
			DependsOn:      in.DependsOn,
			MaxRetries:     in.MaxRetries,
			TimeoutSeconds: int(in.Timeout.Seconds()),
			ExpireAt:       now.Add(in.TTL),
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		Text:             in.Text,
		VoiceRef:         in.VoiceRef,
		Emotion:          in.Emotion,
		EmotionIntensity: in.EmotionIntensity,
		Speed:            in.Speed,
		Provider:         in.Provider,
		OutputDir:        in.OutputDir,
		ShotID:           in.ShotID,
		ShotSequence:     in.ShotSequence,
		DialogueIndex:    in.DialogueIndex,
	}
	if err := m.store.InsertAudioTask(ctx, t); err != nil {
		return "", err
	}
	return id, nil
}
