// Package audioexec implements executor.Backend[*model.AudioTask]. Unlike
// image/video, a successful synthesis always needs a local file — the API
// returns raw bytes, never a URL — so ResultLocalPath is set even when
// OutputDir is empty (falling back to a process-temp path).
package audioexec

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hetangai/mediaqueue/internal/taskqueue/backend"
	"github.com/hetangai/mediaqueue/internal/taskqueue/executor"
	"github.com/hetangai/mediaqueue/internal/taskqueue/model"
	"github.com/hetangai/mediaqueue/internal/taskqueue/settings"
)

const configKey = "tts"

type Backend struct {
	SettingsPath string
	Fallback     settings.Resolved
}

func (b *Backend) Execute(ctx context.Context, task *model.AudioTask) (executor.Result, error) {
	if task.VoiceRef != "" {
		if _, err := os.Stat(task.VoiceRef); err != nil {
			return executor.Result{}, fmt.Errorf("audioexec: voice reference not found: %s", task.VoiceRef)
		}
	}

	file, err := settings.Load(b.SettingsPath)
	if err != nil {
		return executor.Result{}, err
	}
	resolved := settings.Resolve(file, configKey, b.Fallback)
	if resolved.APIURL == "" {
		return executor.Result{}, fmt.Errorf("audioexec: no API URL configured")
	}
	client := backend.NewGenerationClient(resolved.APIURL, resolved.APIKey, resolved.Model)

	speed := task.Speed
	if speed == 0 {
		speed = 1.0
	}

	audio, err := client.GenerateAudio(ctx, task.Text, task.VoiceRef, speed, task.Emotion, task.EmotionIntensity)
	if err != nil {
		return executor.Result{}, err
	}

	outputDir := task.OutputDir
	if outputDir == "" {
		outputDir = os.TempDir()
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return executor.Result{}, fmt.Errorf("audioexec: create output dir: %w", err)
	}
	dest := filepath.Join(outputDir, task.Life.ID+".wav")
	if err := os.WriteFile(dest, audio, 0o644); err != nil {
		return executor.Result{}, fmt.Errorf("audioexec: write result: %w", err)
	}

	durationMs := backend.EstimateAudioDurationMs(audio)
	return executor.Result{
		ResultLocalPath:  dest,
		ResultDurationMs: &durationMs,
	}, nil
}
