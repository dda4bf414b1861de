// Package videoexec implements executor.Backend[*model.VideoTask].
package videoexec

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hetangai/mediaqueue/internal/taskqueue/backend"
	"github.com/hetangai/mediaqueue/internal/taskqueue/executor"
	"github.com/hetangai/mediaqueue/internal/taskqueue/model"
	"github.com/hetangai/mediaqueue/internal/taskqueue/settings"
)

const (
	configKey        = "ttv"
	referenceImageKB = 768 // video references tolerate a looser budget than image-to-image
)

var allowedExtensions = []string{".mp4", ".webm", ".mov", ".avi"}

type Backend struct {
	SettingsPath string
	Fallback     settings.Resolved
}

func (b *Backend) Execute(ctx context.Context, task *model.VideoTask) (executor.Result, error) {
	images := existingReferenceImages(task.ReferenceImages)

	switch task.Life.Subtype {
	case "frames2video":
		if len(images) == 0 {
			return executor.Result{}, fmt.Errorf("videoexec: frames2video requires at least one frame image")
		}
	case "reference2video":
		if len(images) == 0 {
			return executor.Result{}, fmt.Errorf("videoexec: reference2video requires reference images")
		}
	case "text2video":
		images = nil
	}

	file, err := settings.Load(b.SettingsPath)
	if err != nil {
		return executor.Result{}, err
	}
	resolved := settings.Resolve(file, configKey, b.Fallback)
	if resolved.APIURL == "" {
		return executor.Result{}, fmt.Errorf("videoexec: no API URL configured")
	}
	client := backend.NewGenerationClient(resolved.APIURL, resolved.APIKey, resolved.Model)

	var refsBase64 []string
	for _, path := range images {
		b64, err := backend.CompressImageIfNeeded(path, referenceImageKB)
		if err != nil {
			return executor.Result{}, fmt.Errorf("videoexec: compress reference image %s: %w", path, err)
		}
		refsBase64 = append(refsBase64, b64)
	}

	url, err := client.GenerateVideo(ctx, task.Prompt, refsBase64)
	if err != nil {
		return executor.Result{}, err
	}

	result := executor.Result{ResultURL: url}
	if task.OutputDir != "" {
		ext := backend.ExtensionFromURL(url, allowedExtensions, ".mp4")
		dest := filepath.Join(task.OutputDir, task.Life.ID+ext)
		if err := backend.DownloadFile(ctx, url, dest); err != nil {
			return executor.Result{}, fmt.Errorf("videoexec: download result: %w", err)
		}
		result.ResultLocalPath = dest
	}
	return result, nil
}

func existingReferenceImages(csv string) []string {
	var out []string
	for _, raw := range strings.Split(csv, ",") {
		path := strings.TrimSpace(raw)
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		out = append(out, path)
	}
	return out
}
