// Package imageexec implements executor.Backend[*model.ImageTask]: it turns
// a claimed image task into a generation API call, handling reference
// image compression and optional local download.
package imageexec

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

const configKey = "image"

var allowedExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".gif"}

// Backend resolves its API endpoint fresh on every Execute call from
// SettingsPath (hosted/custom mode), falling back to Fallback when the
// settings file is absent or incomplete.
type Backend struct {
	SettingsPath string
	Fallback     settings.Resolved
}

func (b *Backend) Execute(ctx context.Context, task *model.ImageTask) (executor.Result, error) {
	file, err := settings.Load(b.SettingsPath)
	if err != nil {
		return executor.Result{}, err
	}
	resolved := settings.Resolve(file, configKey, b.Fallback)
	if resolved.APIURL == "" {
		return executor.Result{}, fmt.Errorf("imageexec: no API URL configured")
	}
	client := backend.NewGenerationClient(resolved.APIURL, resolved.APIKey, resolved.Model)

	var refs []backend.ImageRef
	for _, raw := range strings.Split(task.ReferenceImages, ",") {
		path := strings.TrimSpace(raw)
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		b64, err := backend.CompressImageIfNeeded(path, 256)
		if err != nil {
			return executor.Result{}, fmt.Errorf("imageexec: compress reference image %s: %w", path, err)
		}
		refs = append(refs, backend.ImageRef{Base64: b64})
	}

	url, err := client.GenerateImage(ctx, task.Prompt, refs)
	if err != nil {
		return executor.Result{}, err
	}

	result := executor.Result{ResultURL: url}
	if task.OutputDir != "" {
		ext := backend.ExtensionFromURL(url, allowedExtensions, ".jpeg")
		dest := filepath.Join(task.OutputDir, task.Life.ID+ext)
		if err := backend.DownloadFile(ctx, url, dest); err != nil {
			return executor.Result{}, fmt.Errorf("imageexec: download result: %w", err)
		}
		result.ResultLocalPath = dest
	}
	return result, nil
}
