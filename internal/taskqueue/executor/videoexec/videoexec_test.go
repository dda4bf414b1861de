package videoexec_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hetangai/mediaqueue/internal/taskqueue/executor/videoexec"
	"github.com/hetangai/mediaqueue/internal/taskqueue/model"
	"github.com/hetangai/mediaqueue/internal/taskqueue/settings"
)

func videoGenServer(t *testing.T, resultURL string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"<video src='" + resultURL + "'></video>\"},\"finish_reason\":\"stop\"}]}\n"))
		_, _ = w.Write([]byte("data: [DONE]\n"))
	}))
}

func TestExecuteText2VideoIgnoresReferenceImages(t *testing.T) {
	genSrv := videoGenServer(t, "https://cdn.example.com/clip.mp4")
	defer genSrv.Close()

	be := &videoexec.Backend{
		SettingsPath: filepath.Join(t.TempDir(), "missing.json"),
		Fallback:     settings.Resolved{APIURL: genSrv.URL, APIKey: "k", Model: "m"},
	}

	task := &model.VideoTask{
		Life:            model.Lifecycle{ID: "vid-1", Subtype: "text2video"},
		Prompt:          "a flying car",
		ReferenceImages: filepath.Join(t.TempDir(), "unused.jpg"),
	}

	result, err := be.Execute(context.Background(), task)
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/clip.mp4", result.ResultURL)
}

func TestExecuteFrames2VideoRequiresAFrame(t *testing.T) {
	be := &videoexec.Backend{
		SettingsPath: filepath.Join(t.TempDir(), "missing.json"),
		Fallback:     settings.Resolved{APIURL: "https://unused.example.com", APIKey: "k", Model: "m"},
	}
	task := &model.VideoTask{
		Life:   model.Lifecycle{ID: "vid-1", Subtype: "frames2video"},
		Prompt: "a flying car",
	}
	_, err := be.Execute(context.Background(), task)
	require.Error(t, err)
}

func TestExecuteReference2VideoRequiresImages(t *testing.T) {
	be := &videoexec.Backend{
		SettingsPath: filepath.Join(t.TempDir(), "missing.json"),
		Fallback:     settings.Resolved{APIURL: "https://unused.example.com", APIKey: "k", Model: "m"},
	}
	task := &model.VideoTask{
		Life:   model.Lifecycle{ID: "vid-1", Subtype: "reference2video"},
		Prompt: "a flying car",
	}
	_, err := be.Execute(context.Background(), task)
	require.Error(t, err)
}

func TestExecuteFrames2VideoWithExistingFrameSucceeds(t *testing.T) {
	genSrv := videoGenServer(t, "https://cdn.example.com/clip.mp4")
	defer genSrv.Close()

	framePath := filepath.Join(t.TempDir(), "frame.jpg")
	require.NoError(t, os.WriteFile(framePath, []byte("tiny jpeg bytes"), 0o600))

	be := &videoexec.Backend{
		SettingsPath: filepath.Join(t.TempDir(), "missing.json"),
		Fallback:     settings.Resolved{APIURL: genSrv.URL, APIKey: "k", Model: "m"},
	}
	task := &model.VideoTask{
		Life:            model.Lifecycle{ID: "vid-1", Subtype: "frames2video"},
		Prompt:          "a flying car",
		ReferenceImages: framePath,
	}
	result, err := be.Execute(context.Background(), task)
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/clip.mp4", result.ResultURL)
}
