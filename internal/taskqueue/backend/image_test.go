package backend

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateImageReturnsURLFromStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"![out](https://cdn.example.com/a.png)\"},\"finish_reason\":\"stop\"}]}\n"))
		_, _ = w.Write([]byte("data: [DONE]\n"))
	}))
	defer srv.Close()

	client := &GenerationClient{APIURL: srv.URL, APIKey: "k", Model: "m", httpClient: srv.Client(), limiter: unlimited()}
	url, err := client.GenerateImage(t.Context(), "a red bicycle", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.png", url)
}

func TestGenerateImageErrorsWhenNoURLFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"still thinking\"},\"finish_reason\":\"stop\"}]}\n"))
		_, _ = w.Write([]byte("data: [DONE]\n"))
	}))
	defer srv.Close()

	client := &GenerationClient{APIURL: srv.URL, APIKey: "k", Model: "m", httpClient: srv.Client(), limiter: unlimited()}
	_, err := client.GenerateImage(t.Context(), "a red bicycle", nil)
	assert.Error(t, err)
}

func TestGenerateVideoReturnsURLFromFinalSegment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"<video src='https://cdn.example.com/a.mp4'></video>\"},\"finish_reason\":\"stop\"}]}\n"))
		_, _ = w.Write([]byte("data: [DONE]\n"))
	}))
	defer srv.Close()

	client := &GenerationClient{APIURL: srv.URL, APIKey: "k", Model: "m", httpClient: srv.Client(), limiter: unlimited()}
	url, err := client.GenerateVideo(t.Context(), "a flying car", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.mp4", url)
}

func TestGenerateAudioReturnsRawBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("raw-audio-bytes"))
	}))
	defer srv.Close()

	refPath := filepath.Join(t.TempDir(), "ref.wav")
	require.NoError(t, os.WriteFile(refPath, []byte("reference voice sample"), 0o600))

	client := &GenerationClient{APIURL: srv.URL, APIKey: "k", Model: "m", httpClient: srv.Client(), limiter: unlimited()}
	audio, err := client.GenerateAudio(t.Context(), "hello there", refPath, 1.0, "happy", "strong")
	require.NoError(t, err)
	assert.Equal(t, "raw-audio-bytes", string(audio))
}

func TestGenerateAudioRequiresReferenceVoice(t *testing.T) {
	client := &GenerationClient{APIURL: "https://unused.example.com", APIKey: "k", Model: "m", httpClient: http.DefaultClient, limiter: unlimited()}
	_, err := client.GenerateAudio(t.Context(), "hello there", "", 1.0, "happy", "strong")
	assert.Error(t, err)
}
