package audioexec_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hetangai/mediaqueue/internal/taskqueue/executor/audioexec"
	"github.com/hetangai/mediaqueue/internal/taskqueue/model"
	"github.com/hetangai/mediaqueue/internal/taskqueue/settings"
)

func TestExecuteSynthesizesAndEstimatesDuration(t *testing.T) {
	genSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 16kHz/16-bit/mono, 32000 bytes of payload == exactly 1 second.
		_, _ = w.Write(buildTestWAV(32000))
	}))
	defer genSrv.Close()

	voiceRef := filepath.Join(t.TempDir(), "voice.wav")
	require.NoError(t, os.WriteFile(voiceRef, []byte("reference voice sample"), 0o600))

	outDir := t.TempDir()
	be := &audioexec.Backend{
		SettingsPath: filepath.Join(t.TempDir(), "missing.json"),
		Fallback:     settings.Resolved{APIURL: genSrv.URL, APIKey: "k", Model: "m"},
	}
	task := &model.AudioTask{
		Life:      model.Lifecycle{ID: "aud-1"},
		Text:      "hello there",
		VoiceRef:  voiceRef,
		OutputDir: outDir,
	}

	result, err := be.Execute(context.Background(), task)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(outDir, "aud-1.wav"), result.ResultLocalPath)
	require.NotNil(t, result.ResultDurationMs)
	require.Equal(t, 1000, *result.ResultDurationMs)
	require.Empty(t, result.ResultURL, "speech synthesis never returns a URL")
}

func TestExecuteFailsWhenVoiceRefMissing(t *testing.T) {
	be := &audioexec.Backend{
		SettingsPath: filepath.Join(t.TempDir(), "missing.json"),
		Fallback:     settings.Resolved{APIURL: "https://unused.example.com", APIKey: "k", Model: "m"},
	}
	task := &model.AudioTask{
		Life:     model.Lifecycle{ID: "aud-1"},
		Text:     "hello there",
		VoiceRef: filepath.Join(t.TempDir(), "does-not-exist.wav"),
	}
	_, err := be.Execute(context.Background(), task)
	require.Error(t, err)
}

func TestExecuteFallsBackToTempDirWhenOutputDirEmpty(t *testing.T) {
	genSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(buildTestWAV(1600))
	}))
	defer genSrv.Close()

	voiceRef := filepath.Join(t.TempDir(), "voice.wav")
	require.NoError(t, os.WriteFile(voiceRef, []byte("reference voice sample"), 0o600))

	be := &audioexec.Backend{
		SettingsPath: filepath.Join(t.TempDir(), "missing.json"),
		Fallback:     settings.Resolved{APIURL: genSrv.URL, APIKey: "k", Model: "m"},
	}
	task := &model.AudioTask{
		Life:     model.Lifecycle{ID: "aud-2"},
		Text:     "hello there",
		VoiceRef: voiceRef,
	}
	result, err := be.Execute(context.Background(), task)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(os.TempDir(), "aud-2.wav"), result.ResultLocalPath)
	_ = os.Remove(result.ResultLocalPath)
}

// buildTestWAV builds a minimal 16kHz/16-bit/mono RIFF/WAVE file with the
// given number of PCM payload bytes.
func buildTestWAV(dataSize int) []byte {
	const sampleRate, bitsPerSample, channels = 16000, 16, 1
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	put32 := func(v uint32) []byte {
		return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	}
	put16 := func(v uint16) []byte {
		return []byte{byte(v), byte(v >> 8)}
	}

	var b []byte
	b = append(b, []byte("RIFF")...)
	b = append(b, put32(uint32(36+dataSize))...)
	b = append(b, []byte("WAVE")...)
	b = append(b, []byte("fmt ")...)
	b = append(b, put32(16)...)
	b = append(b, put16(1)...)
	b = append(b, put16(uint16(channels))...)
	b = append(b, put32(uint32(sampleRate))...)
	b = append(b, put32(uint32(byteRate))...)
	b = append(b, put16(uint16(blockAlign))...)
	b = append(b, put16(uint16(bitsPerSample))...)
	b = append(b, []byte("data")...)
	b = append(b, put32(uint32(dataSize))...)
	b = append(b, make([]byte, dataSize)...)
	return b
}
