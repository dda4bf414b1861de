package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
)

// GenerateAudio calls the text-to-speech endpoint with an emotion vector
// and a reference voice sample, returning raw audio bytes. Unlike image
// and video generation this is a plain (non-streamed) POST — the response
// body IS the audio.
func (c *GenerationClient) GenerateAudio(ctx context.Context, text, referenceAudioPath string, speed float64, emotion, intensity string) ([]byte, error) {
	if referenceAudioPath == "" {
		return nil, fmt.Errorf("backend: reference audio is required for speech synthesis")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("backend: rate limit wait: %w", err)
	}
	raw, err := os.ReadFile(referenceAudioPath)
	if err != nil {
		return nil, fmt.Errorf("backend: read reference audio: %w", err)
	}

	payload := map[string]any{
		"text":               text,
		"spk_audio_base64":   base64.StdEncoding.EncodeToString(raw),
		"emo_control_method": 2,
		"emo_weight":         1.0,
		"emo_random":         false,
		"emo_vec":            buildEmotionVector(emotion, intensity),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("backend: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("backend: unexpected status %d", resp.StatusCode)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("backend: read response: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("backend: empty audio response")
	}
	return audio, nil
}

// emotionIndex maps an emotion name to one of the 8 vector dimensions:
// [happy, sad, angry, surprised, fearful, disgusted, calm, other].
var emotionIndex = map[string]int{
	"happy":      0,
	"joyful":     0,
	"cheerful":   0,
	"sad":        1,
	"unhappy":    1,
	"sorrowful":  1,
	"angry":      2,
	"furious":    2,
	"surprised":  3,
	"astonished": 3,
	"fearful":    4,
	"afraid":     4,
	"disgusted":  5,
	"calm":       6,
	"peaceful":   6,
}

var intensityValue = map[string]float64{
	"weak":   0.2,
	"low":    0.2,
	"medium": 0.3,
	"mid":    0.3,
	"strong": 0.5,
	"high":   0.5,
}

const (
	defaultEmotionIdx   = 7 // "other"
	defaultIntensityVal = 0.3
)

// buildEmotionVector produces the 8-dimensional emotion vector the speech
// API expects. intensity may be a named level or a numeric string in
// [0, 0.5]; an unrecognized value falls back to "medium".
func buildEmotionVector(emotion, intensity string) []float64 {
	vec := make([]float64, 8)
	if emotion == "" {
		return vec
	}

	idx, ok := emotionIndex[emotion]
	if !ok {
		idx = defaultEmotionIdx
	}

	value := defaultIntensityVal
	if intensity != "" {
		if parsed, err := strconv.ParseFloat(intensity, 64); err == nil {
			value = parsed
		} else if v, ok := intensityValue[intensity]; ok {
			value = v
		}
	}

	vec[idx] = value
	return vec
}
