package backend

import (
	"context"
	"fmt"
)

// GenerateVideo requests a video generation. referenceImagesBase64 is nil
// for a text2video task; for frames2video it holds the frame images in the
// order given (first frame, then last frame), and for reference2video the
// reference images. The caller reads each image and compresses it with
// CompressImageIfNeeded before passing its base64 here.
func (c *GenerationClient) GenerateVideo(ctx context.Context, prompt string, referenceImagesBase64 []string) (string, error) {
	var content any = prompt
	if len(referenceImagesBase64) > 0 {
		parts := []map[string]any{{"type": "text", "text": prompt}}
		for _, b64 := range referenceImagesBase64 {
			parts = append(parts, map[string]any{
				"type": "image_url",
				"image_url": map[string]string{
					"url": "data:image/jpeg;base64," + b64,
				},
			})
		}
		content = parts
	}

	payload := map[string]any{
		"model": c.Model,
		"messages": []map[string]any{
			{"role": "user", "content": content},
		},
		"stream": true,
	}

	var accumulated string
	err := streamChatCompletion(ctx, c.limiter, c.httpClient, c.APIURL, c.APIKey, payload, func(segment string) bool {
		accumulated = segment
		return false
	})
	if err != nil {
		return "", err
	}

	url := extractURLFromMarkdown(accumulated)
	if url == "" {
		return "", fmt.Errorf("backend: no video URL in response")
	}
	return url, nil
}
