package backend

import (
	"context"
	"fmt"
)

// ImageRef is a reference image supplied as base64, already compressed by
// CompressImageIfNeeded.
type ImageRef struct {
	Base64 string
}

// GenerateImage requests a single image and returns its URL. count mirrors
// the upstream API's ability to stream several images per call, but the
// executor only ever asks for one at a time.
func (c *GenerationClient) GenerateImage(ctx context.Context, prompt string, references []ImageRef) (string, error) {
	var content any = prompt
	if len(references) > 0 {
		parts := []map[string]any{{"type": "text", "text": prompt}}
		for _, ref := range references {
			parts = append(parts, map[string]any{
				"type": "image_url",
				"image_url": map[string]string{
					"url": "data:image/jpeg;base64," + ref.Base64,
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

	var url string
	err := streamChatCompletion(ctx, c.limiter, c.httpClient, c.APIURL, c.APIKey, payload, func(segment string) bool {
		if u := extractURLFromMarkdown(segment); u != "" {
			url = u
			return true
		}
		return false
	})
	if err != nil {
		return "", err
	}
	if url == "" {
		return "", fmt.Errorf("backend: no image URL in response")
	}
	return url, nil
}
