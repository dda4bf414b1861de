package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/time/rate"
)

var (
	markdownImageRe = regexp.MustCompile(`!\[.*?\]\((https?://[^)]+)\)`)
	htmlVideoRe     = regexp.MustCompile(`<video\s+src=['"]([^'"]+)['"]`)
	htmlImageRe     = regexp.MustCompile(`<img\s+src=['"]([^'"]+)['"]`)
)

// extractURLFromMarkdown pulls a URL out of whatever shape the model chose
// to wrap it in: markdown image syntax, or an HTML <video>/<img> tag.
func extractURLFromMarkdown(text string) string {
	if m := markdownImageRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := htmlVideoRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := htmlImageRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

type chatCompletionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// streamChatCompletion posts a chat-completion-shaped request with
// stream=true and calls onSegment every time the model signals
// finish_reason, with the full content accumulated since the last
// segment. Used by both image (one segment per generated image) and video
// (a single segment) generation.
func streamChatCompletion(ctx context.Context, limiter *rate.Limiter, client *http.Client, url, apiKey string, payload any, onSegment func(content string) (stop bool)) error {
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("backend: rate limit wait: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("backend: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("backend: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("backend: unexpected status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var current strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		if data == "[DONE]" {
			if current.Len() > 0 {
				onSegment(current.String())
			}
			return nil
		}

		var chunk chatCompletionChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			current.WriteString(choice.Delta.Content)
		}
		if choice.FinishReason == "stop" {
			stop := onSegment(current.String())
			current.Reset()
			if stop {
				return nil
			}
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("backend: read stream: %w", err)
	}
	return nil
}
