package backend

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func unlimited() *rate.Limiter {
	return rate.NewLimiter(rate.Inf, 0)
}

func TestExtractURLFromMarkdown(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{"markdown image", "here you go ![result](https://cdn.example.com/a.png) done", "https://cdn.example.com/a.png"},
		{"html video", `<video src='https://cdn.example.com/a.mp4'></video>`, "https://cdn.example.com/a.mp4"},
		{"html image", `<img src="https://cdn.example.com/a.jpg">`, "https://cdn.example.com/a.jpg"},
		{"no url", "still generating...", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, extractURLFromMarkdown(tc.text))
		})
	}
}

func sseServer(t *testing.T, lines []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		bw := bufio.NewWriter(w)
		for _, l := range lines {
			fmt.Fprintln(bw, l)
		}
		bw.Flush()
		if flusher != nil {
			flusher.Flush()
		}
	}))
}

func TestStreamChatCompletionAccumulatesSegments(t *testing.T) {
	srv := sseServer(t, []string{
		`data: {"choices":[{"delta":{"content":"hel"},"finish_reason":null}]}`,
		`data: {"choices":[{"delta":{"content":"lo"},"finish_reason":"stop"}]}`,
		`data: {"choices":[{"delta":{"content":"world"},"finish_reason":"stop"}]}`,
		`data: [DONE]`,
	})
	defer srv.Close()

	var segments []string
	err := streamChatCompletion(context.Background(), unlimited(), srv.Client(), srv.URL, "key", map[string]any{}, func(content string) bool {
		segments = append(segments, content)
		return false
	})
	require.NoError(t, err)
	require.Equal(t, []string{"hello", "world"}, segments)
}

func TestStreamChatCompletionStopsEarlyWhenOnSegmentReturnsTrue(t *testing.T) {
	srv := sseServer(t, []string{
		`data: {"choices":[{"delta":{"content":"first"},"finish_reason":"stop"}]}`,
		`data: {"choices":[{"delta":{"content":"second"},"finish_reason":"stop"}]}`,
		`data: [DONE]`,
	})
	defer srv.Close()

	var segments []string
	err := streamChatCompletion(context.Background(), unlimited(), srv.Client(), srv.URL, "key", map[string]any{}, func(content string) bool {
		segments = append(segments, content)
		return true
	})
	require.NoError(t, err)
	require.Equal(t, []string{"first"}, segments)
}

func TestStreamChatCompletionErrorsOnBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := streamChatCompletion(context.Background(), unlimited(), srv.Client(), srv.URL, "key", map[string]any{}, func(string) bool { return false })
	require.Error(t, err)
}
