// Package backend talks to the configured generation API: it builds the
// chat-completion-shaped request for image and video generation, parses
// the streamed response, and performs the plain POST used for audio.
package backend

import (
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout         = 300 * time.Second // generation calls run long
	defaultDialTimeout     = 10 * time.Second
	defaultIdleConnTimeout = 90 * time.Second

	// defaultRPS throttles calls made through one GenerationClient. The
	// limiter lives per client, not globally: the executors build a new
	// client for every task, so it does not coordinate requests across
	// tasks, executors or processes.
	defaultRPS   = 2
	defaultBurst = 2
)

// newHTTPClient returns a client tuned for long-running, low-concurrency
// generation calls: one connection per host is plenty since an executor
// processes one task at a time.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: 30 * time.Second}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          8,
			MaxIdleConnsPerHost:   2,
			IdleConnTimeout:       defaultIdleConnTimeout,
			TLSHandshakeTimeout:   defaultDialTimeout,
			ExpectContinueTimeout: time.Second,
		},
	}
}

// GenerationClient calls a single configured generation endpoint. Image and
// video share a streamed chat-completion wire shape; audio is a plain JSON
// POST that returns raw bytes.
type GenerationClient struct {
	APIURL string
	APIKey string
	Model  string

	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewGenerationClient builds a client for one configured endpoint/model
// triple, as resolved per-call by the settings package (hosted vs custom
// mode, refreshed on every claim rather than cached).
func NewGenerationClient(apiURL, apiKey, model string) *GenerationClient {
	return &GenerationClient{
		APIURL:     apiURL,
		APIKey:     apiKey,
		Model:      model,
		httpClient: newHTTPClient(defaultTimeout),
		limiter:    rate.NewLimiter(defaultRPS, defaultBurst),
	}
}
