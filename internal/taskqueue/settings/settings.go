// Package settings resolves which generation back end an executor should
// call. Unlike a typical hot-reloaded config, the settings file is read
// fresh on every claim rather than cached — a mid-run edit takes effect on
// the very next task, not the next process restart.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
)

// Mode selects whether a back end is resolved from the hosted service or
// from per-back-end custom endpoints.
type Mode string

const (
	ModeHosted Mode = "hosted"
	ModeCustom Mode = "custom"
)

const defaultHostedBaseURL = "https://api.hetangai.com"

// File is the on-disk shape of the settings document.
type File struct {
	APIMode       Mode                    `json:"apiMode"`
	HostedService HostedService           `json:"hostedService"`
	CustomAPI     map[string]CustomConfig `json:"customApi"`
}

type HostedService struct {
	BaseURL string `json:"baseUrl"`
	Token   string `json:"token"`
}

type CustomConfig struct {
	APIURL string `json:"apiUrl"`
	APIKey string `json:"apiKey"`
	Model  string `json:"model"`
}

// Resolved is the endpoint/key/model triple an executor needs to build a
// backend.GenerationClient.
type Resolved struct {
	APIURL string
	APIKey string
	Model  string
}

// Load reads and parses the settings file. A missing file is not an
// error — callers fall back to whatever static configuration they were
// given at startup.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("settings: read %s: %w", path, err)
	}
	var f File
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("settings: parse %s: %w", path, err)
	}
	return &f, nil
}

// Resolve picks the endpoint for configKey ("ttv", "tts", ...) according to
// apiMode. In hosted mode every back end shares the hosted base URL and
// token, with a per-back-end model name of the form "hetang-<key>-v1"; in
// custom mode each back end has its own fully independent configuration.
// fallback is returned unmodified when the settings file is absent, or
// when the selected mode's configuration is incomplete.
func Resolve(f *File, configKey string, fallback Resolved) Resolved {
	if f == nil {
		return fallback
	}

	if f.APIMode == ModeHosted {
		baseURL := f.HostedService.BaseURL
		if baseURL == "" {
			baseURL = defaultHostedBaseURL
		}
		if f.HostedService.Token != "" {
			return Resolved{
				APIURL: baseURL,
				APIKey: f.HostedService.Token,
				Model:  fmt.Sprintf("hetang-%s-v1", configKey),
			}
		}
		return fallback
	}

	if cfg, ok := f.CustomAPI[configKey]; ok && cfg.APIURL != "" {
		return Resolved{APIURL: cfg.APIURL, APIKey: cfg.APIKey, Model: cfg.Model}
	}
	return fallback
}
