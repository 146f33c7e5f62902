package transcode

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/RyanBlaney/sonido-voz/logging"
)

// FetchConfig holds the remote download limits
type FetchConfig struct {
	Timeout   time.Duration `json:"timeout" mapstructure:"timeout"`
	MinBytes  int           `json:"min_bytes" mapstructure:"min_bytes"` // Smaller bodies are treated as corrupt
	MaxBytes  int64         `json:"max_bytes" mapstructure:"max_bytes"`
	UserAgent string        `json:"user_agent" mapstructure:"user_agent"`
}

// DefaultFetchConfig returns default fetch configuration
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{
		Timeout:   10 * time.Second,
		MinBytes:  1000,
		MaxBytes:  10 << 20,
		UserAgent: "AI-Voice-Detector",
	}
}

// Fetcher downloads audio over HTTP(S). Redirects are followed, certificates
// are verified and there are no retries.
type Fetcher struct {
	client *http.Client
	config FetchConfig
}

// NewFetcher creates a fetcher with its own http.Client
func NewFetcher(config FetchConfig) *Fetcher {
	return NewFetcherWithClient(config, &http.Client{Timeout: config.Timeout})
}

// NewFetcherWithClient creates a fetcher around an existing client
func NewFetcherWithClient(config FetchConfig, client *http.Client) *Fetcher {
	return &Fetcher{client: client, config: config}
}

// Fetch downloads rawURL and returns its body. Every failure, including a
// body shorter than MinBytes, is a DownloadFailed error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	logger := logging.WithContext(ctx).WithFields(logging.Fields{
		"component": "audio_fetcher",
		"function":  "Fetch",
		"url":       rawURL,
	})

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, DownloadFailed("audio URL must be an absolute http or https URL", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, DownloadFailed("failed to build download request", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "*/*")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		logger.Debug("Audio download failed", logging.Fields{"error": err.Error()})
		return nil, DownloadFailed("failed to download audio from URL", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, DownloadFailed(
			fmt.Sprintf("failed to download audio from URL: HTTP %d", resp.StatusCode), nil)
	}

	body := io.Reader(resp.Body)
	if f.config.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, f.config.MaxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, DownloadFailed("failed to read downloaded audio", err)
	}

	if f.config.MaxBytes > 0 && int64(len(data)) > f.config.MaxBytes {
		return nil, DownloadFailed("downloaded audio exceeds the size limit", nil)
	}
	if len(data) < f.config.MinBytes {
		return nil, DownloadFailed("downloaded audio file is empty or corrupted", nil)
	}

	logger.Debug("Audio download completed", logging.Fields{
		"bytes":         len(data),
		"content_type":  resp.Header.Get("Content-Type"),
		"download_time": time.Since(start).Seconds(),
	})

	return data, nil
}
