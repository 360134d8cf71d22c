package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/viralens/viralens/internal/config"
)

// providerClient talks to the external scraping provider's REST API.
// All three platform adapters share one client; they differ only in
// endpoint paths and payload mapping.
type providerClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	userAgent  string
}

func newProviderClient(cfg config.ScraperConfig) *providerClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &providerClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		userAgent:  cfg.UserAgent,
	}
}

// getJSON issues a GET against a provider endpoint and decodes the
// response into out. Non-2xx responses are returned as errors with the
// response body included for diagnosis.
func (c *providerClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("provider error (status %d): %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// providerEnvelope is the provider's common response wrapper. Success
// defaults to true when omitted; only an explicit false or a non-empty
// error marks a failure.
type providerEnvelope struct {
	Success *bool           `json:"success,omitempty"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *providerEnvelope) failed() bool {
	if e.Success != nil && !*e.Success {
		return true
	}
	return e.Error != ""
}
