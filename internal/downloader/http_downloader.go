package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/viralens/viralens/internal/config"
	"github.com/viralens/viralens/internal/domain"
)

// maxMediaBytes caps a single media download. Anything larger than
// this is not worth caching in memory for analysis.
const maxMediaBytes = 256 * 1024 * 1024

// HTTPDownloader implements Downloader using HTTP requests with
// exponential-backoff retries.
type HTTPDownloader struct {
	client    *http.Client
	userAgent string
	cfg       config.DownloadConfig
	logger    *slog.Logger
}

// NewHTTPDownloader creates a new HTTP media downloader.
func NewHTTPDownloader(cfg config.DownloadConfig, logger *slog.Logger) *HTTPDownloader {
	return &HTTPDownloader{
		client:    &http.Client{Timeout: cfg.Timeout},
		userAgent: cfg.UserAgent,
		cfg:       cfg,
		logger:    logger,
	}
}

// Fetch downloads the full content at url with retry logic.
func (d *HTTPDownloader) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	var lastErr error

	delay := d.cfg.RetryDelay
	for attempt := 0; attempt < 3; attempt++ {
		data, contentType, err := d.fetchOnce(ctx, url)
		if err == nil {
			return data, contentType, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			break
		}
		if attempt == 2 {
			break
		}

		d.logger.Warn("media download failed, retrying",
			"url", url,
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > d.cfg.MaxRetryDelay {
			delay = d.cfg.MaxRetryDelay
		}
	}

	return nil, "", fmt.Errorf("download failed after retries: %w", lastErr)
}

func (d *HTTPDownloader) fetchOnce(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, "", domain.ErrRateLimited
	case resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusGone:
		// CDN URLs from scrape payloads expire; retrying will not help.
		return nil, "", fmt.Errorf("%w: status %d", errURLExpired, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	if len(data) > maxMediaBytes {
		return nil, "", fmt.Errorf("media exceeds %d byte limit", maxMediaBytes)
	}

	return data, resp.Header.Get("Content-Type"), nil
}

var errURLExpired = errors.New("media URL expired")

func isRetryableError(err error) bool {
	if errors.Is(err, domain.ErrRateLimited) {
		return true
	}
	if errors.Is(err, errURLExpired) {
		return false
	}
	return true
}
