package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/viralens/viralens/internal/config"
	"github.com/viralens/viralens/internal/domain"
)

// RawMedia is one media item as reported by the scraping provider.
type RawMedia struct {
	Type      string  `json:"type"`
	URL       string  `json:"url"`
	Thumbnail string  `json:"thumbnail_url,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
}

// RawPost is the provider payload for a single post, prior to
// normalization into domain records. Metrics and comments stay
// loosely typed because their shape varies by provider and platform.
type RawPost struct {
	PlatformPostID string           `json:"post_id"`
	Username       string           `json:"username"`
	Content        string           `json:"content"`
	Metrics        map[string]any   `json:"metrics"`
	URL            string           `json:"url"`
	PostedAt       *time.Time       `json:"posted_at,omitempty"`
	Media          []RawMedia       `json:"media"`
	Comments       []map[string]any `json:"comments"`
}

// RefreshResult is the outcome of a single-URL fast refresh.
type RefreshResult struct {
	Success bool
	Metrics map[string]any
	Error   string
}

// ScrapeResult is the per-URL outcome of a batch full scrape. Success
// is judged leniently: a result fails only when the provider says
// success=false or attaches an error message.
type ScrapeResult struct {
	URL     string
	Success bool
	Error   string
	Raw     *RawPost
}

// Failed reports whether this result should be treated as a failure.
func (r *ScrapeResult) Failed() bool {
	return !r.Success || r.Error != ""
}

// Scraper fetches post data for one platform from the scraping
// provider. A failure for one URL never aborts sibling URLs.
type Scraper interface {
	// Platform returns the platform this scraper serves.
	Platform() domain.Platform

	// RefreshOne fetches current engagement metrics for a single URL.
	RefreshOne(ctx context.Context, url string) *RefreshResult

	// ScrapeBatch fully scrapes each URL, returning exactly one result
	// per input URL in input order.
	ScrapeBatch(ctx context.Context, urls []string) []*ScrapeResult
}

// New constructs the scraper for a platform. Returns
// domain.ErrUnknownPlatform for platforms without an adapter.
func New(platform domain.Platform, cfg config.ScraperConfig, logger *slog.Logger) (Scraper, error) {
	provider := newProviderClient(cfg)

	switch platform {
	case domain.PlatformInstagram:
		return &InstagramScraper{provider: provider, logger: logger}, nil
	case domain.PlatformYouTube:
		return &YouTubeScraper{provider: provider, logger: logger}, nil
	case domain.PlatformTwitter:
		return &TwitterScraper{provider: provider, logger: logger}, nil
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownPlatform, platform)
	}
}
