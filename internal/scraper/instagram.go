package scraper

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"time"

	"github.com/viralens/viralens/internal/domain"
)

// InstagramScraper fetches Instagram post data from the scraping
// provider.
type InstagramScraper struct {
	provider *providerClient
	logger   *slog.Logger
}

// Platform returns the platform this scraper serves.
func (s *InstagramScraper) Platform() domain.Platform {
	return domain.PlatformInstagram
}

// instagramPost is the provider payload for one Instagram post.
type instagramPost struct {
	Shortcode string `json:"shortcode"`
	Owner     struct {
		Username string `json:"username"`
	} `json:"owner"`
	Caption        string  `json:"caption"`
	LikeCount      int64   `json:"like_count"`
	CommentCount   int64   `json:"comment_count"`
	VideoViewCount int64   `json:"video_view_count"`
	IsVideo        bool    `json:"is_video"`
	DisplayURL     string  `json:"display_url"`
	VideoURL       string  `json:"video_url"`
	VideoDuration  float64 `json:"video_duration"`
	TakenAt        int64   `json:"taken_at_timestamp"`
	Sidecar        []struct {
		IsVideo    bool   `json:"is_video"`
		DisplayURL string `json:"display_url"`
		VideoURL   string `json:"video_url"`
	} `json:"sidecar_children"`
	Comments []map[string]any `json:"comments"`
}

func (p *instagramPost) metrics() map[string]any {
	return map[string]any{
		"likes":    p.LikeCount,
		"comments": p.CommentCount,
		"views":    p.VideoViewCount,
	}
}

func (p *instagramPost) toRawPost(postURL string) *RawPost {
	raw := &RawPost{
		PlatformPostID: p.Shortcode,
		Username:       p.Owner.Username,
		Content:        p.Caption,
		Metrics:        p.metrics(),
		URL:            postURL,
		Comments:       p.Comments,
	}
	if p.TakenAt > 0 {
		t := time.Unix(p.TakenAt, 0).UTC()
		raw.PostedAt = &t
	}

	if len(p.Sidecar) > 0 {
		for _, child := range p.Sidecar {
			if child.IsVideo {
				raw.Media = append(raw.Media, RawMedia{Type: "video", URL: child.VideoURL, Thumbnail: child.DisplayURL})
			} else {
				raw.Media = append(raw.Media, RawMedia{Type: "image", URL: child.DisplayURL})
			}
		}
		return raw
	}

	if p.IsVideo {
		raw.Media = append(raw.Media, RawMedia{Type: "video", URL: p.VideoURL, Thumbnail: p.DisplayURL, Duration: p.VideoDuration})
	} else if p.DisplayURL != "" {
		raw.Media = append(raw.Media, RawMedia{Type: "image", URL: p.DisplayURL})
	}
	return raw
}

// RefreshOne fetches current engagement metrics for a single URL.
func (s *InstagramScraper) RefreshOne(ctx context.Context, postURL string) *RefreshResult {
	var envelope providerEnvelope
	err := s.provider.getJSON(ctx, "/instagram/metrics", url.Values{"url": {Normalize(postURL)}}, &envelope)
	if err != nil {
		return &RefreshResult{Error: err.Error()}
	}
	if envelope.failed() {
		return &RefreshResult{Error: envelope.Error}
	}

	var post instagramPost
	if err := json.Unmarshal(envelope.Data, &post); err != nil {
		return &RefreshResult{Error: "decode metrics payload: " + err.Error()}
	}
	return &RefreshResult{Success: true, Metrics: post.metrics()}
}

// ScrapeBatch fully scrapes each URL, one provider call per URL.
func (s *InstagramScraper) ScrapeBatch(ctx context.Context, urls []string) []*ScrapeResult {
	results := make([]*ScrapeResult, 0, len(urls))
	for _, postURL := range urls {
		results = append(results, s.scrapeOne(ctx, postURL))
	}
	return results
}

func (s *InstagramScraper) scrapeOne(ctx context.Context, postURL string) *ScrapeResult {
	result := &ScrapeResult{URL: postURL}

	var envelope providerEnvelope
	err := s.provider.getJSON(ctx, "/instagram/post", url.Values{"url": {Normalize(postURL)}}, &envelope)
	if err != nil {
		s.logger.Warn("instagram scrape failed", "url", postURL, "error", err)
		result.Error = err.Error()
		return result
	}
	if envelope.failed() {
		result.Error = envelope.Error
		return result
	}

	var post instagramPost
	if err := json.Unmarshal(envelope.Data, &post); err != nil {
		result.Error = "decode post payload: " + err.Error()
		return result
	}

	result.Success = true
	result.Raw = post.toRawPost(postURL)
	return result
}
