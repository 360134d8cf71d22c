package scraper

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"time"

	"github.com/viralens/viralens/internal/domain"
)

// YouTubeScraper fetches YouTube video data from the scraping provider.
type YouTubeScraper struct {
	provider *providerClient
	logger   *slog.Logger
}

// Platform returns the platform this scraper serves.
func (s *YouTubeScraper) Platform() domain.Platform {
	return domain.PlatformYouTube
}

// youtubeVideo is the provider payload for one YouTube video.
type youtubeVideo struct {
	VideoID string `json:"video_id"`
	Channel struct {
		Name string `json:"name"`
	} `json:"channel"`
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	ViewCount    int64            `json:"view_count"`
	LikeCount    int64            `json:"like_count"`
	CommentCount int64            `json:"comment_count"`
	Duration     float64          `json:"duration_seconds"`
	StreamURL    string           `json:"stream_url"`
	ThumbnailURL string           `json:"thumbnail_url"`
	PublishedAt  string           `json:"published_at"`
	Comments     []map[string]any `json:"comments"`
}

func (v *youtubeVideo) metrics() map[string]any {
	return map[string]any{
		"views":    v.ViewCount,
		"likes":    v.LikeCount,
		"comments": v.CommentCount,
		"duration": v.Duration,
	}
}

func (v *youtubeVideo) toRawPost(postURL string) *RawPost {
	content := v.Title
	if v.Description != "" {
		content += "\n\n" + v.Description
	}

	raw := &RawPost{
		PlatformPostID: v.VideoID,
		Username:       v.Channel.Name,
		Content:        content,
		Metrics:        v.metrics(),
		URL:            postURL,
		Comments:       v.Comments,
	}
	if t, err := time.Parse(time.RFC3339, v.PublishedAt); err == nil {
		utc := t.UTC()
		raw.PostedAt = &utc
	}
	if v.StreamURL != "" {
		raw.Media = append(raw.Media, RawMedia{Type: "video", URL: v.StreamURL, Thumbnail: v.ThumbnailURL, Duration: v.Duration})
	}
	return raw
}

// RefreshOne fetches current engagement metrics for a single URL.
func (s *YouTubeScraper) RefreshOne(ctx context.Context, postURL string) *RefreshResult {
	var envelope providerEnvelope
	err := s.provider.getJSON(ctx, "/youtube/metrics", url.Values{"url": {Normalize(postURL)}}, &envelope)
	if err != nil {
		return &RefreshResult{Error: err.Error()}
	}
	if envelope.failed() {
		return &RefreshResult{Error: envelope.Error}
	}

	var video youtubeVideo
	if err := json.Unmarshal(envelope.Data, &video); err != nil {
		return &RefreshResult{Error: "decode metrics payload: " + err.Error()}
	}
	return &RefreshResult{Success: true, Metrics: video.metrics()}
}

// ScrapeBatch fully scrapes each URL, one provider call per URL.
func (s *YouTubeScraper) ScrapeBatch(ctx context.Context, urls []string) []*ScrapeResult {
	results := make([]*ScrapeResult, 0, len(urls))
	for _, postURL := range urls {
		results = append(results, s.scrapeOne(ctx, postURL))
	}
	return results
}

func (s *YouTubeScraper) scrapeOne(ctx context.Context, postURL string) *ScrapeResult {
	result := &ScrapeResult{URL: postURL}

	var envelope providerEnvelope
	err := s.provider.getJSON(ctx, "/youtube/video", url.Values{"url": {Normalize(postURL)}}, &envelope)
	if err != nil {
		s.logger.Warn("youtube scrape failed", "url", postURL, "error", err)
		result.Error = err.Error()
		return result
	}
	if envelope.failed() {
		result.Error = envelope.Error
		return result
	}

	var video youtubeVideo
	if err := json.Unmarshal(envelope.Data, &video); err != nil {
		result.Error = "decode video payload: " + err.Error()
		return result
	}

	result.Success = true
	result.Raw = video.toRawPost(postURL)
	return result
}
