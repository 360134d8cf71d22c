package scraper

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"time"

	"github.com/viralens/viralens/internal/domain"
)

// parseTwitterTime handles both the classic created_at format and
// RFC3339, depending on which upstream endpoint the provider proxied.
func parseTwitterTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RubyDate, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// TwitterScraper fetches tweet data from the scraping provider.
type TwitterScraper struct {
	provider *providerClient
	logger   *slog.Logger
}

// Platform returns the platform this scraper serves.
func (s *TwitterScraper) Platform() domain.Platform {
	return domain.PlatformTwitter
}

// tweet is the provider payload for one tweet. Field names follow the
// upstream API shape the provider proxies.
type tweet struct {
	ID   string `json:"id_str"`
	Text string `json:"full_text"`
	User struct {
		ScreenName string `json:"screen_name"`
	} `json:"user"`
	FavoriteCount int64  `json:"favorite_count"`
	RetweetCount  int64  `json:"retweet_count"`
	ReplyCount    int64  `json:"reply_count"`
	ViewCount     int64  `json:"view_count"`
	CreatedAt     string `json:"created_at"`
	Media         []struct {
		Type          string  `json:"type"`
		MediaURLHTTPS string  `json:"media_url_https"`
		VideoURL      string  `json:"video_url"`
		DurationMs    float64 `json:"duration_millis"`
	} `json:"media"`
	Replies []map[string]any `json:"replies"`
}

func (t *tweet) metrics() map[string]any {
	return map[string]any{
		"likes":    t.FavoriteCount,
		"retweets": t.RetweetCount,
		"replies":  t.ReplyCount,
		"views":    t.ViewCount,
	}
}

func (t *tweet) toRawPost(postURL string) *RawPost {
	raw := &RawPost{
		PlatformPostID: t.ID,
		Username:       t.User.ScreenName,
		Content:        t.Text,
		Metrics:        t.metrics(),
		URL:            postURL,
		Comments:       t.Replies,
	}
	if parsed, err := parseTwitterTime(t.CreatedAt); err == nil {
		raw.PostedAt = &parsed
	}

	for _, m := range t.Media {
		switch m.Type {
		case "video", "animated_gif":
			raw.Media = append(raw.Media, RawMedia{
				Type:      "video",
				URL:       m.VideoURL,
				Thumbnail: m.MediaURLHTTPS,
				Duration:  m.DurationMs / 1000,
			})
		default:
			raw.Media = append(raw.Media, RawMedia{Type: "image", URL: m.MediaURLHTTPS})
		}
	}
	return raw
}

// RefreshOne fetches current engagement metrics for a single URL.
func (s *TwitterScraper) RefreshOne(ctx context.Context, postURL string) *RefreshResult {
	var envelope providerEnvelope
	err := s.provider.getJSON(ctx, "/twitter/metrics", url.Values{"url": {Normalize(postURL)}}, &envelope)
	if err != nil {
		return &RefreshResult{Error: err.Error()}
	}
	if envelope.failed() {
		return &RefreshResult{Error: envelope.Error}
	}

	var tw tweet
	if err := json.Unmarshal(envelope.Data, &tw); err != nil {
		return &RefreshResult{Error: "decode metrics payload: " + err.Error()}
	}
	return &RefreshResult{Success: true, Metrics: tw.metrics()}
}

// ScrapeBatch fully scrapes each URL, one provider call per URL.
func (s *TwitterScraper) ScrapeBatch(ctx context.Context, urls []string) []*ScrapeResult {
	results := make([]*ScrapeResult, 0, len(urls))
	for _, postURL := range urls {
		results = append(results, s.scrapeOne(ctx, postURL))
	}
	return results
}

func (s *TwitterScraper) scrapeOne(ctx context.Context, postURL string) *ScrapeResult {
	result := &ScrapeResult{URL: postURL}

	var envelope providerEnvelope
	err := s.provider.getJSON(ctx, "/twitter/tweet", url.Values{"url": {Normalize(postURL)}}, &envelope)
	if err != nil {
		s.logger.Warn("twitter scrape failed", "url", postURL, "error", err)
		result.Error = err.Error()
		return result
	}
	if envelope.failed() {
		result.Error = envelope.Error
		return result
	}

	var tw tweet
	if err := json.Unmarshal(envelope.Data, &tw); err != nil {
		result.Error = "decode tweet payload: " + err.Error()
		return result
	}

	result.Success = true
	result.Raw = tw.toRawPost(postURL)
	return result
}
