package scraper

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/viralens/viralens/internal/config"
	"github.com/viralens/viralens/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testScraper(t *testing.T, platform domain.Platform, handler http.Handler) Scraper {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	s, err := New(platform, config.ScraperConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Timeout: 10 * time.Second,
	}, testLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func TestNewUnknownPlatform(t *testing.T) {
	_, err := New(domain.Platform("myspace"), config.ScraperConfig{}, testLogger())
	if err == nil {
		t.Fatal("expected error for unknown platform")
	}
}

func TestInstagramScrapeBatch(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/instagram/post" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-API-Key") != "test-key" {
			t.Error("missing API key header")
		}

		switch r.URL.Query().Get("url") {
		case "https://instagram.com/p/good1/":
			w.Write([]byte(`{"success": true, "data": {
				"shortcode": "good1",
				"owner": {"username": "creator"},
				"caption": "check this out",
				"like_count": 1500,
				"comment_count": 42,
				"is_video": true,
				"video_url": "https://cdn.example/v.mp4",
				"display_url": "https://cdn.example/t.jpg",
				"taken_at_timestamp": 1700000000,
				"comments": [{"text": "wow", "username": "fan"}]
			}}`))
		case "https://instagram.com/p/gone1/":
			w.Write([]byte(`{"success": false, "error": "post not found"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`provider exploded`))
		}
	})

	s := testScraper(t, domain.PlatformInstagram, handler)
	urls := []string{
		"https://instagram.com/p/good1/",
		"https://instagram.com/p/gone1/",
		"https://instagram.com/p/boom1/",
	}

	results := s.ScrapeBatch(context.Background(), urls)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	// One URL's failure must not touch its siblings.
	if results[0].Failed() {
		t.Errorf("first result failed: %s", results[0].Error)
	}
	if !results[1].Failed() || results[1].Error != "post not found" {
		t.Errorf("second result = %+v, want provider error", results[1])
	}
	if !results[2].Failed() {
		t.Error("third result should fail on HTTP 500")
	}

	raw := results[0].Raw
	if raw.PlatformPostID != "good1" || raw.Username != "creator" {
		t.Errorf("raw post = %+v", raw)
	}
	if len(raw.Media) != 1 || raw.Media[0].Type != "video" {
		t.Errorf("media = %+v, want one video", raw.Media)
	}
	if raw.PostedAt == nil || raw.PostedAt.Unix() != 1700000000 {
		t.Errorf("PostedAt = %v", raw.PostedAt)
	}
	if likes, ok := raw.Metrics["likes"].(int64); !ok || likes != 1500 {
		t.Errorf("Metrics[likes] = %v", raw.Metrics["likes"])
	}
}

func TestLenientSuccessDefault(t *testing.T) {
	// No explicit success flag and no error means success.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": {"shortcode": "abc", "owner": {"username": "u"}}}`))
	})

	s := testScraper(t, domain.PlatformInstagram, handler)
	results := s.ScrapeBatch(context.Background(), []string{"https://instagram.com/p/abc/"})
	if results[0].Failed() {
		t.Errorf("result without explicit success flag treated as failure: %+v", results[0])
	}
}

func TestYouTubeRefreshOne(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/youtube/metrics" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"success": true, "data": {
			"video_id": "dQw4w9WgXcQ",
			"view_count": 100000,
			"like_count": 5000,
			"comment_count": 300,
			"duration_seconds": 212.5
		}}`))
	})

	s := testScraper(t, domain.PlatformYouTube, handler)
	result := s.RefreshOne(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	if !result.Success {
		t.Fatalf("RefreshOne failed: %s", result.Error)
	}
	if views, ok := result.Metrics["views"].(int64); !ok || views != 100000 {
		t.Errorf("Metrics[views] = %v", result.Metrics["views"])
	}
	if dur, ok := result.Metrics["duration"].(float64); !ok || dur != 212.5 {
		t.Errorf("Metrics[duration] = %v", result.Metrics["duration"])
	}
}

func TestRefreshOneProviderDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused

	s, err := New(domain.PlatformTwitter, config.ScraperConfig{
		BaseURL: server.URL,
		Timeout: 2 * time.Second,
	}, testLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	result := s.RefreshOne(context.Background(), "https://x.com/u/status/1")
	if result.Success || result.Error == "" {
		t.Errorf("expected network failure, got %+v", result)
	}
}

func TestTwitterScrapeOne(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/twitter/tweet" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"success": true, "data": {
			"id_str": "1234567890",
			"full_text": "hot take",
			"user": {"screen_name": "someone"},
			"favorite_count": 10,
			"retweet_count": 2,
			"created_at": "Wed Nov 15 10:30:00 +0000 2023",
			"media": [
				{"type": "photo", "media_url_https": "https://pbs.example/a.jpg"},
				{"type": "video", "media_url_https": "https://pbs.example/b.jpg", "video_url": "https://video.example/b.mp4", "duration_millis": 12000}
			]
		}}`))
	})

	s := testScraper(t, domain.PlatformTwitter, handler)
	results := s.ScrapeBatch(context.Background(), []string{"https://x.com/someone/status/1234567890"})
	if results[0].Failed() {
		t.Fatalf("scrape failed: %s", results[0].Error)
	}

	raw := results[0].Raw
	if raw.PlatformPostID != "1234567890" {
		t.Errorf("PlatformPostID = %q", raw.PlatformPostID)
	}
	if len(raw.Media) != 2 {
		t.Fatalf("media = %+v, want 2", raw.Media)
	}
	if raw.Media[0].Type != "image" || raw.Media[1].Type != "video" {
		t.Errorf("media types = %s, %s", raw.Media[0].Type, raw.Media[1].Type)
	}
	if raw.Media[1].Duration != 12 {
		t.Errorf("video duration = %v, want 12", raw.Media[1].Duration)
	}
	if raw.PostedAt == nil || raw.PostedAt.Year() != 2023 {
		t.Errorf("PostedAt = %v", raw.PostedAt)
	}
}
