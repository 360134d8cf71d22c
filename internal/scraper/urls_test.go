package scraper

import (
	"testing"

	"github.com/viralens/viralens/internal/domain"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"already clean", "https://instagram.com/p/abc123/", "https://instagram.com/p/abc123/"},
		{"leading whitespace", "  https://youtu.be/dQw4w9WgXcQ", "https://youtu.be/dQw4w9WgXcQ"},
		{"zero-width space", "https://instagram.com/p/​abc123/", "https://instagram.com/p/abc123/"},
		{"zero-width non-joiner", "https://x.com/user/status/‌123", "https://x.com/user/status/123"},
		{"zero-width joiner", "https://x.com/user/status/‍123", "https://x.com/user/status/123"},
		{"BOM", "\uFEFFhttps://youtu.be/dQw4w9WgXcQ", "https://youtu.be/dQw4w9WgXcQ"},
		{"word joiner", "https://youtu.be/dQw4⁠w9WgXcQ", "https://youtu.be/dQw4w9WgXcQ"},
		{"all mixed", "\uFEFF https://instagram.com/p/​‌‍abc⁠123/ ", "https://instagram.com/p/abc123/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	dirty := "​https://instagram.com/p/abc⁠123/"
	once := Normalize(dirty)
	if twice := Normalize(once); twice != once {
		t.Errorf("Normalize not idempotent: %q != %q", twice, once)
	}
}

func TestExtractPostID(t *testing.T) {
	tests := []struct {
		name     string
		platform domain.Platform
		url      string
		want     string
	}{
		{"instagram post", domain.PlatformInstagram, "https://www.instagram.com/p/CxYz_12-ab/", "CxYz_12-ab"},
		{"instagram reel", domain.PlatformInstagram, "https://instagram.com/reel/Abc123/", "Abc123"},
		{"instagram reels plural", domain.PlatformInstagram, "https://instagram.com/reels/Abc123", "Abc123"},
		{"instagram tv", domain.PlatformInstagram, "https://instagram.com/tv/Xyz789/", "Xyz789"},
		{"instagram with username", domain.PlatformInstagram, "https://instagram.com/creator.name/p/Abc123/", "Abc123"},
		{"instagram zero-width", domain.PlatformInstagram, "https://instagram.com/p/​Abc123/", "Abc123"},
		{"instagram no id", domain.PlatformInstagram, "https://instagram.com/creator.name/", ""},
		{"youtube watch", domain.PlatformYouTube, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"youtube watch extra params", domain.PlatformYouTube, "https://www.youtube.com/watch?t=42&v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"youtube short link", domain.PlatformYouTube, "https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"youtube shorts", domain.PlatformYouTube, "https://youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"youtube embed", domain.PlatformYouTube, "https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"youtube no id", domain.PlatformYouTube, "https://www.youtube.com/feed/subscriptions", ""},
		{"twitter status", domain.PlatformTwitter, "https://twitter.com/someone/status/1234567890", "1234567890"},
		{"x status", domain.PlatformTwitter, "https://x.com/someone/status/1234567890", "1234567890"},
		{"x statuses", domain.PlatformTwitter, "https://x.com/someone/statuses/1234567890", "1234567890"},
		{"twitter no id", domain.PlatformTwitter, "https://x.com/someone", ""},
		{"wrong platform", domain.PlatformTwitter, "https://instagram.com/p/Abc123/", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractPostID(tt.platform, tt.url); got != tt.want {
				t.Errorf("ExtractPostID(%s, %q) = %q, want %q", tt.platform, tt.url, got, tt.want)
			}
		})
	}
}

func TestExtractPostIDZeroWidthEquivalence(t *testing.T) {
	clean := "https://youtu.be/dQw4w9WgXcQ"
	dirty := "\uFEFFhttps://youtu.be/dQw4​w9Wg‍XcQ "

	cleanID := ExtractPostID(domain.PlatformYouTube, clean)
	dirtyID := ExtractPostID(domain.PlatformYouTube, dirty)
	if cleanID == "" || cleanID != dirtyID {
		t.Errorf("ids differ: clean=%q dirty=%q", cleanID, dirtyID)
	}
}

func TestDetectPlatform(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want domain.Platform
		ok   bool
	}{
		{"instagram", "https://www.instagram.com/p/Abc123/", domain.PlatformInstagram, true},
		{"youtube", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", domain.PlatformYouTube, true},
		{"youtube short link", "https://youtu.be/dQw4w9WgXcQ", domain.PlatformYouTube, true},
		{"youtube mobile", "https://m.youtube.com/watch?v=dQw4w9WgXcQ", domain.PlatformYouTube, true},
		{"twitter", "https://twitter.com/a/status/1", domain.PlatformTwitter, true},
		{"x rebrand", "https://x.com/a/status/1", domain.PlatformTwitter, true},
		{"x lookalike host", "https://mybox.com/a/status/1", "", false},
		{"unrelated", "https://example.com/post/1", "", false},
		{"garbage", "::not a url::", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DetectPlatform(tt.url)
			if got != tt.want || ok != tt.ok {
				t.Errorf("DetectPlatform(%q) = (%q, %v), want (%q, %v)", tt.url, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestGroupByPlatform(t *testing.T) {
	urls := []string{
		"https://www.instagram.com/p/Abc123/",
		" https://x.com/a/status/1 ",
		"https://youtu.be/dQw4w9WgXcQ",
		"https://instagram.com/reel/Def456/",
		"https://example.com/nothing",
		"",
	}

	buckets, unmatched := GroupByPlatform(urls)

	if got := buckets[domain.PlatformInstagram]; len(got) != 2 || got[0] != "https://www.instagram.com/p/Abc123/" {
		t.Errorf("instagram bucket = %v", got)
	}
	if got := buckets[domain.PlatformTwitter]; len(got) != 1 || got[0] != "https://x.com/a/status/1" {
		t.Errorf("twitter bucket = %v, want trimmed URL", got)
	}
	if got := buckets[domain.PlatformYouTube]; len(got) != 1 {
		t.Errorf("youtube bucket = %v", got)
	}
	if len(unmatched) != 1 || unmatched[0] != "https://example.com/nothing" {
		t.Errorf("unmatched = %v", unmatched)
	}
}
