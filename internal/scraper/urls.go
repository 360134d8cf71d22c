package scraper

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/viralens/viralens/internal/domain"
)

// Zero-width characters that survive copy-paste from social apps and
// break both regex matching and the dedup lookup.
var zeroWidthReplacer = strings.NewReplacer(
	"​", "", // zero-width space
	"‌", "", // zero-width non-joiner
	"‍", "", // zero-width joiner
	"\uFEFF", "", // BOM
	"⁠", "", // word joiner
)

// Normalize strips zero-width Unicode characters and surrounding
// whitespace from a URL. Normalizing an already-clean URL is a no-op.
func Normalize(rawURL string) string {
	return strings.TrimSpace(zeroWidthReplacer.Replace(rawURL))
}

var (
	instagramIDPattern = regexp.MustCompile(`instagram\.com/(?:[A-Za-z0-9_.]+/)?(?:p|reel|reels|tv)/([A-Za-z0-9_-]+)`)
	youtubeIDPatterns  = []*regexp.Regexp{
		regexp.MustCompile(`youtube\.com/watch\?(?:[^#]*&)?v=([A-Za-z0-9_-]{6,})`),
		regexp.MustCompile(`youtu\.be/([A-Za-z0-9_-]{6,})`),
		regexp.MustCompile(`youtube\.com/shorts/([A-Za-z0-9_-]{6,})`),
		regexp.MustCompile(`youtube\.com/embed/([A-Za-z0-9_-]{6,})`),
	}
	twitterIDPattern = regexp.MustCompile(`(?:twitter|x)\.com/[A-Za-z0-9_]+/status(?:es)?/(\d+)`)
)

// DetectPlatform identifies which platform a URL belongs to by its
// hostname. Returns false for anything unrecognized.
func DetectPlatform(rawURL string) (domain.Platform, bool) {
	parsed, err := url.Parse(Normalize(rawURL))
	if err != nil {
		return "", false
	}

	host := strings.ToLower(parsed.Hostname())
	switch {
	case hostMatches(host, "instagram.com"):
		return domain.PlatformInstagram, true
	case hostMatches(host, "youtube.com"), hostMatches(host, "youtu.be"):
		return domain.PlatformYouTube, true
	case hostMatches(host, "twitter.com"), hostMatches(host, "x.com"):
		return domain.PlatformTwitter, true
	}
	return "", false
}

// hostMatches accepts the bare domain and any subdomain of it.
func hostMatches(host, domainName string) bool {
	return host == domainName || strings.HasSuffix(host, "."+domainName)
}

// GroupByPlatform buckets normalized URLs per platform, returning the
// URLs that match no platform separately. Input order is preserved
// within each bucket.
func GroupByPlatform(rawURLs []string) (map[domain.Platform][]string, []string) {
	buckets := make(map[domain.Platform][]string)
	var unmatched []string
	for _, rawURL := range rawURLs {
		url := Normalize(rawURL)
		if url == "" {
			continue
		}
		platform, ok := DetectPlatform(url)
		if !ok {
			unmatched = append(unmatched, url)
			continue
		}
		buckets[platform] = append(buckets[platform], url)
	}
	return buckets, unmatched
}

// ExtractPostID parses the platform-native post identifier out of a URL.
// The URL is normalized first. Returns "" when no identifier can be
// extracted, which callers treat as "no existing post".
func ExtractPostID(platform domain.Platform, rawURL string) string {
	url := Normalize(rawURL)

	switch platform {
	case domain.PlatformInstagram:
		if m := instagramIDPattern.FindStringSubmatch(url); m != nil {
			return m[1]
		}
	case domain.PlatformYouTube:
		for _, pattern := range youtubeIDPatterns {
			if m := pattern.FindStringSubmatch(url); m != nil {
				return m[1]
			}
		}
	case domain.PlatformTwitter:
		if m := twitterIDPattern.FindStringSubmatch(url); m != nil {
			return m[1]
		}
	}

	return ""
}
