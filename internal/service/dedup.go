package service

import (
	"context"
	"log/slog"

	"github.com/viralens/viralens/internal/domain"
	"github.com/viralens/viralens/internal/repository"
	"github.com/viralens/viralens/internal/scraper"
)

// DuplicateChecker resolves which URLs in a batch already correspond to
// stored posts. Pure read, no side effects.
type DuplicateChecker struct {
	posts  repository.PostRepository
	logger *slog.Logger
}

// NewDuplicateChecker creates a new duplicate checker.
func NewDuplicateChecker(posts repository.PostRepository, logger *slog.Logger) *DuplicateChecker {
	return &DuplicateChecker{posts: posts, logger: logger}
}

// Check maps each URL to its existing post, or nil when the URL is new.
// An unknown platform resolves every URL to nil with a warning. URLs
// whose post id cannot be extracted also resolve to nil.
func (c *DuplicateChecker) Check(ctx context.Context, platform domain.Platform, urls []string) map[string]*domain.Post {
	existing := make(map[string]*domain.Post, len(urls))
	for _, url := range urls {
		existing[url] = nil
	}

	if !platform.Valid() {
		c.logger.Warn("unknown platform in duplicate check, treating all URLs as new",
			"platform", platform,
			"url_count", len(urls),
		)
		return existing
	}

	for _, url := range urls {
		postID := scraper.ExtractPostID(platform, url)
		if postID == "" {
			continue
		}

		matches, err := c.posts.FindByPlatformID(ctx, platform, postID)
		if err != nil {
			c.logger.Warn("duplicate lookup failed, treating URL as new",
				"platform", platform,
				"url", url,
				"error", err,
			)
			continue
		}
		if len(matches) == 0 {
			continue
		}
		if len(matches) > 1 {
			// The uniqueness constraint should make this impossible.
			c.logger.Warn("multiple posts match one platform post id",
				"platform", platform,
				"platform_post_id", postID,
				"match_count", len(matches),
			)
		}
		existing[url] = matches[0]
	}

	return existing
}
