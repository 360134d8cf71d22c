package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/viralens/viralens/internal/domain"
	"github.com/viralens/viralens/internal/repository"
	"github.com/viralens/viralens/internal/scraper"
)

// ScraperFactory constructs the scraper for a platform. Construction
// failure is a platform-level error: every URL for that platform fails.
type ScraperFactory func(platform domain.Platform) (scraper.Scraper, error)

// CollectResult aggregates one collection run across all platforms.
type CollectResult struct {
	Posts       []*domain.Post
	FailedURLs  []string
	APICalls    int
	FastPathIDs map[domain.PostID]bool
}

// Collector orchestrates duplicate-check, scrape, save, and link per
// platform, splitting URLs between the fast path (metrics refresh on an
// existing post) and the slow path (full scrape and ingestion).
type Collector struct {
	checker  *DuplicateChecker
	saver    *Saver
	linker   *Linker
	posts    repository.PostRepository
	scrapers ScraperFactory
	logger   *slog.Logger
}

// NewCollector creates a new social collector.
func NewCollector(checker *DuplicateChecker, saver *Saver, linker *Linker, posts repository.PostRepository, scrapers ScraperFactory, logger *slog.Logger) *Collector {
	return &Collector{
		checker:  checker,
		saver:    saver,
		linker:   linker,
		posts:    posts,
		scrapers: scrapers,
		logger:   logger,
	}
}

// Collect processes every URL of the request, platform by platform.
// Platforms are isolated from each other and URLs within a platform
// are isolated from each other; failures surface only in the result's
// accounting, never as an error.
func (c *Collector) Collect(ctx context.Context, request *domain.AnalysisRequest, cache *domain.MediaCache) *CollectResult {
	result := &CollectResult{
		FastPathIDs: make(map[domain.PostID]bool),
	}

	for platform, urls := range request.URLsByPlatform {
		c.collectPlatform(ctx, request.ID, platform, urls, cache, result)
	}
	return result
}

func (c *Collector) collectPlatform(ctx context.Context, requestID domain.RequestID, platform domain.Platform, urls []string, cache *domain.MediaCache, result *CollectResult) {
	sc, err := c.scrapers(platform)
	if err != nil {
		c.logger.Error("scraper construction failed, failing all platform URLs",
			"request_id", requestID,
			"platform", platform,
			"url_count", len(urls),
			"error", err,
		)
		result.FailedURLs = append(result.FailedURLs, urls...)
		return
	}

	existing := c.checker.Check(ctx, platform, urls)

	var slowURLs []string
	for _, url := range urls {
		post := existing[url]
		if post == nil {
			slowURLs = append(slowURLs, url)
			continue
		}
		c.refreshExisting(ctx, requestID, sc, url, post, cache, result)
	}

	if len(slowURLs) == 0 {
		return
	}

	// One provider call per URL in the current design.
	scraped := sc.ScrapeBatch(ctx, slowURLs)
	result.APICalls += len(slowURLs)

	for _, scrapeResult := range scraped {
		if scrapeResult.Failed() {
			c.logger.Warn("scrape failed",
				"request_id", requestID,
				"platform", platform,
				"url", scrapeResult.URL,
				"error", scrapeResult.Error,
			)
			result.FailedURLs = append(result.FailedURLs, scrapeResult.URL)
			continue
		}
		c.saveScraped(ctx, requestID, platform, scrapeResult, cache, result)
	}
}

// refreshExisting runs the fast path for one URL: metrics refresh,
// media reuse, and link. Any failure marks only this URL as failed.
func (c *Collector) refreshExisting(ctx context.Context, requestID domain.RequestID, sc scraper.Scraper, url string, post *domain.Post, cache *domain.MediaCache, result *CollectResult) {
	refresh := sc.RefreshOne(ctx, url)
	result.APICalls++

	if !refresh.Success {
		c.logger.Warn("fast-path refresh failed",
			"request_id", requestID,
			"post_id", post.ID,
			"url", url,
			"error", refresh.Error,
		)
		result.FailedURLs = append(result.FailedURLs, url)
		return
	}

	if err := c.saver.UpdateMetrics(ctx, post, refresh.Metrics); err != nil {
		c.logger.Warn("fast-path metrics update failed",
			"request_id", requestID,
			"post_id", post.ID,
			"url", url,
			"error", err,
		)
		result.FailedURLs = append(result.FailedURLs, url)
		return
	}
	if err := c.saver.ReuseMedia(ctx, post, cache); err != nil {
		c.logger.Warn("fast-path media reuse failed",
			"request_id", requestID,
			"post_id", post.ID,
			"url", url,
			"error", err,
		)
		result.FailedURLs = append(result.FailedURLs, url)
		return
	}
	if outcome := c.linker.Link(ctx, requestID, post.ID); !outcome.Succeeded() {
		result.FailedURLs = append(result.FailedURLs, url)
		return
	}

	result.Posts = append(result.Posts, post)
	result.FastPathIDs[post.ID] = true
}

// saveScraped runs the slow path for one successfully scraped URL. A
// duplicate-constraint violation means another writer won the race
// past the duplicate check, so the URL downgrades to the fast path.
func (c *Collector) saveScraped(ctx context.Context, requestID domain.RequestID, platform domain.Platform, scrapeResult *scraper.ScrapeResult, cache *domain.MediaCache, result *CollectResult) {
	post, err := c.saver.SaveNew(ctx, scrapeResult.Raw, platform, cache)
	if errors.Is(err, domain.ErrDuplicatePost) {
		c.downgradeToFastPath(ctx, requestID, platform, scrapeResult, cache, result)
		return
	}
	if err != nil {
		c.logger.Warn("post persistence failed",
			"request_id", requestID,
			"platform", platform,
			"url", scrapeResult.URL,
			"error", err,
		)
		result.FailedURLs = append(result.FailedURLs, scrapeResult.URL)
		return
	}

	if outcome := c.linker.Link(ctx, requestID, post.ID); !outcome.Succeeded() {
		result.FailedURLs = append(result.FailedURLs, scrapeResult.URL)
		return
	}
	result.Posts = append(result.Posts, post)
}

func (c *Collector) downgradeToFastPath(ctx context.Context, requestID domain.RequestID, platform domain.Platform, scrapeResult *scraper.ScrapeResult, cache *domain.MediaCache, result *CollectResult) {
	matches, err := c.posts.FindByPlatformID(ctx, platform, scrapeResult.Raw.PlatformPostID)
	if err != nil || len(matches) == 0 {
		c.logger.Warn("duplicate post not found after constraint violation",
			"request_id", requestID,
			"platform", platform,
			"url", scrapeResult.URL,
			"error", err,
		)
		result.FailedURLs = append(result.FailedURLs, scrapeResult.URL)
		return
	}
	post := matches[0]

	c.logger.Info("slow-path save raced with concurrent writer, downgrading to fast path",
		"request_id", requestID,
		"post_id", post.ID,
		"url", scrapeResult.URL,
	)

	// The scrape payload already carries fresh metrics; no extra
	// provider call needed.
	if err := c.saver.UpdateMetrics(ctx, post, scrapeResult.Raw.Metrics); err != nil {
		result.FailedURLs = append(result.FailedURLs, scrapeResult.URL)
		return
	}
	if err := c.saver.ReuseMedia(ctx, post, cache); err != nil {
		result.FailedURLs = append(result.FailedURLs, scrapeResult.URL)
		return
	}
	if outcome := c.linker.Link(ctx, requestID, post.ID); !outcome.Succeeded() {
		result.FailedURLs = append(result.FailedURLs, scrapeResult.URL)
		return
	}

	result.Posts = append(result.Posts, post)
	result.FastPathIDs[post.ID] = true
}
