package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/viralens/viralens/internal/domain"
	"github.com/viralens/viralens/internal/downloader"
	"github.com/viralens/viralens/internal/repository"
	"github.com/viralens/viralens/internal/scraper"
	"github.com/viralens/viralens/internal/storage"
)

// Saver normalizes raw scrape results into stored post records and
// keeps the run's media cache populated alongside the object store.
type Saver struct {
	posts      repository.PostRepository
	store      storage.ObjectStore
	downloader downloader.Downloader
	logger     *slog.Logger
}

// NewSaver creates a new saver.
func NewSaver(posts repository.PostRepository, store storage.ObjectStore, dl downloader.Downloader, logger *slog.Logger) *Saver {
	return &Saver{posts: posts, store: store, downloader: dl, logger: logger}
}

// SaveNew creates a post with its media and comments from a raw
// provider payload, then uploads media bytes and fills the cache so the
// analysis phase need not re-fetch. Returns domain.ErrDuplicatePost
// when another writer stored the same (platform, post id) first.
func (s *Saver) SaveNew(ctx context.Context, raw *scraper.RawPost, platform domain.Platform, cache *domain.MediaCache) (*domain.Post, error) {
	post := &domain.Post{
		ID:             domain.PostID(uuid.NewString()),
		Platform:       platform,
		PlatformPostID: raw.PlatformPostID,
		Username:       raw.Username,
		Content:        raw.Content,
		Metrics:        NormalizeMetrics(platform, raw.Metrics),
		URL:            raw.URL,
		PostedAt:       raw.PostedAt,
	}

	var media []domain.PostMedia
	for _, rawMedia := range raw.Media {
		media = append(media, domain.PostMedia{
			ID:        uuid.NewString(),
			PostID:    post.ID,
			Type:      mediaTypeFor(rawMedia.Type),
			SourceURL: rawMedia.URL,
		})
		if rawMedia.Type == "video" && rawMedia.Thumbnail != "" {
			media = append(media, domain.PostMedia{
				ID:        uuid.NewString(),
				PostID:    post.ID,
				Type:      domain.MediaTypeVideoThumbnail,
				SourceURL: rawMedia.Thumbnail,
			})
		}
	}

	var comments []domain.PostComment
	for _, payload := range raw.Comments {
		comments = append(comments, domain.PostComment{
			ID:      uuid.NewString(),
			PostID:  post.ID,
			Payload: payload,
		})
	}

	if err := s.posts.Create(ctx, post, media, comments); err != nil {
		return nil, err
	}

	// Media rows are durable now; upload failures leave storage_url
	// empty for that item but never fail the save.
	for _, m := range media {
		if err := s.ingestMedia(ctx, post.ID, m, cache); err != nil {
			s.logger.Warn("media ingestion failed",
				"post_id", post.ID,
				"media_id", m.ID,
				"source_url", m.SourceURL,
				"error", err,
			)
		}
	}

	return post, nil
}

func (s *Saver) ingestMedia(ctx context.Context, postID domain.PostID, media domain.PostMedia, cache *domain.MediaCache) error {
	if media.SourceURL == "" {
		return nil
	}

	data, contentType, err := s.downloader.Fetch(ctx, media.SourceURL)
	if err != nil {
		return fmt.Errorf("fetch media: %w", err)
	}
	if contentType == "" {
		contentType = guessContentType(media.Type)
	}

	storageURL, err := s.store.Upload(ctx, postID, media.ID, contentType, data)
	if err != nil {
		return fmt.Errorf("upload media: %w", err)
	}
	if err := s.posts.SetMediaStorageURL(ctx, media.ID, storageURL); err != nil {
		return fmt.Errorf("record storage URL: %w", err)
	}

	cache.Put(postID, media.ID, domain.MediaBlob{
		Data:     data,
		MimeType: contentType,
		Subtype:  string(media.Type),
	})
	return nil
}

// UpdateMetrics replaces a post's metrics on the fast path. Media rows
// are never touched here.
func (s *Saver) UpdateMetrics(ctx context.Context, post *domain.Post, metrics map[string]any) error {
	normalized := NormalizeMetrics(post.Platform, metrics)
	if err := s.posts.UpdateMetrics(ctx, post.ID, normalized); err != nil {
		return err
	}
	post.Metrics = normalized
	return nil
}

// ReuseMedia fills the cache for an existing post's already-uploaded
// media without re-fetching from the original provider. Bytes already
// cached are left alone; the rest are pulled from the object store.
func (s *Saver) ReuseMedia(ctx context.Context, post *domain.Post, cache *domain.MediaCache) error {
	media, err := s.posts.ListMedia(ctx, post.ID)
	if err != nil {
		return fmt.Errorf("list media: %w", err)
	}

	for _, m := range media {
		if m.StorageURL == "" || cache.Has(post.ID, m.ID) {
			continue
		}

		data, contentType, err := s.store.Download(ctx, m.StorageURL)
		if err != nil {
			s.logger.Warn("media reuse failed",
				"post_id", post.ID,
				"media_id", m.ID,
				"storage_url", m.StorageURL,
				"error", err,
			)
			continue
		}
		cache.Put(post.ID, m.ID, domain.MediaBlob{
			Data:     data,
			MimeType: contentType,
			Subtype:  string(m.Type),
		})
	}
	return nil
}

// NormalizeMetrics maps provider metric names onto the canonical keys
// the analyzer reads. Unknown keys pass through untouched.
func NormalizeMetrics(platform domain.Platform, raw map[string]any) map[string]any {
	metrics := make(map[string]any, len(raw))
	for key, value := range raw {
		switch key {
		case "like_count", "favorite_count":
			metrics["likes"] = value
		case "comment_count", "reply_count":
			metrics["comments"] = value
		case "view_count", "video_view_count", "play_count":
			metrics["views"] = value
		case "retweet_count":
			metrics["retweets"] = value
		default:
			metrics[key] = value
		}
	}

	// YouTube carries the video length inside metrics; the analyzer
	// reads it for that platform only.
	if platform == domain.PlatformYouTube {
		if duration, ok := metrics["duration"]; ok {
			metrics["video_length"] = duration
			delete(metrics, "duration")
		}
	}
	return metrics
}

func mediaTypeFor(rawType string) domain.MediaType {
	if strings.EqualFold(rawType, "video") {
		return domain.MediaTypeVideo
	}
	return domain.MediaTypeImage
}

func guessContentType(mediaType domain.MediaType) string {
	if mediaType == domain.MediaTypeVideo {
		return "video/mp4"
	}
	return "image/jpeg"
}

// isoTimestamp formats an optional time as ISO-8601, or "" when absent.
func isoTimestamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
