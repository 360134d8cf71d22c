package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/viralens/viralens/internal/domain"
	"github.com/viralens/viralens/internal/repository"
	"github.com/viralens/viralens/pkg/frames"
)

// Extractor derives representative video frames for posts whose media
// was freshly ingested, so the vision model has stills to look at.
type Extractor struct {
	posts      repository.PostRepository
	frames     frames.Client
	frameCount int
	logger     *slog.Logger
}

// NewExtractor creates a new media extractor. frameCount falls back to
// 5 when not positive.
func NewExtractor(posts repository.PostRepository, framesClient frames.Client, frameCount int, logger *slog.Logger) *Extractor {
	if frameCount <= 0 {
		frameCount = 5
	}
	return &Extractor{posts: posts, frames: framesClient, frameCount: frameCount, logger: logger}
}

// Extract derives frames for YouTube posts outside the fast-path set.
// Fast-path posts already have cached bytes from media reuse. One
// post's extraction failure is logged and skipped, never aborting the
// batch.
func (e *Extractor) Extract(ctx context.Context, requestID domain.RequestID, posts []*domain.Post, cache *domain.MediaCache, fastPathIDs map[domain.PostID]bool) {
	for _, post := range posts {
		if post.Platform != domain.PlatformYouTube || fastPathIDs[post.ID] {
			continue
		}
		if err := e.extractPost(ctx, post, cache); err != nil {
			e.logger.Warn("frame extraction failed, continuing without frames",
				"request_id", requestID,
				"post_id", post.ID,
				"error", err,
			)
		}
	}
}

func (e *Extractor) extractPost(ctx context.Context, post *domain.Post, cache *domain.MediaCache) error {
	media, err := e.posts.ListMedia(ctx, post.ID)
	if err != nil {
		return err
	}

	for _, m := range media {
		if m.Type != domain.MediaTypeVideo || m.SourceURL == "" {
			continue
		}

		result, err := e.frames.Extract(ctx, m.SourceURL, post.ID.String(), e.frameCount)
		if err != nil {
			return err
		}

		for _, frame := range result.Frames {
			frameMedia := &domain.PostMedia{
				ID:            uuid.NewString(),
				PostID:        post.ID,
				Type:          domain.MediaTypeVideoFrame,
				SourceURL:     frame.URL,
				ParentMediaID: m.ID,
			}
			if err := e.posts.AddMedia(ctx, frameMedia); err != nil {
				return err
			}
			cache.Put(post.ID, frameMedia.ID, domain.MediaBlob{
				Data:     frame.Data,
				MimeType: frame.MimeType,
				Subtype:  string(domain.MediaTypeVideoFrame),
			})
		}
	}
	return nil
}

// HasVideo reports whether any post carries at least one video-kind
// media item. Used to decide whether the transcription phase runs.
func (e *Extractor) HasVideo(ctx context.Context, posts []*domain.Post) bool {
	for _, post := range posts {
		media, err := e.posts.ListMedia(ctx, post.ID)
		if err != nil {
			e.logger.Warn("media lookup failed during video check",
				"post_id", post.ID,
				"error", err,
			)
			continue
		}
		if domain.HasVideoMedia(media) {
			return true
		}
	}
	return false
}
