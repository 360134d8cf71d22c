package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/viralens/viralens/internal/domain"
	"github.com/viralens/viralens/internal/repository"
	"github.com/viralens/viralens/pkg/transcribe"
)

// PipelineResult is the final accounting for one processed request.
type PipelineResult struct {
	RequestID          domain.RequestID
	Posts              []*domain.Post
	FailedURLs         []string
	APICalls           int
	SuccessfulAnalyses int
	FailedAnalyses     int
	LinkedCount        int
}

// Pipeline runs one analysis request end-to-end: collection, frame
// extraction, transcription, LLM analysis, and completion bookkeeping.
// One worker owns one run; the media cache never leaves it.
type Pipeline struct {
	requests    repository.RequestRepository
	posts       repository.PostRepository
	collector   *Collector
	extractor   *Extractor
	analyzer    *Analyzer
	linker      *Linker
	transcriber transcribe.Client
	logger      *slog.Logger
}

// NewPipeline creates a new request processing pipeline.
func NewPipeline(
	requests repository.RequestRepository,
	posts repository.PostRepository,
	collector *Collector,
	extractor *Extractor,
	analyzer *Analyzer,
	linker *Linker,
	transcriber transcribe.Client,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		requests:    requests,
		posts:       posts,
		collector:   collector,
		extractor:   extractor,
		analyzer:    analyzer,
		linker:      linker,
		transcriber: transcriber,
		logger:      logger,
	}
}

// Process runs the full pipeline for one request. Partial progress is
// durable: whatever posts and analyses were committed stay committed
// even if a later phase errors.
func (p *Pipeline) Process(ctx context.Context, requestID domain.RequestID) (*PipelineResult, error) {
	request, err := p.requests.Get(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load request: %w", err)
	}

	logger := p.logger.With("request_id", requestID)
	logger.Info("pipeline started", "url_count", request.URLCount())

	cache := domain.NewMediaCache()

	collected := p.collector.Collect(ctx, request, cache)
	logger.Info("collection finished",
		"posts", len(collected.Posts),
		"failed_urls", len(collected.FailedURLs),
		"api_calls", collected.APICalls,
		"fast_path", len(collected.FastPathIDs),
	)

	p.extractor.Extract(ctx, request.ID, collected.Posts, cache, collected.FastPathIDs)

	if p.transcriber != nil && p.extractor.HasVideo(ctx, collected.Posts) {
		p.transcribePosts(ctx, collected, cache, logger)
	}

	analyzed := p.analyzer.Analyze(ctx, request, collected.Posts, cache)
	logger.Info("analysis finished",
		"succeeded", analyzed.Succeeded,
		"failed", analyzed.Failed,
	)

	linked := p.linker.VerifyAndRelink(ctx, request.ID, collected.Posts)

	p.finishRequest(ctx, request, collected.Posts, logger)

	return &PipelineResult{
		RequestID:          request.ID,
		Posts:              collected.Posts,
		FailedURLs:         collected.FailedURLs,
		APICalls:           collected.APICalls,
		SuccessfulAnalyses: analyzed.Succeeded,
		FailedAnalyses:     analyzed.Failed,
		LinkedCount:        linked,
	}, nil
}

// transcribePosts fills in transcripts for freshly ingested video media
// using the cached bytes. Fast-path posts keep whatever transcripts
// they already have.
func (p *Pipeline) transcribePosts(ctx context.Context, collected *CollectResult, cache *domain.MediaCache, logger *slog.Logger) {
	for _, post := range collected.Posts {
		if collected.FastPathIDs[post.ID] {
			continue
		}

		media, err := p.posts.ListMedia(ctx, post.ID)
		if err != nil {
			logger.Warn("media lookup failed before transcription",
				"post_id", post.ID,
				"error", err,
			)
			continue
		}

		for _, m := range media {
			if m.Type != domain.MediaTypeVideo || m.Transcript != "" {
				continue
			}
			if err := p.transcribeMedia(ctx, post, m, cache); err != nil {
				logger.Warn("transcription failed, continuing without transcript",
					"post_id", post.ID,
					"media_id", m.ID,
					"error", err,
				)
			}
		}
	}
}

func (p *Pipeline) transcribeMedia(ctx context.Context, post *domain.Post, media domain.PostMedia, cache *domain.MediaCache) error {
	var videoBytes []byte
	for _, blob := range cache.Get(post.ID, media.ID) {
		if blob.Subtype == string(domain.MediaTypeVideo) {
			videoBytes = blob.Data
			break
		}
	}
	if len(videoBytes) == 0 {
		return fmt.Errorf("no cached video bytes for media %s", media.ID)
	}

	result, err := p.transcriber.Transcribe(ctx, transcribe.TranscriptionRequest{
		Data:     videoBytes,
		Filename: media.ID + ".mp4",
	})
	if err != nil {
		return err
	}
	if result.Text == "" {
		return nil
	}

	if err := p.posts.SetMediaTranscript(ctx, media.ID, result.Text); err != nil {
		return err
	}

	// YouTube keeps a post-level transcript too; fill it on first use.
	if post.Platform == domain.PlatformYouTube && post.Transcript == "" {
		segments := make([]domain.TranscriptSegment, 0, len(result.Segments))
		for _, s := range result.Segments {
			segments = append(segments, domain.TranscriptSegment{Start: s.Start, End: s.End, Text: s.Text})
		}
		if err := p.posts.SetTranscript(ctx, post.ID, result.Text, segments); err != nil {
			return err
		}
		post.Transcript = result.Text
		post.TranscriptSegments = segments
	}
	return nil
}

// finishRequest derives the display name from the first collected post
// and flips the completion flag.
func (p *Pipeline) finishRequest(ctx context.Context, request *domain.AnalysisRequest, posts []*domain.Post, logger *slog.Logger) {
	if request.DisplayName == "" && len(posts) > 0 {
		first := posts[0]
		name := fmt.Sprintf("%s (%s)", first.Username, first.Platform)
		if err := p.requests.SetDisplayName(ctx, request.ID, name); err != nil {
			logger.Warn("display name update failed", "error", err)
		}
	}

	if err := p.requests.MarkCompleted(ctx, request.ID); err != nil {
		logger.Warn("completion flag update failed", "error", err)
	}
}
