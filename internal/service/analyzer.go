package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/viralens/viralens/internal/domain"
	"github.com/viralens/viralens/internal/repository"
	"github.com/viralens/viralens/pkg/llm"
)

// assistantPlaceholder seeds the chat when the model returned an empty
// raw response.
const assistantPlaceholder = "Analysis complete."

// Analyzer runs the LLM virality verdict for each collected post and
// persists the result plus a seeded chat session.
type Analyzer struct {
	analyses    repository.AnalysisRepository
	posts       repository.PostRepository
	llm         llm.Client
	maxComments int
	logger      *slog.Logger
}

// NewAnalyzer creates a new analysis processor. maxComments falls back
// to 5 when not positive.
func NewAnalyzer(analyses repository.AnalysisRepository, posts repository.PostRepository, llmClient llm.Client, maxComments int, logger *slog.Logger) *Analyzer {
	if maxComments <= 0 {
		maxComments = 5
	}
	return &Analyzer{
		analyses:    analyses,
		posts:       posts,
		llm:         llmClient,
		maxComments: maxComments,
		logger:      logger,
	}
}

// AnalyzeOutcome is the accounting for one analysis run.
type AnalyzeOutcome struct {
	Results   []*domain.PostAnalysis
	Succeeded int
	Failed    int
}

// Analyze runs the verdict for every post independently. One post's
// failure is logged and skipped. Posts that already have an analysis
// for this request are counted as successes without re-invoking the
// model.
func (a *Analyzer) Analyze(ctx context.Context, request *domain.AnalysisRequest, posts []*domain.Post, cache *domain.MediaCache) *AnalyzeOutcome {
	outcome := &AnalyzeOutcome{}

	for i, post := range posts {
		analysis, err := a.analyzePost(ctx, request, post, cache)
		if err != nil {
			a.logger.Warn("post analysis failed",
				"request_id", request.ID,
				"post_id", post.ID,
				"post_index", i,
				"error", err,
			)
			outcome.Failed++
			continue
		}

		outcome.Succeeded++
		if analysis != nil {
			outcome.Results = append(outcome.Results, analysis)
		}
	}

	return outcome
}

// analyzePost returns (nil, nil) when the post already has an analysis
// for this request.
func (a *Analyzer) analyzePost(ctx context.Context, request *domain.AnalysisRequest, post *domain.Post, cache *domain.MediaCache) (*domain.PostAnalysis, error) {
	exists, err := a.analyses.HasAnalysis(ctx, request.ID, post.ID)
	if err != nil {
		return nil, fmt.Errorf("check existing analysis: %w", err)
	}
	if exists {
		a.logger.Info("analysis already exists, skipping",
			"request_id", request.ID,
			"post_id", post.ID,
		)
		return nil, nil
	}

	media, err := a.posts.ListMedia(ctx, post.ID)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}

	images := a.prepareMedia(post, media, cache)
	postData, err := a.preparePostData(ctx, post)
	if err != nil {
		return nil, fmt.Errorf("prepare post data: %w", err)
	}
	transcript := prepareTranscript(post, media)

	var videoLength float64
	if post.Platform == domain.PlatformYouTube {
		videoLength = metricFloat(post.Metrics, "video_length")
	}

	result, err := a.llm.Analyze(ctx, llm.AnalysisRequest{
		Platform:    string(post.Platform),
		PostData:    postData,
		Images:      images,
		Transcript:  transcript,
		VideoLength: videoLength,
		RequestID:   request.ID.String(),
		PostID:      post.ID.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrLLMFailed, err)
	}

	// Viral content is not annotated with things to improve.
	if result.IsViral && len(result.Improvements) > 0 {
		result.Improvements = nil
	}

	analysis := &domain.PostAnalysis{
		ID:                uuid.NewString(),
		RequestID:         request.ID,
		PostID:            post.ID,
		IsViral:           result.IsViral,
		ViralityReasoning: result.ViralityReasoning,
		Observations:      result.Observations,
		Improvements:      result.Improvements,
		ModelName:         result.Metadata.Model,
		RawResponse:       result.Metadata.RawResponse,
		ProcessingTime:    result.Metadata.ProcessingTime,
		PromptTokens:      result.Metadata.Usage.PromptTokens,
		CompletionTokens:  result.Metadata.Usage.CompletionTokens,
		TotalTokens:       result.Metadata.Usage.TotalTokens,
	}
	if err := a.analyses.CreateAnalysis(ctx, analysis); err != nil {
		return nil, fmt.Errorf("persist analysis: %w", err)
	}

	// The analysis is durable; seeding failures are logged and
	// swallowed.
	if err := a.seedChat(ctx, analysis, request.UserID, post.URL); err != nil {
		a.logger.Warn("chat seeding failed",
			"request_id", request.ID,
			"post_id", post.ID,
			"analysis_id", analysis.ID,
			"error", err,
		)
	}

	return analysis, nil
}

// prepareMedia collects cached media bytes for the prompt, tagging
// video frames with their source video's 1-based index so the model
// can tell frames of different videos apart in a multi-video post.
func (a *Analyzer) prepareMedia(post *domain.Post, media []domain.PostMedia, cache *domain.MediaCache) []llm.Image {
	videoIndex := videoIndices(media)
	videoCount := len(videoIndex)

	var images []llm.Image
	for _, m := range media {
		blobs := cache.Get(post.ID, m.ID)
		if len(blobs) == 0 {
			// Caching must have happened upstream; no re-fetch here.
			a.logger.Warn("media bytes missing from cache, skipping",
				"post_id", post.ID,
				"media_id", m.ID,
				"media_type", m.Type,
			)
			continue
		}

		var label string
		if m.Type == domain.MediaTypeVideoFrame && m.ParentMediaID != "" {
			if idx, ok := videoIndex[m.ParentMediaID]; ok {
				label = fmt.Sprintf("Video %d of %d frame", idx, videoCount)
			}
		}

		for _, blob := range blobs {
			// The vision API takes images only; raw video bytes stay
			// in the cache for the transcription phase.
			if !strings.HasPrefix(blob.MimeType, "image/") {
				continue
			}
			images = append(images, llm.Image{Data: blob.Data, MimeType: blob.MimeType, Label: label})
		}
	}
	return images
}

// videoIndices maps each video media id to its 1-based index, ordered
// by creation time.
func videoIndices(media []domain.PostMedia) map[string]int {
	var videos []domain.PostMedia
	for _, m := range media {
		if m.Type == domain.MediaTypeVideo {
			videos = append(videos, m)
		}
	}
	sort.SliceStable(videos, func(i, j int) bool {
		return videos[i].CreatedAt.Before(videos[j].CreatedAt)
	})

	index := make(map[string]int, len(videos))
	for i, v := range videos {
		index[v.ID] = i + 1
	}
	return index
}

// preparePostData builds the textual payload: content, timestamp,
// metrics, and the most recent comments normalized across the
// heterogeneous payload shapes the scrapers produce.
func (a *Analyzer) preparePostData(ctx context.Context, post *domain.Post) (llm.PostData, error) {
	comments, err := a.posts.ListComments(ctx, post.ID, a.maxComments)
	if err != nil {
		return llm.PostData{}, err
	}

	normalized := make([]llm.Comment, 0, len(comments))
	for _, comment := range comments {
		normalized = append(normalized, normalizeComment(comment.Payload))
	}

	return llm.PostData{
		Content:  post.Content,
		PostedAt: isoTimestamp(post.PostedAt),
		Metrics:  post.Metrics,
		Comments: normalized,
	}, nil
}

// normalizeComment extracts comment fields best-effort, trying
// alternate key names in priority order.
func normalizeComment(payload map[string]any) llm.Comment {
	comment := llm.Comment{Author: "Unknown"}

	for _, key := range []string{"text", "comment", "content"} {
		if v, ok := payload[key].(string); ok && v != "" {
			comment.Text = v
			break
		}
	}
	for _, key := range []string{"author", "username", "owner", "user"} {
		switch v := payload[key].(type) {
		case string:
			if v != "" {
				comment.Author = v
			}
		case map[string]any:
			if name, ok := v["username"].(string); ok && name != "" {
				comment.Author = name
			}
		default:
			continue
		}
		if comment.Author != "Unknown" {
			break
		}
	}
	for _, key := range []string{"likes", "like_count", "likes_count"} {
		if v, ok := asInt64(payload[key]); ok {
			comment.Likes = v
			break
		}
	}
	return comment
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// prepareTranscript concatenates transcripts from all video media,
// labeling each when multiple videos exist. Falls back to the
// post-level transcript when no video media carries one (YouTube
// fetches transcripts at post level).
func prepareTranscript(post *domain.Post, media []domain.PostMedia) string {
	var videos []domain.PostMedia
	for _, m := range media {
		if m.Type == domain.MediaTypeVideo && m.Transcript != "" {
			videos = append(videos, m)
		}
	}
	sort.SliceStable(videos, func(i, j int) bool {
		return videos[i].CreatedAt.Before(videos[j].CreatedAt)
	})

	if len(videos) == 0 {
		return post.Transcript
	}
	if len(videos) == 1 {
		return videos[0].Transcript
	}

	parts := make([]string, 0, len(videos))
	for i, v := range videos {
		parts = append(parts, fmt.Sprintf("[Video %d of %d Transcript]\n%s", i+1, len(videos), v.Transcript))
	}
	return strings.Join(parts, "\n\n")
}

func metricFloat(metrics map[string]any, key string) float64 {
	switch v := metrics[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}

// seedChat creates the chat session for (analysis, user) and, only if
// it has no messages yet, seeds it with the post URL and the model's
// raw response, then recomputes the session aggregates.
func (a *Analyzer) seedChat(ctx context.Context, analysis *domain.PostAnalysis, userID, postURL string) error {
	session, err := a.analyses.GetOrCreateSession(ctx, analysis.ID, userID)
	if err != nil {
		return fmt.Errorf("get or create session: %w", err)
	}

	count, err := a.analyses.CountMessages(ctx, session.ID)
	if err != nil {
		return fmt.Errorf("count messages: %w", err)
	}
	if count == 0 {
		assistant := analysis.RawResponse
		if assistant == "" {
			assistant = assistantPlaceholder
		}

		if err := a.analyses.AddMessage(ctx, &domain.ChatMessage{
			SessionID: session.ID,
			Role:      domain.ChatRoleUser,
			Content:   postURL,
		}); err != nil {
			return fmt.Errorf("add user message: %w", err)
		}
		if err := a.analyses.AddMessage(ctx, &domain.ChatMessage{
			SessionID: session.ID,
			Role:      domain.ChatRoleAssistant,
			Content:   assistant,
			Tokens:    analysis.CompletionTokens,
		}); err != nil {
			return fmt.Errorf("add assistant message: %w", err)
		}
	}

	messages, err := a.analyses.ListMessages(ctx, session.ID)
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}

	session.MessageCount = len(messages)
	session.TotalTokens = 0
	for _, msg := range messages {
		session.TotalTokens += msg.Tokens
	}
	session.DurationSeconds = 0
	if len(messages) > 1 {
		first := messages[0].CreatedAt
		last := messages[len(messages)-1].CreatedAt
		session.DurationSeconds = last.Sub(first).Seconds()
	}

	if err := a.analyses.UpdateSessionAggregates(ctx, session); err != nil {
		return fmt.Errorf("update session aggregates: %w", err)
	}
	return nil
}
