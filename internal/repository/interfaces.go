package repository

import (
	"context"

	"github.com/viralens/viralens/internal/domain"
)

// PostRepository handles post, media, and comment persistence.
type PostRepository interface {
	// Create persists a post with its nested media and comments.
	// Returns domain.ErrDuplicatePost when the (platform, platform post id)
	// pair already exists.
	Create(ctx context.Context, post *domain.Post, media []domain.PostMedia, comments []domain.PostComment) error

	// Get retrieves a post by ID.
	Get(ctx context.Context, id domain.PostID) (*domain.Post, error)

	// FindByPlatformID returns all posts matching (platform, platform post id),
	// compared case-insensitively. The uniqueness constraint should make
	// more than one match impossible.
	FindByPlatformID(ctx context.Context, platform domain.Platform, platformPostID string) ([]*domain.Post, error)

	// UpdateMetrics replaces only the metrics of an existing post.
	UpdateMetrics(ctx context.Context, id domain.PostID, metrics map[string]any) error

	// AddMedia appends a media row to an existing post.
	AddMedia(ctx context.Context, media *domain.PostMedia) error

	// ListMedia returns a post's media ordered by creation time.
	ListMedia(ctx context.Context, postID domain.PostID) ([]domain.PostMedia, error)

	// SetMediaStorageURL records the durable object-storage URL of a media item.
	SetMediaStorageURL(ctx context.Context, mediaID, storageURL string) error

	// SetMediaTranscript records the transcript of a video media item.
	SetMediaTranscript(ctx context.Context, mediaID, transcript string) error

	// SetTranscript records the post-level transcript and its segments.
	SetTranscript(ctx context.Context, id domain.PostID, transcript string, segments []domain.TranscriptSegment) error

	// ListComments returns up to limit comments, most recent first.
	ListComments(ctx context.Context, postID domain.PostID, limit int) ([]domain.PostComment, error)
}

// RequestRepository handles analysis requests and their post linkage.
type RequestRepository interface {
	// Create persists a new analysis request.
	Create(ctx context.Context, req *domain.AnalysisRequest) error

	// Get retrieves a request by ID.
	Get(ctx context.Context, id domain.RequestID) (*domain.AnalysisRequest, error)

	// SetDisplayName updates the request display name.
	SetDisplayName(ctx context.Context, id domain.RequestID, name string) error

	// MarkCompleted sets the completion flag.
	MarkCompleted(ctx context.Context, id domain.RequestID) error

	// AddLink inserts a request/post association. Errors if it exists.
	AddLink(ctx context.Context, id domain.RequestID, postID domain.PostID) error

	// RemoveLink deletes a request/post association if present.
	RemoveLink(ctx context.Context, id domain.RequestID, postID domain.PostID) error

	// HasLink reports whether the association is visible, always from a
	// fresh read.
	HasLink(ctx context.Context, id domain.RequestID, postID domain.PostID) (bool, error)

	// InsertLinkIfAbsent is the idempotent fallback write: an insert
	// that no-ops on conflict.
	InsertLinkIfAbsent(ctx context.Context, id domain.RequestID, postID domain.PostID) error

	// ListLinkedPostIDs returns the IDs of all posts linked to a request.
	ListLinkedPostIDs(ctx context.Context, id domain.RequestID) ([]domain.PostID, error)
}

// AnalysisRepository handles analysis results and chat sessions.
type AnalysisRepository interface {
	// CreateAnalysis persists one LLM verdict.
	CreateAnalysis(ctx context.Context, analysis *domain.PostAnalysis) error

	// HasAnalysis reports whether a verdict exists for the (request, post) pair.
	HasAnalysis(ctx context.Context, requestID domain.RequestID, postID domain.PostID) (bool, error)

	// GetOrCreateSession returns the chat session for (analysis, user),
	// creating it if absent.
	GetOrCreateSession(ctx context.Context, analysisID, userID string) (*domain.ChatSession, error)

	// CountMessages returns the number of messages in a session.
	CountMessages(ctx context.Context, sessionID string) (int, error)

	// AddMessage appends a message to a session.
	AddMessage(ctx context.Context, msg *domain.ChatMessage) error

	// ListMessages returns a session's messages ordered by creation time.
	ListMessages(ctx context.Context, sessionID string) ([]domain.ChatMessage, error)

	// UpdateSessionAggregates writes recomputed message count, token
	// total, and duration.
	UpdateSessionAggregates(ctx context.Context, session *domain.ChatSession) error
}

// JobRepository manages the pipeline job queue.
type JobRepository interface {
	// Enqueue adds a job to the queue.
	Enqueue(ctx context.Context, job *domain.Job) error

	// Dequeue retrieves the next pending job (FIFO).
	Dequeue(ctx context.Context) (*domain.Job, error)

	// Update modifies job state.
	Update(ctx context.Context, job *domain.Job) error

	// Get retrieves a job by ID.
	Get(ctx context.Context, id domain.JobID) (*domain.Job, error)

	// GetByRequestID finds the job associated with an analysis request.
	GetByRequestID(ctx context.Context, requestID domain.RequestID) (*domain.Job, error)

	// Stats returns queue statistics.
	Stats(ctx context.Context) (*QueueStats, error)
}

// QueueStats contains job queue statistics.
type QueueStats struct {
	Queued     int
	Processing int
	Completed  int
	Failed     int
	Retrying   int
}
