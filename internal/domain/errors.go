package domain

import "errors"

// Domain errors.
var (
	// ErrPostNotFound is returned when a post cannot be found.
	ErrPostNotFound = errors.New("post not found")

	// ErrRequestNotFound is returned when an analysis request cannot be found.
	ErrRequestNotFound = errors.New("analysis request not found")

	// ErrDuplicatePost is returned when inserting a post whose
	// (platform, platform post id) pair already exists.
	ErrDuplicatePost = errors.New("post already exists")

	// ErrMediaNotFound is returned when a media item cannot be found.
	ErrMediaNotFound = errors.New("media not found")

	// ErrUnknownPlatform is returned for a platform tag outside the supported set.
	ErrUnknownPlatform = errors.New("unknown platform")

	// ErrInvalidPostURL is returned when no platform-native id can be
	// extracted from a URL.
	ErrInvalidPostURL = errors.New("invalid post URL")

	// ErrAnalysisNotFound is returned when a post analysis cannot be found.
	ErrAnalysisNotFound = errors.New("analysis not found")

	// ErrNoJobs is returned when there are no jobs to process.
	ErrNoJobs = errors.New("no jobs available")

	// ErrJobNotFound is returned when a job cannot be found.
	ErrJobNotFound = errors.New("job not found")

	// ErrScrapeFailed is returned when the scraping provider call fails.
	ErrScrapeFailed = errors.New("scrape failed")

	// ErrLLMFailed is returned when the LLM invocation fails.
	ErrLLMFailed = errors.New("llm call failed")

	// ErrRateLimited is returned when rate limited by an external service.
	ErrRateLimited = errors.New("rate limited")
)

// PostError wraps an error with post context.
type PostError struct {
	PostID PostID
	Op     string
	Err    error
}

func (e *PostError) Error() string {
	if e.PostID != "" {
		return e.Op + " [" + e.PostID.String() + "]: " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *PostError) Unwrap() error {
	return e.Err
}

// NewPostError creates a new PostError.
func NewPostError(postID PostID, op string, err error) *PostError {
	return &PostError{
		PostID: postID,
		Op:     op,
		Err:    err,
	}
}
