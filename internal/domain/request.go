package domain

import (
	"time"
)

// RequestID is a unique identifier for an analysis request.
type RequestID string

// String returns the string representation of the RequestID.
func (id RequestID) String() string {
	return string(id)
}

// AnalysisRequest represents one user-submitted batch job. Posts are
// attached through the request/post link table, and each linked post
// eventually receives one PostAnalysis.
type AnalysisRequest struct {
	ID             RequestID
	UserID         string
	URLsByPlatform map[Platform][]string
	DisplayName    string
	Completed      bool
	CreatedAt      time.Time
}

// URLCount returns the total number of URLs across all platforms.
func (r *AnalysisRequest) URLCount() int {
	total := 0
	for _, urls := range r.URLsByPlatform {
		total += len(urls)
	}
	return total
}

// LinkOutcome reports which tier of the linker resolved a
// (request, post) association.
type LinkOutcome string

const (
	// Linked means the association existed already or the plain add succeeded.
	Linked LinkOutcome = "linked"
	// LinkedViaRetry means the remove/re-add retry tier succeeded.
	LinkedViaRetry LinkOutcome = "linked_via_retry"
	// LinkedViaFallback means the direct idempotent insert succeeded.
	LinkedViaFallback LinkOutcome = "linked_via_fallback"
	// LinkFailed means the association is still not visible after all tiers.
	LinkFailed LinkOutcome = "failed"
)

// Succeeded reports whether the link is visible after the attempt.
func (o LinkOutcome) Succeeded() bool {
	return o != LinkFailed
}

// PostAnalysis is one LLM verdict for a (request, post) pair. Rows are
// immutable after creation.
type PostAnalysis struct {
	ID                string
	RequestID         RequestID
	PostID            PostID
	IsViral           bool
	ViralityReasoning string
	Observations      map[string]any
	Improvements      []string
	ModelName         string
	RawResponse       string
	ProcessingTime    float64
	PromptTokens      int
	CompletionTokens  int
	TotalTokens       int
	CreatedAt         time.Time
}

// ChatSession is a conversational thread seeded from one PostAnalysis.
// At most one session exists per (analysis, user) pair.
type ChatSession struct {
	ID              string
	AnalysisID      string
	UserID          string
	MessageCount    int
	TotalTokens     int
	DurationSeconds float64
	CreatedAt       time.Time
}

// ChatMessage is one message in a chat session.
type ChatMessage struct {
	ID        string
	SessionID string
	Role      string
	Content   string
	Tokens    int
	CreatedAt time.Time
}

const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)
