package service

import (
	"context"
	"log/slog"

	"github.com/viralens/viralens/internal/domain"
	"github.com/viralens/viralens/internal/repository"
)

// Linker maintains the request/post association table. The linkage is
// what the UI uses to show which posts belong to which request, so a
// silently dropped link makes an analyzed post invisible to its own
// request. Every write is verified against a fresh read.
type Linker struct {
	requests repository.RequestRepository
	logger   *slog.Logger
}

// NewLinker creates a new linker.
func NewLinker(requests repository.RequestRepository, logger *slog.Logger) *Linker {
	return &Linker{requests: requests, logger: logger}
}

// Link associates a post with a request, idempotently. It escalates
// through add, remove/re-add, and a direct idempotent insert until the
// link is visible, and reports which tier resolved it.
func (l *Linker) Link(ctx context.Context, requestID domain.RequestID, postID domain.PostID) domain.LinkOutcome {
	// Tier 1: already linked.
	if linked, err := l.requests.HasLink(ctx, requestID, postID); err == nil && linked {
		return domain.Linked
	}

	// Tier 2: plain add, then verify.
	if err := l.requests.AddLink(ctx, requestID, postID); err != nil {
		l.logger.Warn("link add failed",
			"request_id", requestID,
			"post_id", postID,
			"error", err,
		)
	}
	if l.verified(ctx, requestID, postID) {
		return domain.Linked
	}

	// Tier 3: remove and re-add, guarding against a stale read or an
	// add that silently no-oped.
	if err := l.requests.RemoveLink(ctx, requestID, postID); err != nil {
		l.logger.Warn("link remove failed during retry",
			"request_id", requestID,
			"post_id", postID,
			"error", err,
		)
	}
	if err := l.requests.AddLink(ctx, requestID, postID); err != nil {
		l.logger.Warn("link re-add failed during retry",
			"request_id", requestID,
			"post_id", postID,
			"error", err,
		)
	}
	if l.verified(ctx, requestID, postID) {
		return domain.LinkedViaRetry
	}

	// Tier 4: direct idempotent insert at the storage layer.
	if err := l.requests.InsertLinkIfAbsent(ctx, requestID, postID); err != nil {
		l.logger.Warn("link fallback insert failed",
			"request_id", requestID,
			"post_id", postID,
			"error", err,
		)
	}
	if l.verified(ctx, requestID, postID) {
		return domain.LinkedViaFallback
	}

	l.logger.Error("link not visible after all tiers, data integrity at risk",
		"request_id", requestID,
		"post_id", postID,
	)
	return domain.LinkFailed
}

// verified checks link visibility with a fresh read.
func (l *Linker) verified(ctx context.Context, requestID domain.RequestID, postID domain.PostID) bool {
	linked, err := l.requests.HasLink(ctx, requestID, postID)
	if err != nil {
		l.logger.Warn("link verification read failed",
			"request_id", requestID,
			"post_id", postID,
			"error", err,
		)
		return false
	}
	return linked
}

// VerifyAndRelink re-checks every expected post and re-links any that
// went missing. Returns the final linked count; a count short of
// expectations is logged as a data-integrity error, never returned as
// a failure.
func (l *Linker) VerifyAndRelink(ctx context.Context, requestID domain.RequestID, expected []*domain.Post) int {
	for _, post := range expected {
		if l.verified(ctx, requestID, post.ID) {
			continue
		}
		l.logger.Warn("expected link missing, re-linking",
			"request_id", requestID,
			"post_id", post.ID,
		)
		l.Link(ctx, requestID, post.ID)
	}

	linked := 0
	for _, post := range expected {
		if l.verified(ctx, requestID, post.ID) {
			linked++
		}
	}
	if linked != len(expected) {
		l.logger.Error("linked count does not match expected posts",
			"request_id", requestID,
			"linked", linked,
			"expected", len(expected),
		)
	}
	return linked
}
