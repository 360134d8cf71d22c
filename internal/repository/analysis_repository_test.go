package repository

import (
	"context"
	"testing"

	"github.com/viralens/viralens/internal/domain"
)

// seedAnalysis creates a request, post, and analysis row so chat
// session tests satisfy the foreign keys.
func seedAnalysis(t *testing.T, store *Store, analysisID string) {
	t.Helper()
	ctx := context.Background()

	if err := NewSQLiteRequestRepository(store).Create(ctx, newTestRequest("req-1")); err != nil {
		t.Fatalf("seed request failed: %v", err)
	}
	seedPost(t, store, "post-1")

	analysis := &domain.PostAnalysis{
		ID:                analysisID,
		RequestID:         "req-1",
		PostID:            "post-1",
		IsViral:           true,
		ViralityReasoning: "strong hook in the first three seconds",
		Observations:      map[string]any{"hook": "strong"},
		ModelName:         "grok-2-vision",
	}
	if err := NewSQLiteAnalysisRepository(store).CreateAnalysis(ctx, analysis); err != nil {
		t.Fatalf("seed analysis failed: %v", err)
	}
}

func TestAnalysisRepositoryHasAnalysis(t *testing.T) {
	store := testStore(t)
	repo := NewSQLiteAnalysisRepository(store)
	ctx := context.Background()

	seedAnalysis(t, store, "analysis-1")

	has, err := repo.HasAnalysis(ctx, "req-1", "post-1")
	if err != nil {
		t.Fatalf("HasAnalysis failed: %v", err)
	}
	if !has {
		t.Error("HasAnalysis = false for existing analysis")
	}

	has, err = repo.HasAnalysis(ctx, "req-1", "post-other")
	if err != nil {
		t.Fatalf("HasAnalysis failed: %v", err)
	}
	if has {
		t.Error("HasAnalysis = true for missing analysis")
	}
}

func TestAnalysisRepositoryGetOrCreateSession(t *testing.T) {
	store := testStore(t)
	repo := NewSQLiteAnalysisRepository(store)
	ctx := context.Background()

	seedAnalysis(t, store, "analysis-1")

	first, err := repo.GetOrCreateSession(ctx, "analysis-1", "user-1")
	if err != nil {
		t.Fatalf("GetOrCreateSession failed: %v", err)
	}
	if first.ID == "" {
		t.Fatal("session ID is empty")
	}
	if first.MessageCount != 0 {
		t.Errorf("new session MessageCount = %d, want 0", first.MessageCount)
	}

	// Repeated calls return the same session, never a second row.
	second, err := repo.GetOrCreateSession(ctx, "analysis-1", "user-1")
	if err != nil {
		t.Fatalf("second GetOrCreateSession failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second session ID = %q, want %q", second.ID, first.ID)
	}

	// A different user gets their own session.
	other, err := repo.GetOrCreateSession(ctx, "analysis-1", "user-2")
	if err != nil {
		t.Fatalf("GetOrCreateSession for user-2 failed: %v", err)
	}
	if other.ID == first.ID {
		t.Error("sessions for different users share an ID")
	}
}

func TestAnalysisRepositoryMessagesAndAggregates(t *testing.T) {
	store := testStore(t)
	repo := NewSQLiteAnalysisRepository(store)
	ctx := context.Background()

	seedAnalysis(t, store, "analysis-1")
	session, err := repo.GetOrCreateSession(ctx, "analysis-1", "user-1")
	if err != nil {
		t.Fatalf("GetOrCreateSession failed: %v", err)
	}

	count, err := repo.CountMessages(ctx, session.ID)
	if err != nil {
		t.Fatalf("CountMessages failed: %v", err)
	}
	if count != 0 {
		t.Errorf("CountMessages = %d, want 0", count)
	}

	messages := []*domain.ChatMessage{
		{SessionID: session.ID, Role: domain.ChatRoleUser, Content: "https://instagram.com/p/abc123", Tokens: 12},
		{SessionID: session.ID, Role: domain.ChatRoleAssistant, Content: "Analysis complete.", Tokens: 40},
	}
	for _, msg := range messages {
		if err := repo.AddMessage(ctx, msg); err != nil {
			t.Fatalf("AddMessage failed: %v", err)
		}
	}

	got, err := repo.ListMessages(ctx, session.ID)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if got[0].Role != domain.ChatRoleUser || got[1].Role != domain.ChatRoleAssistant {
		t.Errorf("message order = [%s, %s], want [user, assistant]", got[0].Role, got[1].Role)
	}

	session.MessageCount = 2
	session.TotalTokens = 52
	session.DurationSeconds = 1.5
	if err := repo.UpdateSessionAggregates(ctx, session); err != nil {
		t.Fatalf("UpdateSessionAggregates failed: %v", err)
	}

	reloaded, err := repo.GetOrCreateSession(ctx, "analysis-1", "user-1")
	if err != nil {
		t.Fatalf("reload session failed: %v", err)
	}
	if reloaded.MessageCount != 2 || reloaded.TotalTokens != 52 {
		t.Errorf("aggregates = (%d msgs, %d tokens), want (2, 52)", reloaded.MessageCount, reloaded.TotalTokens)
	}
}
