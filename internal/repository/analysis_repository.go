package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/viralens/viralens/internal/domain"
)

// SQLiteAnalysisRepository implements AnalysisRepository on the shared Store.
type SQLiteAnalysisRepository struct {
	store *Store
}

// NewSQLiteAnalysisRepository creates a new sqlite-backed analysis repository.
func NewSQLiteAnalysisRepository(store *Store) *SQLiteAnalysisRepository {
	return &SQLiteAnalysisRepository{store: store}
}

// CreateAnalysis persists one LLM verdict. Rows are immutable after creation.
func (r *SQLiteAnalysisRepository) CreateAnalysis(ctx context.Context, analysis *domain.PostAnalysis) error {
	observations, err := json.Marshal(analysis.Observations)
	if err != nil {
		return fmt.Errorf("marshal observations: %w", err)
	}
	improvements, err := json.Marshal(analysis.Improvements)
	if err != nil {
		return fmt.Errorf("marshal improvements: %w", err)
	}
	if analysis.CreatedAt.IsZero() {
		analysis.CreatedAt = time.Now()
	}

	_, err = r.store.db.ExecContext(ctx, `
		INSERT INTO post_analyses (id, request_id, post_id, is_viral, virality_reasoning, observations,
			improvements, model_name, raw_response, processing_time, prompt_tokens, completion_tokens, total_tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, analysis.ID, analysis.RequestID, analysis.PostID, boolToInt(analysis.IsViral), analysis.ViralityReasoning,
		string(observations), string(improvements), analysis.ModelName, analysis.RawResponse,
		analysis.ProcessingTime, analysis.PromptTokens, analysis.CompletionTokens, analysis.TotalTokens,
		encodeTime(analysis.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

// HasAnalysis reports whether a verdict exists for the (request, post) pair.
func (r *SQLiteAnalysisRepository) HasAnalysis(ctx context.Context, requestID domain.RequestID, postID domain.PostID) (bool, error) {
	var one int
	err := r.store.db.QueryRowContext(ctx, `
		SELECT 1 FROM post_analyses WHERE request_id = ? AND post_id = ? LIMIT 1
	`, requestID, postID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check analysis: %w", err)
	}
	return true, nil
}

// GetOrCreateSession returns the chat session for (analysis, user),
// creating it if absent. The UNIQUE(analysis_id, user_id) constraint
// makes creation idempotent under races.
func (r *SQLiteAnalysisRepository) GetOrCreateSession(ctx context.Context, analysisID, userID string) (*domain.ChatSession, error) {
	session, err := r.getSession(ctx, analysisID, userID)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get session: %w", err)
	}

	now := time.Now()
	_, err = r.store.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (id, analysis_id, user_id, message_count, total_tokens, duration_seconds, created_at)
		VALUES (?, ?, ?, 0, 0, 0, ?)
	`, uuid.NewString(), analysisID, userID, encodeTime(now))
	if err != nil && !isUniqueViolation(err) {
		return nil, fmt.Errorf("create session: %w", err)
	}

	session, err = r.getSession(ctx, analysisID, userID)
	if err != nil {
		return nil, fmt.Errorf("reload session: %w", err)
	}
	return session, nil
}

func (r *SQLiteAnalysisRepository) getSession(ctx context.Context, analysisID, userID string) (*domain.ChatSession, error) {
	var (
		session   domain.ChatSession
		createdAt string
	)
	err := r.store.db.QueryRowContext(ctx, `
		SELECT id, analysis_id, user_id, message_count, total_tokens, duration_seconds, created_at
		FROM chat_sessions WHERE analysis_id = ? AND user_id = ?
	`, analysisID, userID).Scan(&session.ID, &session.AnalysisID, &session.UserID,
		&session.MessageCount, &session.TotalTokens, &session.DurationSeconds, &createdAt)
	if err != nil {
		return nil, err
	}
	session.CreatedAt = decodeTime(createdAt)
	return &session, nil
}

// CountMessages returns the number of messages in a session.
func (r *SQLiteAnalysisRepository) CountMessages(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := r.store.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM chat_messages WHERE session_id = ?
	`, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

// AddMessage appends a message to a session.
func (r *SQLiteAnalysisRepository) AddMessage(ctx context.Context, msg *domain.ChatMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO chat_messages (id, session_id, role, content, tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.SessionID, msg.Role, msg.Content, msg.Tokens, encodeTime(msg.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessages returns a session's messages ordered by creation time.
func (r *SQLiteAnalysisRepository) ListMessages(ctx context.Context, sessionID string) ([]domain.ChatMessage, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, tokens, created_at
		FROM chat_messages WHERE session_id = ? ORDER BY created_at, id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.ChatMessage
	for rows.Next() {
		var (
			msg       domain.ChatMessage
			createdAt string
		)
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &msg.Tokens, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.CreatedAt = decodeTime(createdAt)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// UpdateSessionAggregates writes recomputed message count, token total,
// and duration.
func (r *SQLiteAnalysisRepository) UpdateSessionAggregates(ctx context.Context, session *domain.ChatSession) error {
	res, err := r.store.db.ExecContext(ctx, `
		UPDATE chat_sessions SET message_count = ?, total_tokens = ?, duration_seconds = ? WHERE id = ?
	`, session.MessageCount, session.TotalTokens, session.DurationSeconds, session.ID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAnalysisNotFound
	}
	return nil
}
