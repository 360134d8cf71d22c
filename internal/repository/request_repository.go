package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/viralens/viralens/internal/domain"
)

// SQLiteRequestRepository implements RequestRepository on the shared Store.
type SQLiteRequestRepository struct {
	store *Store
}

// NewSQLiteRequestRepository creates a new sqlite-backed request repository.
func NewSQLiteRequestRepository(store *Store) *SQLiteRequestRepository {
	return &SQLiteRequestRepository{store: store}
}

// Create persists a new analysis request.
func (r *SQLiteRequestRepository) Create(ctx context.Context, req *domain.AnalysisRequest) error {
	urls, err := json.Marshal(req.URLsByPlatform)
	if err != nil {
		return fmt.Errorf("marshal urls: %w", err)
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}

	_, err = r.store.db.ExecContext(ctx, `
		INSERT INTO analysis_requests (id, user_id, urls_by_platform, display_name, completed, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, req.ID, req.UserID, string(urls), req.DisplayName, boolToInt(req.Completed), encodeTime(req.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

// Get retrieves a request by ID.
func (r *SQLiteRequestRepository) Get(ctx context.Context, id domain.RequestID) (*domain.AnalysisRequest, error) {
	var (
		req       domain.AnalysisRequest
		urls      string
		completed int
		createdAt string
	)
	err := r.store.db.QueryRowContext(ctx, `
		SELECT id, user_id, urls_by_platform, display_name, completed, created_at
		FROM analysis_requests WHERE id = ?
	`, id).Scan(&req.ID, &req.UserID, &urls, &req.DisplayName, &completed, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}

	if err := json.Unmarshal([]byte(urls), &req.URLsByPlatform); err != nil {
		req.URLsByPlatform = map[domain.Platform][]string{}
	}
	req.Completed = completed != 0
	req.CreatedAt = decodeTime(createdAt)

	return &req, nil
}

// SetDisplayName updates the request display name.
func (r *SQLiteRequestRepository) SetDisplayName(ctx context.Context, id domain.RequestID, name string) error {
	res, err := r.store.db.ExecContext(ctx, `UPDATE analysis_requests SET display_name = ? WHERE id = ?`, name, id)
	if err != nil {
		return fmt.Errorf("set display name: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrRequestNotFound
	}
	return nil
}

// MarkCompleted sets the completion flag.
func (r *SQLiteRequestRepository) MarkCompleted(ctx context.Context, id domain.RequestID) error {
	res, err := r.store.db.ExecContext(ctx, `UPDATE analysis_requests SET completed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrRequestNotFound
	}
	return nil
}

// AddLink inserts a request/post association. A duplicate insert errors;
// the linker treats that as "already present" and verifies with HasLink.
func (r *SQLiteRequestRepository) AddLink(ctx context.Context, id domain.RequestID, postID domain.PostID) error {
	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO request_posts (request_id, post_id, created_at) VALUES (?, ?, ?)
	`, id, postID, encodeTime(time.Now()))
	if err != nil {
		return fmt.Errorf("add link: %w", err)
	}
	return nil
}

// RemoveLink deletes a request/post association if present.
func (r *SQLiteRequestRepository) RemoveLink(ctx context.Context, id domain.RequestID, postID domain.PostID) error {
	_, err := r.store.db.ExecContext(ctx, `
		DELETE FROM request_posts WHERE request_id = ? AND post_id = ?
	`, id, postID)
	if err != nil {
		return fmt.Errorf("remove link: %w", err)
	}
	return nil
}

// HasLink reports whether the association is visible. Always reads from
// the store, never from any in-memory state.
func (r *SQLiteRequestRepository) HasLink(ctx context.Context, id domain.RequestID, postID domain.PostID) (bool, error) {
	var one int
	err := r.store.db.QueryRowContext(ctx, `
		SELECT 1 FROM request_posts WHERE request_id = ? AND post_id = ?
	`, id, postID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check link: %w", err)
	}
	return true, nil
}

// InsertLinkIfAbsent is the idempotent fallback write: INSERT OR IGNORE
// no-ops on conflict with the primary key.
func (r *SQLiteRequestRepository) InsertLinkIfAbsent(ctx context.Context, id domain.RequestID, postID domain.PostID) error {
	_, err := r.store.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO request_posts (request_id, post_id, created_at) VALUES (?, ?, ?)
	`, id, postID, encodeTime(time.Now()))
	if err != nil {
		return fmt.Errorf("insert link if absent: %w", err)
	}
	return nil
}

// ListLinkedPostIDs returns the IDs of all posts linked to a request.
func (r *SQLiteRequestRepository) ListLinkedPostIDs(ctx context.Context, id domain.RequestID) ([]domain.PostID, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT post_id FROM request_posts WHERE request_id = ? ORDER BY created_at
	`, id)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	defer rows.Close()

	var ids []domain.PostID
	for rows.Next() {
		var postID domain.PostID
		if err := rows.Scan(&postID); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		ids = append(ids, postID)
	}
	return ids, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
