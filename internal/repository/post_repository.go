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

// SQLitePostRepository implements PostRepository on the shared Store.
type SQLitePostRepository struct {
	store *Store
}

// NewSQLitePostRepository creates a new sqlite-backed post repository.
func NewSQLitePostRepository(store *Store) *SQLitePostRepository {
	return &SQLitePostRepository{store: store}
}

// Create persists a post with its nested media and comments in one
// transaction. The (platform, platform_post_id) uniqueness constraint
// is what prevents duplicate posts under concurrent submission; a
// violation surfaces as domain.ErrDuplicatePost.
func (r *SQLitePostRepository) Create(ctx context.Context, post *domain.Post, media []domain.PostMedia, comments []domain.PostComment) error {
	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	metrics, err := json.Marshal(post.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	segments, err := json.Marshal(post.TranscriptSegments)
	if err != nil {
		return fmt.Errorf("marshal transcript segments: %w", err)
	}

	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO posts (id, platform, platform_post_id, username, content, metrics, url, posted_at, transcript, transcript_segments, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, post.ID, post.Platform, post.PlatformPostID, post.Username, post.Content, string(metrics),
		post.URL, encodeNullableTime(post.PostedAt), post.Transcript, string(segments), encodeTime(post.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicatePost
		}
		return fmt.Errorf("insert post: %w", err)
	}

	for i := range media {
		m := &media[i]
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO post_media (id, post_id, type, source_url, storage_url, transcript, parent_media_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, m.ID, post.ID, m.Type, m.SourceURL, m.StorageURL, m.Transcript, m.ParentMediaID, encodeTime(m.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert media: %w", err)
		}
	}

	for i := range comments {
		c := &comments[i]
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now()
		}
		payload, err := json.Marshal(c.Payload)
		if err != nil {
			return fmt.Errorf("marshal comment payload: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO post_comments (id, post_id, payload, created_at)
			VALUES (?, ?, ?, ?)
		`, c.ID, post.ID, string(payload), encodeTime(c.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert comment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const postColumns = `id, platform, platform_post_id, username, content, metrics, url, posted_at, transcript, transcript_segments, created_at`

func scanPost(row interface{ Scan(...any) error }) (*domain.Post, error) {
	var (
		post      domain.Post
		metrics   string
		segments  string
		postedAt  sql.NullString
		createdAt string
	)
	err := row.Scan(&post.ID, &post.Platform, &post.PlatformPostID, &post.Username, &post.Content,
		&metrics, &post.URL, &postedAt, &post.Transcript, &segments, &createdAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(metrics), &post.Metrics); err != nil {
		post.Metrics = map[string]any{}
	}
	if err := json.Unmarshal([]byte(segments), &post.TranscriptSegments); err != nil {
		post.TranscriptSegments = nil
	}
	post.PostedAt = decodeNullableTime(postedAt)
	post.CreatedAt = decodeTime(createdAt)

	return &post, nil
}

// Get retrieves a post by ID.
func (r *SQLitePostRepository) Get(ctx context.Context, id domain.PostID) (*domain.Post, error) {
	row := r.store.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ?`, id)
	post, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	return post, nil
}

// FindByPlatformID returns all posts for (platform, platform post id).
// The platform_post_id column is NOCASE, so the match is case-insensitive.
func (r *SQLitePostRepository) FindByPlatformID(ctx context.Context, platform domain.Platform, platformPostID string) ([]*domain.Post, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT `+postColumns+` FROM posts
		WHERE platform = ? AND platform_post_id = ?
		ORDER BY created_at
	`, platform, platformPostID)
	if err != nil {
		return nil, fmt.Errorf("find posts: %w", err)
	}
	defer rows.Close()

	var posts []*domain.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// UpdateMetrics replaces only the metrics column of an existing post.
func (r *SQLitePostRepository) UpdateMetrics(ctx context.Context, id domain.PostID, metrics map[string]any) error {
	encoded, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}

	res, err := r.store.db.ExecContext(ctx, `UPDATE posts SET metrics = ? WHERE id = ?`, string(encoded), id)
	if err != nil {
		return fmt.Errorf("update metrics: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPostNotFound
	}
	return nil
}

// AddMedia appends a media row to an existing post.
func (r *SQLitePostRepository) AddMedia(ctx context.Context, media *domain.PostMedia) error {
	if media.CreatedAt.IsZero() {
		media.CreatedAt = time.Now()
	}
	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO post_media (id, post_id, type, source_url, storage_url, transcript, parent_media_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, media.ID, media.PostID, media.Type, media.SourceURL, media.StorageURL, media.Transcript, media.ParentMediaID, encodeTime(media.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert media: %w", err)
	}
	return nil
}

// ListMedia returns a post's media ordered by creation time.
func (r *SQLitePostRepository) ListMedia(ctx context.Context, postID domain.PostID) ([]domain.PostMedia, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT id, post_id, type, source_url, storage_url, transcript, parent_media_id, created_at
		FROM post_media WHERE post_id = ? ORDER BY created_at, id
	`, postID)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	var media []domain.PostMedia
	for rows.Next() {
		var (
			m         domain.PostMedia
			createdAt string
		)
		if err := rows.Scan(&m.ID, &m.PostID, &m.Type, &m.SourceURL, &m.StorageURL, &m.Transcript, &m.ParentMediaID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		m.CreatedAt = decodeTime(createdAt)
		media = append(media, m)
	}
	return media, rows.Err()
}

// SetMediaStorageURL records the durable object-storage URL of a media item.
func (r *SQLitePostRepository) SetMediaStorageURL(ctx context.Context, mediaID, storageURL string) error {
	res, err := r.store.db.ExecContext(ctx, `UPDATE post_media SET storage_url = ? WHERE id = ?`, storageURL, mediaID)
	if err != nil {
		return fmt.Errorf("set storage url: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrMediaNotFound
	}
	return nil
}

// SetMediaTranscript records the transcript of a video media item.
func (r *SQLitePostRepository) SetMediaTranscript(ctx context.Context, mediaID, transcript string) error {
	res, err := r.store.db.ExecContext(ctx, `UPDATE post_media SET transcript = ? WHERE id = ?`, transcript, mediaID)
	if err != nil {
		return fmt.Errorf("set media transcript: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrMediaNotFound
	}
	return nil
}

// SetTranscript records the post-level transcript and its segments.
func (r *SQLitePostRepository) SetTranscript(ctx context.Context, id domain.PostID, transcript string, segments []domain.TranscriptSegment) error {
	encoded, err := json.Marshal(segments)
	if err != nil {
		return fmt.Errorf("marshal segments: %w", err)
	}
	res, err := r.store.db.ExecContext(ctx, `
		UPDATE posts SET transcript = ?, transcript_segments = ? WHERE id = ?
	`, transcript, string(encoded), id)
	if err != nil {
		return fmt.Errorf("set transcript: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPostNotFound
	}
	return nil
}

// ListComments returns up to limit comments, most recent first.
func (r *SQLitePostRepository) ListComments(ctx context.Context, postID domain.PostID, limit int) ([]domain.PostComment, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT id, post_id, payload, created_at
		FROM post_comments WHERE post_id = ?
		ORDER BY created_at DESC LIMIT ?
	`, postID, limit)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var comments []domain.PostComment
	for rows.Next() {
		var (
			c         domain.PostComment
			payload   string
			createdAt string
		)
		if err := rows.Scan(&c.ID, &c.PostID, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &c.Payload); err != nil {
			c.Payload = map[string]any{}
		}
		c.CreatedAt = decodeTime(createdAt)
		comments = append(comments, c)
	}
	return comments, rows.Err()
}
