package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/viralens/viralens/internal/config"
)

// Store wraps the sqlite database shared by the SQL-backed repositories.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and migrates) the sqlite database.
func OpenStore(cfg config.DatabaseConfig) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// sqlite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY churn under concurrent workers.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS posts (
			id TEXT PRIMARY KEY,
			platform TEXT NOT NULL,
			platform_post_id TEXT NOT NULL COLLATE NOCASE,
			username TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			metrics TEXT NOT NULL DEFAULT '{}',
			url TEXT NOT NULL DEFAULT '',
			posted_at TEXT,
			transcript TEXT NOT NULL DEFAULT '',
			transcript_segments TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			UNIQUE(platform, platform_post_id)
		);
		CREATE TABLE IF NOT EXISTS post_media (
			id TEXT PRIMARY KEY,
			post_id TEXT NOT NULL REFERENCES posts(id),
			type TEXT NOT NULL,
			source_url TEXT NOT NULL DEFAULT '',
			storage_url TEXT NOT NULL DEFAULT '',
			transcript TEXT NOT NULL DEFAULT '',
			parent_media_id TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_post_media_post ON post_media(post_id);
		CREATE TABLE IF NOT EXISTS post_comments (
			id TEXT PRIMARY KEY,
			post_id TEXT NOT NULL REFERENCES posts(id),
			payload TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_post_comments_post ON post_comments(post_id);
		CREATE TABLE IF NOT EXISTS analysis_requests (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			urls_by_platform TEXT NOT NULL DEFAULT '{}',
			display_name TEXT NOT NULL DEFAULT '',
			completed INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS request_posts (
			request_id TEXT NOT NULL REFERENCES analysis_requests(id),
			post_id TEXT NOT NULL REFERENCES posts(id),
			created_at TEXT NOT NULL,
			PRIMARY KEY(request_id, post_id)
		);
		CREATE TABLE IF NOT EXISTS post_analyses (
			id TEXT PRIMARY KEY,
			request_id TEXT NOT NULL REFERENCES analysis_requests(id),
			post_id TEXT NOT NULL REFERENCES posts(id),
			is_viral INTEGER NOT NULL DEFAULT 0,
			virality_reasoning TEXT NOT NULL DEFAULT '',
			observations TEXT NOT NULL DEFAULT '{}',
			improvements TEXT NOT NULL DEFAULT '[]',
			model_name TEXT NOT NULL DEFAULT '',
			raw_response TEXT NOT NULL DEFAULT '',
			processing_time REAL NOT NULL DEFAULT 0,
			prompt_tokens INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_post_analyses_request ON post_analyses(request_id);
		CREATE TABLE IF NOT EXISTS chat_sessions (
			id TEXT PRIMARY KEY,
			analysis_id TEXT NOT NULL REFERENCES post_analyses(id),
			user_id TEXT NOT NULL,
			message_count INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			duration_seconds REAL NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			UNIQUE(analysis_id, user_id)
		);
		CREATE TABLE IF NOT EXISTS chat_messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES chat_sessions(id),
			role TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			tokens INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id);
	`)
	return err
}

// isUniqueViolation reports whether err is a sqlite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Timestamps are stored as RFC3339Nano in UTC so lexicographic ordering
// matches chronological ordering.
func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func encodeNullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: encodeTime(*t), Valid: true}
}

func decodeNullableTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := decodeTime(s.String)
	return &t
}
