package domain

import (
	"time"
)

// PostID is a unique identifier for a stored post.
type PostID string

// String returns the string representation of the PostID.
func (id PostID) String() string {
	return string(id)
}

// Platform identifies the social network a post originated from.
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformYouTube   Platform = "youtube"
	PlatformTwitter   Platform = "twitter"
)

// Valid reports whether p is one of the supported platforms.
func (p Platform) Valid() bool {
	switch p {
	case PlatformInstagram, PlatformYouTube, PlatformTwitter:
		return true
	}
	return false
}

// Post is the canonical record of one scraped social-media item.
// (Platform, PlatformPostID) is unique and serves as the dedup key.
type Post struct {
	ID                 PostID
	Platform           Platform
	PlatformPostID     string
	Username           string
	Content            string
	Metrics            map[string]any
	URL                string
	PostedAt           *time.Time
	Transcript         string
	TranscriptSegments []TranscriptSegment
	CreatedAt          time.Time
}

// TranscriptSegment is one timestamped slice of a transcript.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// MediaType represents the type of a post media item.
type MediaType string

const (
	MediaTypeImage          MediaType = "image"
	MediaTypeVideo          MediaType = "video"
	MediaTypeVideoThumbnail MediaType = "video_thumbnail"
	MediaTypeVideoFrame     MediaType = "video_frame"
)

// PostMedia is a media item owned by exactly one Post. StorageURL is
// empty until the upload to object storage completes. Frames carry the
// ID of the video media they were derived from in ParentMediaID.
type PostMedia struct {
	ID            string
	PostID        PostID
	Type          MediaType
	SourceURL     string
	StorageURL    string
	Transcript    string
	ParentMediaID string
	CreatedAt     time.Time
}

// IsVideoKind reports whether the media is a video or a video-derived artifact.
func (m *PostMedia) IsVideoKind() bool {
	return m.Type == MediaTypeVideo || m.Type == MediaTypeVideoThumbnail || m.Type == MediaTypeVideoFrame
}

// PostComment holds a loosely-typed comment payload. The structure
// varies by scraper backend, so fields are normalized at read time.
type PostComment struct {
	ID        string
	PostID    PostID
	Payload   map[string]any
	CreatedAt time.Time
}

// HasVideoMedia returns true if any media item is of type video.
func HasVideoMedia(media []PostMedia) bool {
	for _, m := range media {
		if m.Type == MediaTypeVideo {
			return true
		}
	}
	return false
}
