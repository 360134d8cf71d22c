package domain

// MediaBlob is one cached media payload with its MIME type split into
// type and subtype (e.g. "image" / "jpeg").
type MediaBlob struct {
	Data     []byte
	MimeType string
	Subtype  string
}

// MediaCache is the transient post -> media -> blobs mapping shared by
// the collection and analysis phases of one pipeline run. It exists to
// avoid redundant network fetches between the two phases and is never
// persisted. The cache is owned by a single worker for the duration of
// one request and is not safe for concurrent use.
type MediaCache struct {
	entries map[PostID]map[string][]MediaBlob
}

// NewMediaCache creates an empty media-bytes cache.
func NewMediaCache() *MediaCache {
	return &MediaCache{
		entries: make(map[PostID]map[string][]MediaBlob),
	}
}

// Put appends a blob for the given post and media identity.
func (c *MediaCache) Put(postID PostID, mediaID string, blob MediaBlob) {
	byMedia, ok := c.entries[postID]
	if !ok {
		byMedia = make(map[string][]MediaBlob)
		c.entries[postID] = byMedia
	}
	byMedia[mediaID] = append(byMedia[mediaID], blob)
}

// Get returns the blobs cached for a media item, or nil.
func (c *MediaCache) Get(postID PostID, mediaID string) []MediaBlob {
	return c.entries[postID][mediaID]
}

// Has reports whether any blobs are cached for a media item.
func (c *MediaCache) Has(postID PostID, mediaID string) bool {
	return len(c.entries[postID][mediaID]) > 0
}

// PostBlobCount returns the total number of blobs cached for a post.
func (c *MediaCache) PostBlobCount(postID PostID) int {
	total := 0
	for _, blobs := range c.entries[postID] {
		total += len(blobs)
	}
	return total
}

// Len returns the number of posts with at least one cached media item.
func (c *MediaCache) Len() int {
	return len(c.entries)
}
