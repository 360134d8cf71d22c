package downloader

import "context"

// Downloader fetches raw media bytes from provider CDN URLs.
type Downloader interface {
	// Fetch downloads the full content at url, returning the bytes and
	// the content type reported by the server.
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}
