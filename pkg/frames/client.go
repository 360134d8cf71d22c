package frames

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/viralens/viralens/internal/config"
)

// Client interfaces with the video processing service for frame extraction.
type Client interface {
	// Extract requests numFrames representative frames from a video.
	Extract(ctx context.Context, videoURL, postID string, numFrames int) (*ExtractResult, error)
}

// Frame is one extracted video frame.
type Frame struct {
	URL      string
	Data     []byte
	MimeType string
}

// ExtractResult holds the extracted frames in timeline order.
type ExtractResult struct {
	Frames []Frame
}

// HTTPClient implements Client against the video processing service.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new frame extraction client.
func NewClient(cfg config.FramesConfig) *HTTPClient {
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type extractRequest struct {
	VideoURL  string `json:"video_url"`
	PostID    string `json:"post_id"`
	NumFrames int    `json:"num_frames"`
}

type extractResponse struct {
	Frames []struct {
		URL      string `json:"url"`
		Data     string `json:"data"` // base64
		MimeType string `json:"mime_type"`
	} `json:"frames"`
	Error string `json:"error,omitempty"`
}

// Extract requests representative frames from a video. Frames come back
// in timeline order with both a URL and raw bytes.
func (c *HTTPClient) Extract(ctx context.Context, videoURL, postID string, numFrames int) (*ExtractResult, error) {
	body, err := json.Marshal(extractRequest{
		VideoURL:  videoURL,
		PostID:    postID,
		NumFrames: numFrames,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/frames/extract", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var extractResp extractResponse
	if err := json.Unmarshal(respBody, &extractResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if extractResp.Error != "" {
		return nil, fmt.Errorf("extraction error: %s", extractResp.Error)
	}

	result := &ExtractResult{}
	for i, f := range extractResp.Frames {
		data, err := base64.StdEncoding.DecodeString(f.Data)
		if err != nil {
			return nil, fmt.Errorf("decode frame %d: %w", i, err)
		}
		mimeType := f.MimeType
		if mimeType == "" {
			mimeType = "image/jpeg"
		}
		result.Frames = append(result.Frames, Frame{URL: f.URL, Data: data, MimeType: mimeType})
	}

	return result, nil
}
