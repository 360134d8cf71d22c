package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/viralens/viralens/internal/config"
)

// Client interfaces with the LLM provider for virality analysis.
type Client interface {
	// Analyze judges one post's virality from its content, media, and transcript.
	Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error)
}

// Image is one media image passed to the vision model.
type Image struct {
	Data     []byte
	MimeType string
	Label    string // e.g. "Video 1 frame 3" for multi-video posts
}

// Comment is a normalized post comment for the prompt.
type Comment struct {
	Text   string `json:"text"`
	Author string `json:"author"`
	Likes  int64  `json:"likes"`
}

// PostData is the textual post payload sent to the model.
type PostData struct {
	Content  string         `json:"content"`
	PostedAt string         `json:"posted_at"`
	Metrics  map[string]any `json:"metrics"`
	Comments []Comment      `json:"comments"`
}

// AnalysisRequest contains everything the model needs for one post.
type AnalysisRequest struct {
	Platform    string
	PostData    PostData
	Images      []Image
	Transcript  string
	VideoLength float64 // seconds; zero when unknown

	// For logging only.
	RequestID string
	PostID    string
}

// Usage holds token accounting from the provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Metadata describes how an analysis was produced.
type Metadata struct {
	Model          string
	RawResponse    string
	ProcessingTime float64 // seconds
	Usage          Usage
}

// AnalysisResult is the structured virality verdict.
type AnalysisResult struct {
	IsViral           bool           `json:"is_viral"`
	ViralityReasoning string         `json:"virality_reasoning"`
	Observations      map[string]any `json:"observations"`
	Improvements      []string       `json:"improvements"`
	Metadata          Metadata       `json:"-"`
}

// HTTPClient implements Client against an OpenAI-compatible chat API.
type HTTPClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient creates a new LLM client.
func NewClient(cfg config.LLMConfig) *HTTPClient {
	return &HTTPClient{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// chatRequest is the request body for the chat completions API.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []contentPart for vision
}

// contentPart represents a part of multimodal content (text or image).
type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// chatResponse is the response from the chat completions API.
type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

const systemPrompt = `You are an expert social media analyst judging whether a post is viral and why.
Return your verdict as JSON with these fields:
- is_viral: boolean
- virality_reasoning: 2-4 sentences explaining the verdict
- observations: object with structured findings (hook quality, pacing, audio, visual style, engagement signals)
- improvements: array of concrete suggestions to increase reach (empty array if none)

Example output:
{"is_viral":true,"virality_reasoning":"Strong hook in the first two seconds and a clear payoff.","observations":{"hook":"strong","pacing":"fast"},"improvements":[]}

Return ONLY valid JSON, no markdown, no explanation.`

// Analyze judges one post's virality. Posts with cached image bytes go
// through the vision path; posts without degrade to a text-only call.
func (c *HTTPClient) Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error) {
	prompt, err := buildAnalysisPrompt(req)
	if err != nil {
		return nil, err
	}

	var userContent any = prompt
	if len(req.Images) > 0 {
		parts := []contentPart{{Type: "text", Text: prompt}}
		for _, img := range req.Images {
			parts = append(parts, contentPart{
				Type: "image_url",
				ImageURL: &imageURL{
					URL:    fmt.Sprintf("data:%s;base64,%s", img.MimeType, base64.StdEncoding.EncodeToString(img.Data)),
					Detail: "high",
				},
			})
		}
		userContent = parts
	}

	chatReq := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userContent},
		},
	}

	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	started := time.Now()

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
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

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if chatResp.Error != nil {
		return nil, fmt.Errorf("API error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("no response from model")
	}

	raw := chatResp.Choices[0].Message.Content

	// Clean up potential markdown code blocks.
	content := strings.TrimSpace(raw)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var result AnalysisResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, fmt.Errorf("parse verdict JSON: %w", err)
	}

	model := chatResp.Model
	if model == "" {
		model = c.model
	}
	result.Metadata = Metadata{
		Model:          model,
		RawResponse:    raw,
		ProcessingTime: time.Since(started).Seconds(),
		Usage:          chatResp.Usage,
	}
	return &result, nil
}

func buildAnalysisPrompt(req AnalysisRequest) (string, error) {
	postJSON, err := json.MarshalIndent(req.PostData, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal post data: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Analyze this %s post for virality.\n\n", req.Platform))
	sb.WriteString("Post data:\n")
	sb.Write(postJSON)
	sb.WriteString("\n")

	if req.VideoLength > 0 {
		sb.WriteString(fmt.Sprintf("\nVideo length: %.0f seconds\n", req.VideoLength))
	}
	if req.Transcript != "" {
		sb.WriteString("\nTranscript:\n")
		sb.WriteString(req.Transcript)
		sb.WriteString("\n")
	}
	if len(req.Images) > 0 {
		sb.WriteString(fmt.Sprintf("\n%d media images are attached", len(req.Images)))
		var labels []string
		for _, img := range req.Images {
			if img.Label != "" {
				labels = append(labels, img.Label)
			}
		}
		if len(labels) > 0 {
			sb.WriteString(" in order: " + strings.Join(labels, ", "))
		}
		sb.WriteString(".\n")
	}

	return sb.String(), nil
}
