package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/viralens/viralens/internal/domain"
	"github.com/viralens/viralens/internal/scraper"
	"github.com/viralens/viralens/pkg/frames"
	"github.com/viralens/viralens/pkg/llm"
	"github.com/viralens/viralens/pkg/transcribe"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakePostRepo is an in-memory PostRepository.
type fakePostRepo struct {
	mu       sync.Mutex
	posts    map[domain.PostID]*domain.Post
	media    map[domain.PostID][]domain.PostMedia
	comments map[domain.PostID][]domain.PostComment
	now      time.Time
}

func newFakePostRepo() *fakePostRepo {
	return &fakePostRepo{
		posts:    make(map[domain.PostID]*domain.Post),
		media:    make(map[domain.PostID][]domain.PostMedia),
		comments: make(map[domain.PostID][]domain.PostComment),
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (r *fakePostRepo) tick() time.Time {
	r.now = r.now.Add(time.Second)
	return r.now
}

func (r *fakePostRepo) Create(ctx context.Context, post *domain.Post, media []domain.PostMedia, comments []domain.PostComment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.posts {
		if existing.Platform == post.Platform && strings.EqualFold(existing.PlatformPostID, post.PlatformPostID) {
			return domain.ErrDuplicatePost
		}
	}

	post.CreatedAt = r.tick()
	r.posts[post.ID] = post
	for _, m := range media {
		m.CreatedAt = r.tick()
		r.media[post.ID] = append(r.media[post.ID], m)
	}
	for _, c := range comments {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = r.tick()
		}
		r.comments[post.ID] = append(r.comments[post.ID], c)
	}
	return nil
}

func (r *fakePostRepo) Get(ctx context.Context, id domain.PostID) (*domain.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	post, ok := r.posts[id]
	if !ok {
		return nil, domain.ErrPostNotFound
	}
	return post, nil
}

func (r *fakePostRepo) FindByPlatformID(ctx context.Context, platform domain.Platform, platformPostID string) ([]*domain.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matches []*domain.Post
	for _, post := range r.posts {
		if post.Platform == platform && strings.EqualFold(post.PlatformPostID, platformPostID) {
			matches = append(matches, post)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.Before(matches[j].CreatedAt) })
	return matches, nil
}

func (r *fakePostRepo) UpdateMetrics(ctx context.Context, id domain.PostID, metrics map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	post, ok := r.posts[id]
	if !ok {
		return domain.ErrPostNotFound
	}
	post.Metrics = metrics
	return nil
}

func (r *fakePostRepo) AddMedia(ctx context.Context, media *domain.PostMedia) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	media.CreatedAt = r.tick()
	r.media[media.PostID] = append(r.media[media.PostID], *media)
	return nil
}

func (r *fakePostRepo) ListMedia(ctx context.Context, postID domain.PostID) ([]domain.PostMedia, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.PostMedia, len(r.media[postID]))
	copy(out, r.media[postID])
	return out, nil
}

func (r *fakePostRepo) SetMediaStorageURL(ctx context.Context, mediaID, storageURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for postID, items := range r.media {
		for i := range items {
			if items[i].ID == mediaID {
				r.media[postID][i].StorageURL = storageURL
				return nil
			}
		}
	}
	return domain.ErrMediaNotFound
}

func (r *fakePostRepo) SetMediaTranscript(ctx context.Context, mediaID, transcript string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for postID, items := range r.media {
		for i := range items {
			if items[i].ID == mediaID {
				r.media[postID][i].Transcript = transcript
				return nil
			}
		}
	}
	return domain.ErrMediaNotFound
}

func (r *fakePostRepo) SetTranscript(ctx context.Context, id domain.PostID, transcript string, segments []domain.TranscriptSegment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	post, ok := r.posts[id]
	if !ok {
		return domain.ErrPostNotFound
	}
	post.Transcript = transcript
	post.TranscriptSegments = segments
	return nil
}

func (r *fakePostRepo) ListComments(ctx context.Context, postID domain.PostID, limit int) ([]domain.PostComment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	comments := make([]domain.PostComment, len(r.comments[postID]))
	copy(comments, r.comments[postID])
	sort.Slice(comments, func(i, j int) bool { return comments[i].CreatedAt.After(comments[j].CreatedAt) })
	if len(comments) > limit {
		comments = comments[:limit]
	}
	return comments, nil
}

// fakeRequestRepo is an in-memory RequestRepository whose AddLink can
// be made to silently drop writes, for exercising the linker tiers.
type fakeRequestRepo struct {
	mu       sync.Mutex
	requests map[domain.RequestID]*domain.AnalysisRequest
	links    map[string]bool

	// brokenAdds makes that many AddLink calls no-op without error.
	brokenAdds int
	// brokenFallback makes InsertLinkIfAbsent no-op without error.
	brokenFallback bool
}

func newFakeRequestRepo() *fakeRequestRepo {
	return &fakeRequestRepo{
		requests: make(map[domain.RequestID]*domain.AnalysisRequest),
		links:    make(map[string]bool),
	}
}

func linkKey(id domain.RequestID, postID domain.PostID) string {
	return string(id) + "|" + string(postID)
}

func (r *fakeRequestRepo) Create(ctx context.Context, req *domain.AnalysisRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests[req.ID] = req
	return nil
}

func (r *fakeRequestRepo) Get(ctx context.Context, id domain.RequestID) (*domain.AnalysisRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, domain.ErrRequestNotFound
	}
	return req, nil
}

func (r *fakeRequestRepo) SetDisplayName(ctx context.Context, id domain.RequestID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return domain.ErrRequestNotFound
	}
	req.DisplayName = name
	return nil
}

func (r *fakeRequestRepo) MarkCompleted(ctx context.Context, id domain.RequestID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return domain.ErrRequestNotFound
	}
	req.Completed = true
	return nil
}

func (r *fakeRequestRepo) AddLink(ctx context.Context, id domain.RequestID, postID domain.PostID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.brokenAdds > 0 {
		r.brokenAdds--
		return nil
	}
	key := linkKey(id, postID)
	if r.links[key] {
		return fmt.Errorf("link already exists")
	}
	r.links[key] = true
	return nil
}

func (r *fakeRequestRepo) RemoveLink(ctx context.Context, id domain.RequestID, postID domain.PostID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.links, linkKey(id, postID))
	return nil
}

func (r *fakeRequestRepo) HasLink(ctx context.Context, id domain.RequestID, postID domain.PostID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.links[linkKey(id, postID)], nil
}

func (r *fakeRequestRepo) InsertLinkIfAbsent(ctx context.Context, id domain.RequestID, postID domain.PostID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.brokenFallback {
		return nil
	}
	r.links[linkKey(id, postID)] = true
	return nil
}

func (r *fakeRequestRepo) ListLinkedPostIDs(ctx context.Context, id domain.RequestID) ([]domain.PostID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []domain.PostID
	for key, present := range r.links {
		if !present {
			continue
		}
		if reqID, postID, ok := strings.Cut(key, "|"); ok && reqID == string(id) {
			ids = append(ids, domain.PostID(postID))
		}
	}
	return ids, nil
}

// fakeAnalysisRepo is an in-memory AnalysisRepository.
type fakeAnalysisRepo struct {
	mu       sync.Mutex
	analyses map[string]*domain.PostAnalysis // request|post
	sessions map[string]*domain.ChatSession  // analysis|user
	messages map[string][]domain.ChatMessage // session id
	now      time.Time
}

func newFakeAnalysisRepo() *fakeAnalysisRepo {
	return &fakeAnalysisRepo{
		analyses: make(map[string]*domain.PostAnalysis),
		sessions: make(map[string]*domain.ChatSession),
		messages: make(map[string][]domain.ChatMessage),
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (r *fakeAnalysisRepo) CreateAnalysis(ctx context.Context, analysis *domain.PostAnalysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.analyses[string(analysis.RequestID)+"|"+string(analysis.PostID)] = analysis
	return nil
}

func (r *fakeAnalysisRepo) HasAnalysis(ctx context.Context, requestID domain.RequestID, postID domain.PostID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.analyses[string(requestID)+"|"+string(postID)]
	return ok, nil
}

func (r *fakeAnalysisRepo) GetOrCreateSession(ctx context.Context, analysisID, userID string) (*domain.ChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := analysisID + "|" + userID
	if session, ok := r.sessions[key]; ok {
		return session, nil
	}
	session := &domain.ChatSession{
		ID:         fmt.Sprintf("session-%d", len(r.sessions)+1),
		AnalysisID: analysisID,
		UserID:     userID,
		CreatedAt:  r.now,
	}
	r.sessions[key] = session
	return session, nil
}

func (r *fakeAnalysisRepo) CountMessages(ctx context.Context, sessionID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages[sessionID]), nil
}

func (r *fakeAnalysisRepo) AddMessage(ctx context.Context, msg *domain.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = r.now.Add(time.Second)
	msg.ID = fmt.Sprintf("msg-%d", len(r.messages[msg.SessionID])+1)
	msg.CreatedAt = r.now
	r.messages[msg.SessionID] = append(r.messages[msg.SessionID], *msg)
	return nil
}

func (r *fakeAnalysisRepo) ListMessages(ctx context.Context, sessionID string) ([]domain.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ChatMessage, len(r.messages[sessionID]))
	copy(out, r.messages[sessionID])
	return out, nil
}

func (r *fakeAnalysisRepo) UpdateSessionAggregates(ctx context.Context, session *domain.ChatSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := session.AnalysisID + "|" + session.UserID
	r.sessions[key] = session
	return nil
}

// fakeScraper serves canned refresh and scrape results per URL.
type fakeScraper struct {
	platform domain.Platform
	refresh  map[string]*scraper.RefreshResult
	scrape   map[string]*scraper.ScrapeResult

	refreshCalls []string
	scrapeCalls  []string
}

func (s *fakeScraper) Platform() domain.Platform { return s.platform }

func (s *fakeScraper) RefreshOne(ctx context.Context, url string) *scraper.RefreshResult {
	s.refreshCalls = append(s.refreshCalls, url)
	if result, ok := s.refresh[url]; ok {
		return result
	}
	return &scraper.RefreshResult{Error: "no canned refresh for " + url}
}

func (s *fakeScraper) ScrapeBatch(ctx context.Context, urls []string) []*scraper.ScrapeResult {
	var results []*scraper.ScrapeResult
	for _, url := range urls {
		s.scrapeCalls = append(s.scrapeCalls, url)
		if result, ok := s.scrape[url]; ok {
			results = append(results, result)
			continue
		}
		results = append(results, &scraper.ScrapeResult{URL: url, Error: "no canned scrape for " + url})
	}
	return results
}

// fakeStore is an in-memory ObjectStore.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte // storage URL -> bytes
	types   map[string]string
	uploads int
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (s *fakeStore) Upload(ctx context.Context, postID domain.PostID, mediaID, contentType string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	url := fmt.Sprintf("mem://%s/%s", postID, mediaID)
	s.objects[url] = data
	s.types[url] = contentType
	s.uploads++
	return url, nil
}

func (s *fakeStore) Download(ctx context.Context, storageURL string) ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[storageURL]
	if !ok {
		return nil, "", fmt.Errorf("object %q not found", storageURL)
	}
	return data, s.types[storageURL], nil
}

// fakeDownloader returns deterministic bytes per URL.
type fakeDownloader struct {
	mu      sync.Mutex
	fetched []string
	fail    map[string]bool
}

func newFakeDownloader() *fakeDownloader {
	return &fakeDownloader{fail: make(map[string]bool)}
}

func (d *fakeDownloader) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fetched = append(d.fetched, url)
	if d.fail[url] {
		return nil, "", fmt.Errorf("download of %q failed", url)
	}
	contentType := "image/jpeg"
	if strings.HasSuffix(url, ".mp4") {
		contentType = "video/mp4"
	}
	return []byte("bytes:" + url), contentType, nil
}

// fakeLLM returns a canned verdict, or an error for selected post ids.
type fakeLLM struct {
	mu       sync.Mutex
	calls    []llm.AnalysisRequest
	result   *llm.AnalysisResult
	failAll  bool
	failFor  map[string]bool // post id -> fail
	resultBy map[string]*llm.AnalysisResult
}

func newFakeLLM() *fakeLLM {
	return &fakeLLM{
		failFor:  make(map[string]bool),
		resultBy: make(map[string]*llm.AnalysisResult),
		result: &llm.AnalysisResult{
			IsViral:           false,
			ViralityReasoning: "slow hook",
			Observations:      map[string]any{"hook": "weak"},
			Improvements:      []string{"tighten the opening"},
			Metadata: llm.Metadata{
				Model:          "test-model",
				RawResponse:    `{"is_viral": false}`,
				ProcessingTime: 0.5,
				Usage:          llm.Usage{PromptTokens: 80, CompletionTokens: 20, TotalTokens: 100},
			},
		},
	}
}

func (l *fakeLLM) Analyze(ctx context.Context, req llm.AnalysisRequest) (*llm.AnalysisResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, req)
	if l.failAll || l.failFor[req.PostID] {
		return nil, fmt.Errorf("model unavailable")
	}
	if result, ok := l.resultBy[req.PostID]; ok {
		return result, nil
	}
	copied := *l.result
	return &copied, nil
}

// fakeFrames returns a fixed number of frames per video.
type fakeFrames struct {
	mu      sync.Mutex
	calls   []string // video URLs
	perCall int
	err     error
}

func (f *fakeFrames) Extract(ctx context.Context, videoURL, postID string, numFrames int) (*frames.ExtractResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, videoURL)
	if f.err != nil {
		return nil, f.err
	}
	count := f.perCall
	if count == 0 {
		count = numFrames
	}
	result := &frames.ExtractResult{}
	for i := 0; i < count; i++ {
		result.Frames = append(result.Frames, frames.Frame{
			URL:      fmt.Sprintf("mem://frames/%s/%d.jpg", postID, i+1),
			Data:     []byte(fmt.Sprintf("frame-%d", i+1)),
			MimeType: "image/jpeg",
		})
	}
	return result, nil
}

// fakeTranscriber returns a fixed transcription for any media.
type fakeTranscriber struct {
	mu    sync.Mutex
	calls int
	text  string
	err   error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, req transcribe.TranscriptionRequest) (*transcribe.TranscriptionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	text := f.text
	if text == "" {
		text = "spoken words"
	}
	return &transcribe.TranscriptionResponse{
		Text:     text,
		Language: "en",
		Segments: []transcribe.Segment{{ID: 0, Start: 0, End: 2, Text: text}},
	}, nil
}

// seedStoredPost puts a post with one uploaded image directly into the
// fakes, simulating a previous slow-path run.
func seedStoredPost(t *testing.T, repo *fakePostRepo, store *fakeStore, id domain.PostID, platform domain.Platform, platformPostID string) *domain.Post {
	t.Helper()
	post := &domain.Post{
		ID:             id,
		Platform:       platform,
		PlatformPostID: platformPostID,
		Username:       "creator",
		Content:        "stored caption",
		Metrics:        map[string]any{"likes": int64(1)},
		URL:            "https://example.com/" + string(id),
	}
	if err := repo.Create(context.Background(), post, nil, nil); err != nil {
		t.Fatalf("seed post failed: %v", err)
	}

	mediaID := string(id) + "-media-1"
	storageURL, err := store.Upload(context.Background(), id, mediaID, "image/jpeg", []byte("stored-bytes"))
	if err != nil {
		t.Fatalf("seed upload failed: %v", err)
	}
	if err := repo.AddMedia(context.Background(), &domain.PostMedia{
		ID:         mediaID,
		PostID:     id,
		Type:       domain.MediaTypeImage,
		SourceURL:  "https://cdn.example/orig.jpg",
		StorageURL: storageURL,
	}); err != nil {
		t.Fatalf("seed media failed: %v", err)
	}
	return post
}
