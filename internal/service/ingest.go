package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/viralens/viralens/internal/domain"
	"github.com/viralens/viralens/internal/repository"
	"github.com/viralens/viralens/internal/scraper"
)

// IngestService accepts raw URL batches, buckets them per platform,
// and enqueues the pipeline job for the new request.
type IngestService struct {
	requests   repository.RequestRepository
	jobs       repository.JobRepository
	maxRetries int
	logger     *slog.Logger
}

// NewIngestService creates a new ingestion service. maxRetries falls
// back to 3 when not positive.
func NewIngestService(requests repository.RequestRepository, jobs repository.JobRepository, maxRetries int, logger *slog.Logger) *IngestService {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &IngestService{requests: requests, jobs: jobs, maxRetries: maxRetries, logger: logger}
}

// SubmitOutcome reports what happened to a submitted batch.
type SubmitOutcome struct {
	RequestID      domain.RequestID
	JobID          domain.JobID
	URLCount       int
	SkippedURLs    []string
	URLsByPlatform map[domain.Platform][]string
}

// Submit creates an analysis request from a raw URL batch and queues
// its pipeline job. URLs matching no supported platform are reported
// back, not failed; a batch with no usable URL at all is an error.
func (s *IngestService) Submit(ctx context.Context, userID string, rawURLs []string) (*SubmitOutcome, error) {
	buckets, unmatched := scraper.GroupByPlatform(rawURLs)
	if len(buckets) == 0 {
		return nil, fmt.Errorf("%w: no supported platform URL in batch", domain.ErrInvalidPostURL)
	}
	if len(unmatched) > 0 {
		s.logger.Warn("unsupported URLs skipped at submission",
			"user_id", userID,
			"skipped", len(unmatched),
		)
	}

	request := &domain.AnalysisRequest{
		ID:             domain.RequestID(uuid.NewString()),
		UserID:         userID,
		URLsByPlatform: buckets,
	}
	if err := s.requests.Create(ctx, request); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	job := domain.NewJob(domain.JobID(uuid.NewString()), request.ID, s.maxRetries)
	if err := s.jobs.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	s.logger.Info("request submitted",
		"request_id", request.ID,
		"job_id", job.ID,
		"url_count", request.URLCount(),
		"platforms", len(buckets),
	)

	return &SubmitOutcome{
		RequestID:      request.ID,
		JobID:          job.ID,
		URLCount:       request.URLCount(),
		SkippedURLs:    unmatched,
		URLsByPlatform: buckets,
	}, nil
}

// RequestStatus is the queryable state of a submitted request.
type RequestStatus struct {
	Request       *domain.AnalysisRequest
	Job           *domain.Job
	LinkedPostIDs []domain.PostID
}

// Status loads a request with its job state and linked posts. The job
// may be absent after a restart, since the queue is in-memory.
func (s *IngestService) Status(ctx context.Context, requestID domain.RequestID) (*RequestStatus, error) {
	request, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}

	linked, err := s.requests.ListLinkedPostIDs(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("list linked posts: %w", err)
	}

	status := &RequestStatus{Request: request, LinkedPostIDs: linked}

	job, err := s.jobs.GetByRequestID(ctx, requestID)
	if err == nil {
		status.Job = job
	}
	return status, nil
}
