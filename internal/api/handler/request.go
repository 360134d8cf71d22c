package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/viralens/viralens/internal/domain"
	"github.com/viralens/viralens/internal/service"
)

// RequestHandler handles analysis request submission and status.
type RequestHandler struct {
	ingest *service.IngestService
	logger *slog.Logger
}

// NewRequestHandler creates a new request handler.
func NewRequestHandler(ingest *service.IngestService, logger *slog.Logger) *RequestHandler {
	return &RequestHandler{ingest: ingest, logger: logger}
}

// SubmitRequest is the JSON request body for batch submission.
type SubmitRequest struct {
	UserID string   `json:"user_id"`
	URLs   []string `json:"urls"`
}

// SubmitResponse is the JSON response after submission.
type SubmitResponse struct {
	RequestID   string   `json:"request_id"`
	JobID       string   `json:"job_id"`
	Status      string   `json:"status"`
	URLCount    int      `json:"url_count"`
	SkippedURLs []string `json:"skipped_urls,omitempty"`
}

// RequestResponse represents a request in status responses.
type RequestResponse struct {
	RequestID   string    `json:"request_id"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Completed   bool      `json:"completed"`
	URLCount    int       `json:"url_count"`
	LinkedPosts []string  `json:"linked_posts"`
	JobStatus   string    `json:"job_status,omitempty"`
	JobError    string    `json:"job_error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Submit handles POST /api/v1/requests
func (h *RequestHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		h.writeError(w, http.StatusBadRequest, "missing user_id")
		return
	}
	if len(req.URLs) == 0 {
		h.writeError(w, http.StatusBadRequest, "no URLs provided")
		return
	}

	outcome, err := h.ingest.Submit(r.Context(), req.UserID, req.URLs)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidPostURL) {
			h.writeError(w, http.StatusBadRequest, "no supported platform URLs in batch")
			return
		}
		h.logger.Error("submit failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to submit request")
		return
	}

	h.writeJSON(w, http.StatusAccepted, SubmitResponse{
		RequestID:   string(outcome.RequestID),
		JobID:       string(outcome.JobID),
		Status:      string(domain.JobStatusQueued),
		URLCount:    outcome.URLCount,
		SkippedURLs: outcome.SkippedURLs,
	})
}

// Get handles GET /api/v1/requests/{requestID}
func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	if requestID == "" {
		h.writeError(w, http.StatusBadRequest, "missing request ID")
		return
	}

	status, err := h.ingest.Status(r.Context(), domain.RequestID(requestID))
	if err != nil {
		if errors.Is(err, domain.ErrRequestNotFound) {
			h.writeError(w, http.StatusNotFound, "request not found")
			return
		}
		h.logger.Error("status lookup failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get request")
		return
	}

	response := RequestResponse{
		RequestID:   string(status.Request.ID),
		UserID:      status.Request.UserID,
		DisplayName: status.Request.DisplayName,
		Completed:   status.Request.Completed,
		URLCount:    status.Request.URLCount(),
		LinkedPosts: make([]string, 0, len(status.LinkedPostIDs)),
		CreatedAt:   status.Request.CreatedAt,
	}
	for _, postID := range status.LinkedPostIDs {
		response.LinkedPosts = append(response.LinkedPosts, string(postID))
	}
	if status.Job != nil {
		response.JobStatus = string(status.Job.Status)
		response.JobError = status.Job.LastError
	}

	h.writeJSON(w, http.StatusOK, response)
}

func (h *RequestHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *RequestHandler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
