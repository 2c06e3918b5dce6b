package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sevigo/learnlog/internal/core"
)

// ReviewService is what the public endpoints need from the orchestrator.
type ReviewService interface {
	Submit(ctx context.Context, userID, language, content string) (*core.Submission, error)
	Get(ctx context.Context, id string) (*core.Submission, error)
	RequestReview(ctx context.Context, id string) (core.ReviewResult, error)
}

// QuotaReader reports today's usage for a user.
type QuotaReader interface {
	Status(ctx context.Context, userID string) (core.QuotaStatus, error)
}

type ReviewHandler struct {
	reviews ReviewService
	quota   QuotaReader
	logger  *slog.Logger
}

func NewReviewHandler(reviews ReviewService, quota QuotaReader, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{reviews: reviews, quota: quota, logger: logger}
}

type createSubmissionRequest struct {
	UserID   string `json:"user_id"`
	Language string `json:"language"`
	Content  string `json:"content"`
}

type submissionResponse struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Language    string     `json:"language"`
	ReviewState core.Phase `json:"review_state"`
	ReviewText  *string    `json:"review_text,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func toSubmissionResponse(s *core.Submission) submissionResponse {
	resp := submissionResponse{
		ID:          s.ID,
		UserID:      s.UserID,
		Language:    s.Language,
		ReviewState: core.PhaseNone,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
	if s.Review != nil {
		resp.ReviewState = s.Review.Phase()
	}
	if text, ok := s.ReviewText(); ok {
		resp.ReviewText = &text
	}
	return resp
}

// Create handles POST /submissions.
func (h *ReviewHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSubmissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	sub, err := h.reviews.Submit(r.Context(), req.UserID, req.Language, req.Content)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSubmissionResponse(sub))
}

// Get handles GET /submissions/{id}.
func (h *ReviewHandler) Get(w http.ResponseWriter, r *http.Request) {
	sub, err := h.reviews.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubmissionResponse(sub))
}

// RequestReview handles POST /submissions/{id}/review. An in-progress result
// is answered with 202 so clients know to poll.
func (h *ReviewHandler) RequestReview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := h.reviews.RequestReview(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	status := http.StatusOK
	if res.Status == core.StatusInProgress {
		w.Header().Set("Retry-After", "5")
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

// Quota handles GET /quota?user_id=.
func (h *ReviewHandler) Quota(w http.ResponseWriter, r *http.Request) {
	st, err := h.quota.Status(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
