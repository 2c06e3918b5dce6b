package handler

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sevigo/learnlog/internal/config"
	"github.com/sevigo/learnlog/internal/core"
)

// QuotaAdmin changes the quota gate at runtime.
type QuotaAdmin interface {
	SetServiceEnabled(ctx context.Context, enabled bool) error
	UpdateLimits(ctx context.Context, global, user int64) error
}

// UsageReporter exposes the provider limiter's read-only view.
type UsageReporter interface {
	DailyUsage(ctx context.Context) (int64, error)
	IsNearDailyLimit(ctx context.Context, threshold float64) (bool, error)
	Limits() config.RateLimitConfig
}

type AdminHandler struct {
	quota      QuotaAdmin
	usage      UsageReporter
	dispatcher core.BatchDispatcher
	logger     *slog.Logger
}

func NewAdminHandler(quota QuotaAdmin, usage UsageReporter, dispatcher core.BatchDispatcher, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{quota: quota, usage: usage, dispatcher: dispatcher, logger: logger}
}

// RequireToken rejects requests whose X-Admin-Token header does not match
// token. An empty token disables the admin API.
func RequireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				writeJSON(w, http.StatusForbidden, errorResponse{Error: "admin API is disabled", Code: "forbidden"})
				return
			}
			got := r.Header.Get("X-Admin-Token")
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid admin token", Code: "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type enabledRequest struct {
	Enabled *bool `json:"enabled"`
}

// SetEnabled handles PUT /admin/quota/enabled.
func (h *AdminHandler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	var req enabledRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.Enabled == nil {
		writeError(w, h.logger, fmt.Errorf("%w: enabled is required", core.ErrValidation))
		return
	}
	if err := h.quota.SetServiceEnabled(r.Context(), *req.Enabled); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": *req.Enabled})
}

type limitsRequest struct {
	GlobalLimit int64 `json:"global_limit"`
	UserLimit   int64 `json:"user_limit"`
}

// UpdateLimits handles PUT /admin/quota/limits.
func (h *AdminHandler) UpdateLimits(w http.ResponseWriter, r *http.Request) {
	var req limitsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.quota.UpdateLimits(r.Context(), req.GlobalLimit, req.UserLimit); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type usageResponse struct {
	Provider          string  `json:"provider"`
	DailyUsage        int64   `json:"daily_usage"`
	RequestsPerDay    int64   `json:"requests_per_day"`
	RequestsPerMinute int64   `json:"requests_per_minute"`
	Threshold         float64 `json:"threshold"`
	NearDailyLimit    bool    `json:"near_daily_limit"`
}

// Usage handles GET /admin/ratelimit/usage?threshold=.
func (h *AdminHandler) Usage(w http.ResponseWriter, r *http.Request) {
	threshold := 0.9
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, h.logger, fmt.Errorf("%w: threshold must be a number", core.ErrValidation))
			return
		}
		threshold = v
	}

	near, err := h.usage.IsNearDailyLimit(r.Context(), threshold)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	used, err := h.usage.DailyUsage(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	limits := h.usage.Limits()
	writeJSON(w, http.StatusOK, usageResponse{
		Provider:          limits.Provider,
		DailyUsage:        used,
		RequestsPerDay:    limits.RequestsPerDay,
		RequestsPerMinute: limits.RequestsPerMinute,
		Threshold:         threshold,
		NearDailyLimit:    near,
	})
}

type batchRequest struct {
	SubmissionIDs []string `json:"submission_ids"`
}

type batchResponse struct {
	Accepted []string `json:"accepted"`
	Rejected []string `json:"rejected,omitempty"`
}

// Batch handles POST /admin/reviews/batch. Reviews run in the background;
// ids that do not fit in the queue are listed as rejected.
func (h *AdminHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if len(req.SubmissionIDs) == 0 {
		writeError(w, h.logger, fmt.Errorf("%w: submission_ids is required", core.ErrValidation))
		return
	}

	resp := batchResponse{Accepted: []string{}}
	for _, id := range req.SubmissionIDs {
		if err := h.dispatcher.Dispatch(r.Context(), id); err != nil {
			h.logger.Warn("batch review rejected", "submission_id", id, "error", err)
			resp.Rejected = append(resp.Rejected, id)
			continue
		}
		resp.Accepted = append(resp.Accepted, id)
	}
	writeJSON(w, http.StatusAccepted, resp)
}
