// Package handler provides the HTTP handlers for the review API.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/sevigo/learnlog/internal/core"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string            `json:"error"`
	Code  string            `json:"code"`
	Quota *core.QuotaStatus `json:"quota,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", core.ErrValidation, err)
	}
	return nil
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	resp := errorResponse{Error: err.Error()}
	status := http.StatusInternalServerError

	var qe *core.QuotaError
	if errors.As(err, &qe) {
		resp.Quota = &qe.Status
	}
	var rle *core.RateLimitError
	if errors.As(err, &rle) && rle.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(rle.RetryAfter.Seconds()))))
	}

	switch {
	case errors.Is(err, core.ErrValidation):
		status, resp.Code = http.StatusBadRequest, "invalid_input"
	case errors.Is(err, core.ErrNotFound):
		status, resp.Code = http.StatusNotFound, "not_found"
	case errors.Is(err, core.ErrServiceDisabled):
		status, resp.Code = http.StatusServiceUnavailable, "service_disabled"
	case errors.Is(err, core.ErrGlobalLimitExceeded):
		status, resp.Code = http.StatusTooManyRequests, "global_quota_exceeded"
	case errors.Is(err, core.ErrUserLimitExceeded):
		status, resp.Code = http.StatusTooManyRequests, "user_quota_exceeded"
	case errors.Is(err, core.ErrRateLimited):
		status, resp.Code = http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, core.ErrGenerationFailed):
		status, resp.Code = http.StatusBadGateway, "generation_failed"
		resp.Error = core.ErrGenerationFailed.Error()
	case errors.Is(err, core.ErrStoreUnavailable):
		status, resp.Code = http.StatusServiceUnavailable, "store_unavailable"
		resp.Error = core.ErrStoreUnavailable.Error()
	default:
		resp.Code, resp.Error = "internal", "internal error"
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, resp)
}
