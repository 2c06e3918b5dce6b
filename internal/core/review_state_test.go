package core

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeReviewState(t *testing.T) {
	text := "nice job"
	expires := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		phase   Phase
		text    *string
		expires *time.Time
		want    ReviewState
		wantErr bool
	}{
		{name: "empty phase is none", phase: "", want: NoReview{}},
		{name: "none", phase: PhaseNone, want: NoReview{}},
		{name: "in progress", phase: PhaseInProgress, expires: &expires, want: InProgress{ExpiresAt: expires}},
		{name: "completed", phase: PhaseCompleted, text: &text, want: Completed{Text: text}},
		{name: "failed keeps no expiry", phase: PhaseFailed, expires: &expires, want: Failed{}},
		{name: "in progress without expiry", phase: PhaseInProgress, wantErr: true},
		{name: "completed without text", phase: PhaseCompleted, wantErr: true},
		{name: "text outside completed", phase: PhaseFailed, text: &text, wantErr: true},
		{name: "unknown phase", phase: "DONE", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeReviewState(tt.phase, tt.text, tt.expires)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInProgressLive(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	assert.True(t, InProgress{ExpiresAt: now.Add(time.Second)}.Live(now))
	assert.False(t, InProgress{ExpiresAt: now}.Live(now))
	assert.False(t, InProgress{ExpiresAt: now.Add(-time.Second)}.Live(now))
}

func TestRejectionErrors(t *testing.T) {
	rl := &RateLimitError{Reason: ErrTooSoon, RetryAfter: 2 * time.Second}
	assert.ErrorIs(t, rl, ErrRateLimited)
	assert.ErrorIs(t, fmt.Errorf("wrapped: %w", rl), ErrTooSoon)
	assert.Contains(t, rl.Error(), "retry in 2s")

	quota := &QuotaError{Reason: ErrUserLimitExceeded}
	assert.True(t, IsRejection(quota))
	assert.True(t, IsRejection(ErrRPDExceeded))
	assert.False(t, IsRejection(ErrGenerationFailed))
	assert.False(t, IsRejection(errors.New("boom")))
}
