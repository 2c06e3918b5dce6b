package core

import (
	"fmt"
	"time"
)

// Phase is the persisted name of a review state.
type Phase string

const (
	PhaseNone       Phase = "NONE"
	PhaseInProgress Phase = "IN_PROGRESS"
	PhaseCompleted  Phase = "COMPLETED"
	PhaseFailed     Phase = "FAILED"
)

// ReviewState is the review lifecycle of a submission. It is a closed set:
// NoReview, InProgress, Completed and Failed are the only implementations.
type ReviewState interface {
	Phase() Phase
	isReviewState()
}

// NoReview means no generation was ever attempted.
type NoReview struct{}

// InProgress means a caller holds the generation lock until ExpiresAt.
type InProgress struct {
	ExpiresAt time.Time
}

// Completed holds the write-once review text.
type Completed struct {
	Text string
}

// Failed means the last attempt failed; a new attempt may acquire the lock.
type Failed struct{}

func (NoReview) Phase() Phase   { return PhaseNone }
func (InProgress) Phase() Phase { return PhaseInProgress }
func (Completed) Phase() Phase  { return PhaseCompleted }
func (Failed) Phase() Phase     { return PhaseFailed }

func (NoReview) isReviewState()   {}
func (InProgress) isReviewState() {}
func (Completed) isReviewState()  {}
func (Failed) isReviewState()     {}

// Live reports whether the lock is still held at now.
func (s InProgress) Live(now time.Time) bool {
	return s.ExpiresAt.After(now)
}

// DecodeReviewState rebuilds a ReviewState from its stored columns and rejects
// combinations the variant cannot represent.
func DecodeReviewState(phase Phase, text *string, lockExpiresAt *time.Time) (ReviewState, error) {
	if text != nil && phase != PhaseCompleted {
		return nil, fmt.Errorf("review text present in state %s", phase)
	}

	switch phase {
	case PhaseNone, "":
		return NoReview{}, nil
	case PhaseInProgress:
		if lockExpiresAt == nil {
			return nil, fmt.Errorf("state %s without lock expiry", phase)
		}
		return InProgress{ExpiresAt: *lockExpiresAt}, nil
	case PhaseCompleted:
		if text == nil {
			return nil, fmt.Errorf("state %s without review text", phase)
		}
		return Completed{Text: *text}, nil
	case PhaseFailed:
		return Failed{}, nil
	default:
		return nil, fmt.Errorf("unknown review state %q", phase)
	}
}
