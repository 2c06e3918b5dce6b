package core

import (
	"context"
	"time"
)

// SubmissionStore persists submissions.
type SubmissionStore interface {
	// GetSubmission returns ErrNotFound when the id is unknown.
	GetSubmission(ctx context.Context, id string) (*Submission, error)
	CreateSubmission(ctx context.Context, s *Submission) error
}

// GenerationLock is the per-submission mutex and write-once result slot.
// Every method is a single atomic conditional update in the backing store;
// implementations must never read and then write in separate operations.
type GenerationLock interface {
	// TryAcquireLock moves the submission to IN_PROGRESS until expiresAt if it
	// has no review yet and no live lock is held at now.
	TryAcquireLock(ctx context.Context, id string, now, expiresAt time.Time) (bool, error)
	// IsInProgress reports whether a lock is held and not expired at now.
	IsInProgress(ctx context.Context, id string, now time.Time) (bool, error)
	// MarkCompleted stores text only if no review exists yet. A false return
	// means another caller completed first.
	MarkCompleted(ctx context.Context, id, text string) (bool, error)
	// MarkFailed releases the lock only if no review exists yet.
	MarkFailed(ctx context.Context, id string) (bool, error)
}

//go:generate mockgen -destination=../../mocks/mock_review_store.go -package=mocks . ReviewStore

// ReviewStore is the document store behind review orchestration.
type ReviewStore interface {
	SubmissionStore
	GenerationLock
}

//go:generate mockgen -destination=../../mocks/mock_counter_store.go -package=mocks . CounterStore

// CounterStore exposes the atomic key-value primitives used for quotas and
// provider rate windows.
type CounterStore interface {
	// IncrWithExpiry increments key and sets ttl only when the key was created
	// by this increment.
	IncrWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// IncrAndExpire increments key and always resets its ttl.
	IncrAndExpire(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// GetInt returns 0 for a missing key.
	GetInt(ctx context.Context, key string) (int64, error)
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value; a zero ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

//go:generate mockgen -destination=../../mocks/mock_generator.go -package=mocks . Generator

// Generator produces review text from the external model.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}
