// Package core defines the essential interfaces and data structures that form the
// backbone of the application. These components are designed to be abstract,
// allowing for flexible and decoupled implementations of the application's logic.
package core

import (
	"context"
)

// Reviewer defines the contract for producing a review for a submission.
// Implementations coordinate through the shared store, so the same
// submission may be requested concurrently from any number of instances.
type Reviewer interface {
	// RequestReview returns the stored review, a freshly generated one, a
	// placeholder for unreviewable input, or an in-progress result when
	// another caller is generating it right now.
	RequestReview(ctx context.Context, submissionID string) (ReviewResult, error)
}

// BatchOutcome is the result of one review inside a batch.
type BatchOutcome struct {
	SubmissionID string
	Result       ReviewResult
	Err          error
}

// BatchDispatcher defines the contract for a system that accepts review
// requests in bulk and processes them with bounded concurrency.
type BatchDispatcher interface {
	// Dispatch queues a submission id. It returns an error if the queue is
	// full, providing a mechanism for backpressure.
	Dispatch(ctx context.Context, submissionID string) error
	// Results yields one outcome per dispatched id until Stop is called.
	Results() <-chan BatchOutcome
	// Stop waits for queued reviews to finish and closes Results.
	Stop()
}
