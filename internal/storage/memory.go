package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sevigo/learnlog/internal/core"
)

// MemoryStore implements core.ReviewStore in process memory. Every conditional
// update evaluates its predicate and mutates under one mutex, which gives the
// same single-writer semantics as the SQL store for a single instance.
type MemoryStore struct {
	mu          sync.Mutex
	submissions map[string]*core.Submission
	now         func() time.Time
}

// NewMemoryStore creates an empty in-memory review store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		submissions: make(map[string]*core.Submission),
		now:         time.Now,
	}
}

// GetSubmission returns a copy of the stored submission.
func (m *MemoryStore) GetSubmission(_ context.Context, id string) (*core.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.submissions[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

// CreateSubmission stores a new submission with no review.
func (m *MemoryStore) CreateSubmission(_ context.Context, sub *core.Submission) error {
	if sub.ID == "" {
		return fmt.Errorf("submission id cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.submissions[sub.ID]; exists {
		return fmt.Errorf("submission %s already exists", sub.ID)
	}
	now := m.now().UTC()
	sub.Review = core.NoReview{}
	sub.CreatedAt = now
	sub.UpdatedAt = now
	cp := *sub
	m.submissions[sub.ID] = &cp
	return nil
}

// TryAcquireLock implements core.GenerationLock.
func (m *MemoryStore) TryAcquireLock(_ context.Context, id string, now, expiresAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.submissions[id]
	if !ok {
		return false, nil
	}
	switch st := sub.Review.(type) {
	case core.Completed:
		return false, nil
	case core.InProgress:
		if st.Live(now) {
			return false, nil
		}
	}
	sub.Review = core.InProgress{ExpiresAt: expiresAt}
	sub.UpdatedAt = now
	return true, nil
}

// IsInProgress implements core.GenerationLock.
func (m *MemoryStore) IsInProgress(_ context.Context, id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.submissions[id]
	if !ok {
		return false, nil
	}
	st, ok := sub.Review.(core.InProgress)
	return ok && st.Live(now), nil
}

// MarkCompleted implements core.GenerationLock.
func (m *MemoryStore) MarkCompleted(_ context.Context, id, text string) (bool, error) {
	return m.transition(id, core.Completed{Text: text})
}

// MarkFailed implements core.GenerationLock.
func (m *MemoryStore) MarkFailed(_ context.Context, id string) (bool, error) {
	return m.transition(id, core.Failed{})
}

// transition applies a terminal state unless a review is already stored.
func (m *MemoryStore) transition(id string, next core.ReviewState) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.submissions[id]
	if !ok {
		return false, nil
	}
	if _, done := sub.Review.(core.Completed); done {
		return false, nil
	}
	sub.Review = next
	sub.UpdatedAt = m.now().UTC()
	return true, nil
}
