package core

import "time"

// Submission is a piece of student code that can carry one AI review.
type Submission struct {
	ID        string
	UserID    string
	Language  string
	Content   string
	Review    ReviewState
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ReviewText returns the stored review and whether one exists.
func (s *Submission) ReviewText() (string, bool) {
	if c, ok := s.Review.(Completed); ok {
		return c.Text, true
	}
	return "", false
}

// ResultStatus describes how a review result was produced.
type ResultStatus string

const (
	StatusGenerated   ResultStatus = "generated"
	StatusCached      ResultStatus = "cached"
	StatusPlaceholder ResultStatus = "placeholder"
	StatusInProgress  ResultStatus = "in_progress"
)

// ReviewResult is what a caller gets back from a review request.
type ReviewResult struct {
	Text      string       `json:"text" yaml:"text"`
	WasCached bool         `json:"was_cached" yaml:"was_cached"`
	Status    ResultStatus `json:"status" yaml:"status"`
}

// GenerationRequest is a single call to the external model.
type GenerationRequest struct {
	UserID       string
	SystemPrompt string
	UserPrompt   string
	Timeout      time.Duration
}

// QuotaStatus is a snapshot of today's review usage.
type QuotaStatus struct {
	Enabled     bool  `json:"enabled" yaml:"enabled"`
	GlobalUsed  int64 `json:"global_used" yaml:"global_used"`
	GlobalLimit int64 `json:"global_limit" yaml:"global_limit"`
	UserUsed    int64 `json:"user_used" yaml:"user_used"`
	UserLimit   int64 `json:"user_limit" yaml:"user_limit"`
}
