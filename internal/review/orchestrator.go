// Package review sequences a review request around the generation lock,
// the cached result and the guarded model call.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/sevigo/learnlog/internal/config"
	"github.com/sevigo/learnlog/internal/core"
	"github.com/sevigo/learnlog/internal/llm"
	"github.com/sevigo/learnlog/internal/metrics"
)

const (
	ShortInputPlaceholder = "Not enough code to review yet. Add more and try again."
	OversizedPlaceholder  = "This submission is too long for a one-line review."
	InProgressMessage     = "A review is being generated. Please retry shortly."
)

// Orchestrator produces at most one stored review per submission, no matter
// how many callers or instances ask at once.
type Orchestrator struct {
	store    core.ReviewStore
	gen      core.Generator
	prompts  *llm.PromptManager
	provider llm.ModelProvider
	cfg      config.ReviewConfig
	timeout  time.Duration
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewOrchestrator(
	store core.ReviewStore,
	gen core.Generator,
	prompts *llm.PromptManager,
	cfg *config.Config,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Orchestrator {
	return &Orchestrator{
		store:    store,
		gen:      gen,
		prompts:  prompts,
		provider: llm.ModelProvider(cfg.AI.LLMProvider),
		cfg:      cfg.Review,
		timeout:  cfg.AI.RequestTimeout,
		now:      time.Now,
		logger:   logger,
		metrics:  m,
	}
}

// Submit stores new code under a fresh time-ordered id.
func (o *Orchestrator) Submit(ctx context.Context, userID, language, content string) (*core.Submission, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user_id is required", core.ErrValidation)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate submission id: %w", err)
	}
	sub := &core.Submission{
		ID:       id.String(),
		UserID:   userID,
		Language: language,
		Content:  content,
	}
	if err := o.store.CreateSubmission(ctx, sub); err != nil {
		return nil, storeErr(err)
	}
	o.logger.Info("submission created", "submission_id", sub.ID, "user_id", userID)
	return sub, nil
}

// Get loads a submission.
func (o *Orchestrator) Get(ctx context.Context, id string) (*core.Submission, error) {
	sub, err := o.store.GetSubmission(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	return sub, nil
}

// RequestReview returns the stored review, a placeholder, an in-progress
// notice, or a freshly generated review. Only the lock winner calls the model.
func (o *Orchestrator) RequestReview(ctx context.Context, id string) (core.ReviewResult, error) {
	logger := o.logger.With("submission_id", id)

	sub, err := o.store.GetSubmission(ctx, id)
	if err != nil {
		return core.ReviewResult{}, storeErr(err)
	}
	if text, ok := sub.ReviewText(); ok {
		return o.done(cached(text)), nil
	}

	if placeholder, ok := o.validate(sub.Content); !ok {
		logger.Debug("skipping review for unreviewable content", "length", utf8.RuneCountInString(sub.Content))
		return o.done(core.ReviewResult{Text: placeholder, Status: core.StatusPlaceholder}), nil
	}

	now := o.now()
	acquired, err := o.store.TryAcquireLock(ctx, id, now, now.Add(o.cfg.LockTTL))
	if err != nil {
		return core.ReviewResult{}, storeErr(err)
	}
	if !acquired {
		o.metrics.RecordLockContention()
		return o.contended(ctx, id, logger)
	}

	system, user, err := o.prompts.ReviewPrompts(o.provider, sub.Language, sub.Content)
	if err != nil {
		o.release(ctx, id, logger)
		return core.ReviewResult{}, fmt.Errorf("%w: %v", core.ErrGenerationFailed, err)
	}

	text, err := o.gen.Generate(ctx, core.GenerationRequest{
		UserID:       sub.UserID,
		SystemPrompt: system,
		UserPrompt:   user,
		Timeout:      o.timeout,
	})
	if err != nil {
		o.release(ctx, id, logger)
		if core.IsRejection(err) || errors.Is(err, core.ErrStoreUnavailable) {
			o.metrics.RecordReview("rejected")
			return core.ReviewResult{}, err
		}
		logger.Error("review generation failed", "error", err)
		o.metrics.RecordReview("failed")
		return core.ReviewResult{}, fmt.Errorf("%w: %v", core.ErrGenerationFailed, err)
	}

	// A cancelled caller must not leave a paid-for review unsaved.
	persistCtx := context.WithoutCancel(ctx)
	stored, err := o.store.MarkCompleted(persistCtx, id, text)
	if err != nil {
		return core.ReviewResult{}, storeErr(err)
	}
	if !stored {
		o.metrics.RecordCompletionRace()
		winner, err := o.store.GetSubmission(persistCtx, id)
		if err != nil {
			return core.ReviewResult{}, storeErr(err)
		}
		persisted, ok := winner.ReviewText()
		if !ok {
			return core.ReviewResult{}, fmt.Errorf("%w: completion was refused but no review is stored", core.ErrStoreUnavailable)
		}
		logger.Warn("discarding generated review, another writer completed first", "discarded", text)
		return o.done(cached(persisted)), nil
	}

	logger.Info("review generated", "user_id", sub.UserID)
	return o.done(core.ReviewResult{Text: text, Status: core.StatusGenerated}), nil
}

// contended handles a lost lock race. A holder that released between the two
// reads is still reported as in progress so the caller retries.
func (o *Orchestrator) contended(ctx context.Context, id string, logger *slog.Logger) (core.ReviewResult, error) {
	sub, err := o.store.GetSubmission(ctx, id)
	if err != nil {
		return core.ReviewResult{}, storeErr(err)
	}
	if text, ok := sub.ReviewText(); ok {
		return o.done(cached(text)), nil
	}

	inProgress, err := o.store.IsInProgress(ctx, id, o.now())
	if err != nil {
		return core.ReviewResult{}, storeErr(err)
	}
	if !inProgress {
		logger.Debug("lock released between reads, reporting in progress")
	}
	return o.done(core.ReviewResult{Text: InProgressMessage, Status: core.StatusInProgress}), nil
}

func (o *Orchestrator) release(ctx context.Context, id string, logger *slog.Logger) {
	if _, err := o.store.MarkFailed(context.WithoutCancel(ctx), id); err != nil {
		logger.Error("failed to release generation lock", "error", err)
	}
}

func (o *Orchestrator) validate(content string) (string, bool) {
	n := utf8.RuneCountInString(strings.TrimSpace(content))
	switch {
	case n == 0 || n < o.cfg.MinContentLength:
		return ShortInputPlaceholder, false
	case o.cfg.MaxContentLength > 0 && n > o.cfg.MaxContentLength:
		return OversizedPlaceholder, false
	default:
		return "", true
	}
}

func (o *Orchestrator) done(r core.ReviewResult) core.ReviewResult {
	o.metrics.RecordReview(string(r.Status))
	return r
}

func cached(text string) core.ReviewResult {
	return core.ReviewResult{Text: text, WasCached: true, Status: core.StatusCached}
}

func storeErr(err error) error {
	if errors.Is(err, core.ErrNotFound) || errors.Is(err, core.ErrStoreUnavailable) || errors.Is(err, core.ErrValidation) {
		return err
	}
	return fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
}
