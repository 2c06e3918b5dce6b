package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	// import db drivers
	_ "github.com/lib/pq"

	"github.com/sevigo/learnlog/internal/core"
)

type postgresStore struct {
	db *sqlx.DB
}

// NewStore creates a Postgres-backed core.ReviewStore.
func NewStore(db *sqlx.DB) core.ReviewStore {
	return &postgresStore{db: db}
}

type submissionRow struct {
	ID            string         `db:"id"`
	UserID        string         `db:"user_id"`
	Language      string         `db:"language"`
	Content       string         `db:"content"`
	ReviewText    sql.NullString `db:"review_text"`
	ReviewState   string         `db:"review_state"`
	LockExpiresAt sql.NullTime   `db:"lock_expires_at"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r *submissionRow) toSubmission() (*core.Submission, error) {
	var text *string
	if r.ReviewText.Valid {
		text = &r.ReviewText.String
	}
	var expires *time.Time
	if r.LockExpiresAt.Valid {
		expires = &r.LockExpiresAt.Time
	}

	state, err := core.DecodeReviewState(core.Phase(r.ReviewState), text, expires)
	if err != nil {
		return nil, fmt.Errorf("submission %s: %w", r.ID, err)
	}

	return &core.Submission{
		ID:        r.ID,
		UserID:    r.UserID,
		Language:  r.Language,
		Content:   r.Content,
		Review:    state,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

// GetSubmission loads a submission with its current review state.
func (s *postgresStore) GetSubmission(ctx context.Context, id string) (*core.Submission, error) {
	query := `
		SELECT id, user_id, language, content, review_text, review_state, lock_expires_at, created_at, updated_at
		FROM submissions
		WHERE id = $1`

	var row submissionRow
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	return row.toSubmission()
}

// CreateSubmission inserts a submission with no review.
func (s *postgresStore) CreateSubmission(ctx context.Context, sub *core.Submission) error {
	query := `
		INSERT INTO submissions (id, user_id, language, content, review_state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`

	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, query, sub.ID, sub.UserID, sub.Language, sub.Content, string(core.PhaseNone), now); err != nil {
		return err
	}
	sub.Review = core.NoReview{}
	sub.CreatedAt = now
	sub.UpdatedAt = now
	return nil
}

// TryAcquireLock claims the generation slot in one conditional UPDATE. A stale
// IN_PROGRESS lock whose expiry has passed is reclaimed by the same statement.
func (s *postgresStore) TryAcquireLock(ctx context.Context, id string, now, expiresAt time.Time) (bool, error) {
	query := `
		UPDATE submissions
		SET review_state = $2, lock_expires_at = $3, updated_at = $4
		WHERE id = $1
		  AND review_text IS NULL
		  AND (lock_expires_at IS NULL OR lock_expires_at <= $4 OR review_state <> $2)`

	return s.execConditional(ctx, query, id, string(core.PhaseInProgress), expiresAt, now)
}

// IsInProgress reports whether a live lock is held at now.
func (s *postgresStore) IsInProgress(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM submissions
			WHERE id = $1 AND review_state = $2 AND lock_expires_at > $3
		)`

	var inProgress bool
	if err := s.db.GetContext(ctx, &inProgress, query, id, string(core.PhaseInProgress), now); err != nil {
		return false, err
	}
	return inProgress, nil
}

// MarkCompleted writes the review text if none is stored yet.
func (s *postgresStore) MarkCompleted(ctx context.Context, id, text string) (bool, error) {
	query := `
		UPDATE submissions
		SET review_text = $2, review_state = $3, lock_expires_at = NULL, updated_at = NOW()
		WHERE id = $1 AND review_text IS NULL`

	return s.execConditional(ctx, query, id, text, string(core.PhaseCompleted))
}

// MarkFailed releases the lock unless a review was already stored.
func (s *postgresStore) MarkFailed(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE submissions
		SET review_state = $2, lock_expires_at = NULL, updated_at = NOW()
		WHERE id = $1 AND review_text IS NULL`

	return s.execConditional(ctx, query, id, string(core.PhaseFailed))
}

func (s *postgresStore) execConditional(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}
