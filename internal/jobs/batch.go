package jobs

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/sevigo/learnlog/internal/core"
)

// RunBatch reviews ids with at most workers in flight and returns one outcome
// per id in input order. Per-id failures are reported in the outcome; only
// cancellation of ctx stops the batch early.
func RunBatch(ctx context.Context, reviewer core.Reviewer, ids []string, workers int) ([]core.BatchOutcome, error) {
	if workers <= 0 {
		workers = 1
	}
	out := make([]core.BatchOutcome, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				out[i] = core.BatchOutcome{SubmissionID: id, Err: err}
				return err
			}
			res, err := reviewer.RequestReview(gctx, id)
			out[i] = core.BatchOutcome{SubmissionID: id, Result: res, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}
