package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sevigo/learnlog/internal/core"
	"github.com/sevigo/learnlog/internal/jobs"
	"github.com/sevigo/learnlog/internal/wire"
)

var batchWorkers int

type batchLine struct {
	SubmissionID string            `yaml:"submission_id"`
	Status       core.ResultStatus `yaml:"status,omitempty"`
	Text         string            `yaml:"text,omitempty"`
	Error        string            `yaml:"error,omitempty"`
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Request one-line reviews outside the HTTP API",
}

var reviewRequestCmd = &cobra.Command{
	Use:     "request [submission-id]",
	Short:   "Request the review for one submission",
	Example: `  learnlog-cli review request 01928f5e-7b1c-7000-8000-2a7c1d9e0f11`,
	Args:    cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		ctx := context.Background()

		app, cleanup, err := wire.InitializeApp(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize app services: %w", err)
		}
		defer cleanup()

		start := time.Now()
		res, err := app.Reviews.RequestReview(ctx, args[0])
		if err != nil {
			return fmt.Errorf("review request failed: %w", err)
		}
		return render(os.Stdout, res, func(w io.Writer) {
			printResult(w, args[0], res)
			dimColor.Fprintf(w, "  took %s\n", time.Since(start).Round(time.Millisecond))
		})
	},
}

var reviewBatchCmd = &cobra.Command{
	Use:   "batch [submission-id]...",
	Short: "Request reviews for several submissions with bounded concurrency",
	Long: `Request reviews for several submissions. Each submission goes through the
same quota and provider limits as an HTTP request, so a batch can stop
producing reviews part way through when a limit is reached.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		ctx := context.Background()

		app, cleanup, err := wire.InitializeApp(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize app services: %w", err)
		}
		defer cleanup()

		workers := batchWorkers
		if workers <= 0 {
			workers = app.Cfg.Review.BatchWorkers
		}
		outcomes, err := jobs.RunBatch(ctx, app.Reviews, args, workers)
		if err != nil {
			return err
		}

		lines := make([]batchLine, 0, len(outcomes))
		failed := 0
		for _, o := range outcomes {
			l := batchLine{SubmissionID: o.SubmissionID, Status: o.Result.Status, Text: o.Result.Text}
			if o.Err != nil {
				l = batchLine{SubmissionID: o.SubmissionID, Error: o.Err.Error()}
				failed++
			}
			lines = append(lines, l)
		}

		if err := render(os.Stdout, lines, func(w io.Writer) {
			titleColor.Fprintf(w, "Batch of %d\n", len(outcomes))
			for _, o := range outcomes {
				if o.Err != nil {
					errorColor.Fprintf(w, "  %s: %v\n", o.SubmissionID, o.Err)
					continue
				}
				printResult(w, o.SubmissionID, o.Result)
			}
		}); err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d reviews failed", failed, len(outcomes))
		}
		return nil
	},
}

func printResult(w io.Writer, id string, res core.ReviewResult) {
	c := successColor
	if res.Status == core.StatusInProgress || res.Status == core.StatusPlaceholder {
		c = warnColor
	}
	c.Fprintf(w, "  %s [%s]", id, res.Status)
	fmt.Fprintf(w, " %s\n", res.Text)
}

func init() { //nolint:gochecknoinits // Cobra command registration
	reviewBatchCmd.Flags().IntVarP(&batchWorkers, "workers", "w", 0, "Concurrent reviews (defaults to REVIEW_BATCH_WORKERS)")
	reviewCmd.AddCommand(reviewRequestCmd, reviewBatchCmd)
	rootCmd.AddCommand(reviewCmd)
}
