// Package jobs runs review requests in bulk with bounded concurrency.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sevigo/learnlog/internal/core"
)

const defaultQueueSize = 100

// dispatcher implements core.BatchDispatcher with a fixed pool of workers
// pulling submission ids from a buffered queue.
type dispatcher struct {
	reviewer   core.Reviewer
	jobQueue   chan string
	results    chan core.BatchOutcome
	maxWorkers int
	wg         sync.WaitGroup
	stopOnce   sync.Once
	ctx        context.Context
	cancel     context.CancelFunc
	logger     *slog.Logger
}

// NewDispatcher starts maxWorkers workers (at least one). Results must be
// drained by the caller, otherwise workers block once the buffer is full.
func NewDispatcher(reviewer core.Reviewer, maxWorkers int, logger *slog.Logger) core.BatchDispatcher {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &dispatcher{
		reviewer:   reviewer,
		maxWorkers: maxWorkers,
		jobQueue:   make(chan string, defaultQueueSize),
		results:    make(chan core.BatchOutcome, defaultQueueSize),
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger,
	}
	d.startWorkers()
	return d
}

func (d *dispatcher) startWorkers() {
	for i := range d.maxWorkers {
		d.wg.Add(1)
		go d.startWorker(i)
	}
}

func (d *dispatcher) startWorker(workerID int) {
	defer d.wg.Done()
	d.logger.Debug("starting review worker", "id", workerID)

	for id := range d.jobQueue {
		d.results <- d.process(workerID, id)
	}

	d.logger.Debug("shutting down review worker", "id", workerID)
}

func (d *dispatcher) process(workerID int, id string) core.BatchOutcome {
	d.logger.Info("worker processing review", "worker_id", workerID, "submission_id", id)

	res, err := d.reviewer.RequestReview(d.ctx, id)
	if err != nil {
		d.logger.Warn("batch review failed", "submission_id", id, "error", err)
	}
	return core.BatchOutcome{SubmissionID: id, Result: res, Err: err}
}

// Dispatch queues a submission id. It never blocks: a full queue is reported
// as an error.
func (d *dispatcher) Dispatch(_ context.Context, submissionID string) error {
	select {
	case d.jobQueue <- submissionID:
		return nil
	default:
		return fmt.Errorf("review queue is full, cannot accept submission %s", submissionID)
	}
}

func (d *dispatcher) Results() <-chan core.BatchOutcome {
	return d.results
}

// Stop waits for queued reviews to finish, then closes Results.
func (d *dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.logger.Info("stopping review dispatcher and waiting for jobs to finish")
		close(d.jobQueue)
		d.wg.Wait()
		d.cancel()
		close(d.results)
		d.logger.Info("all batch reviews have finished")
	})
}
