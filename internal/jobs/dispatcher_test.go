package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/learnlog/internal/core"
)

type fakeReviewer struct {
	mu      sync.Mutex
	calls   []string
	release chan struct{}
}

func (f *fakeReviewer) RequestReview(_ context.Context, id string) (core.ReviewResult, error) {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	f.calls = append(f.calls, id)
	f.mu.Unlock()
	if id == "missing" {
		return core.ReviewResult{}, core.ErrNotFound
	}
	return core.ReviewResult{Text: "review of " + id, Status: core.StatusGenerated}, nil
}

func TestDispatcher_ProcessesAll(t *testing.T) {
	r := &fakeReviewer{}
	d := NewDispatcher(r, 3, slog.Default())

	ids := []string{"a", "b", "missing", "c"}
	for _, id := range ids {
		require.NoError(t, d.Dispatch(context.Background(), id))
	}
	d.Stop()

	got := map[string]core.BatchOutcome{}
	for o := range d.Results() {
		got[o.SubmissionID] = o
	}
	require.Len(t, got, len(ids))
	assert.Equal(t, "review of a", got["a"].Result.Text)
	assert.ErrorIs(t, got["missing"].Err, core.ErrNotFound)

	d.Stop()
}

func TestDispatcher_QueueFull(t *testing.T) {
	r := &fakeReviewer{release: make(chan struct{})}
	d := NewDispatcher(r, 1, slog.Default())

	drained := make(chan int)
	go func() {
		n := 0
		for range d.Results() {
			n++
		}
		drained <- n
	}()

	accepted := 0
	var dispatchErr error
	for range defaultQueueSize + 2 {
		if err := d.Dispatch(context.Background(), "x"); err != nil {
			dispatchErr = err
			break
		}
		accepted++
	}
	require.Error(t, dispatchErr)

	close(r.release)
	d.Stop()
	assert.Equal(t, accepted, <-drained)
}

func TestRunBatch(t *testing.T) {
	r := &fakeReviewer{}
	ids := []string{"a", "missing", "b"}

	out, err := RunBatch(context.Background(), r, ids, 2)
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, "a", out[0].SubmissionID)
	assert.Equal(t, "review of a", out[0].Result.Text)
	assert.ErrorIs(t, out[1].Err, core.ErrNotFound)
	assert.Equal(t, "review of b", out[2].Result.Text)

	sort.Strings(r.calls)
	assert.Equal(t, []string{"a", "b", "missing"}, r.calls)
}

func TestRunBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := RunBatch(ctx, &fakeReviewer{}, []string{"a", "b"}, 1)
	assert.True(t, errors.Is(err, context.Canceled))
	for _, o := range out {
		assert.ErrorIs(t, o.Err, context.Canceled)
	}
}
