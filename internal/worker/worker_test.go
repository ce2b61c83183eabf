package worker

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPoolBounds(t *testing.T) {
	assert.Equal(t, min(runtime.NumCPU(), MaxWorkers), NewPool(0).Concurrency())
	assert.Equal(t, 4, NewPool(4).Concurrency())
	assert.Equal(t, MaxWorkers, NewPool(1000).Concurrency())
}

func TestRunCollectsAllResults(t *testing.T) {
	jobs := []int{1, 2, 3, 4, 5, 6, 7, 8}
	errOdd := errors.New("odd")

	results := Run(context.Background(), NewPool(3), jobs, func(_ context.Context, n int) (int, error) {
		if n%2 == 1 {
			return 0, errOdd
		}
		return n * n, nil
	})

	require.Len(t, results, len(jobs))
	for i, r := range results {
		assert.Equal(t, jobs[i], r.Job)
		if r.Job%2 == 1 {
			assert.ErrorIs(t, r.Err, errOdd)
		} else {
			assert.NoError(t, r.Err)
			assert.Equal(t, r.Job*r.Job, r.Value)
		}
	}
}

func TestRunHonorsConcurrencyLimit(t *testing.T) {
	const limit = 2
	var running, peak int32

	jobs := make([]int, 20)
	Run(context.Background(), NewPool(limit), jobs, func(_ context.Context, _ int) (struct{}, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&running, -1)
		return struct{}{}, nil
	})

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(limit))
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int32
	results := Run(ctx, NewPool(2), []string{"a", "b"}, func(_ context.Context, _ string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", nil
	})

	assert.Zero(t, atomic.LoadInt32(&calls))
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}
