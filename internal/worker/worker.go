package worker

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// MaxWorkers caps the pool size to bound open file descriptors.
const MaxWorkers = 32

// Result pairs a submitted job with its outcome.
type Result[J, R any] struct {
	Job   J
	Value R
	Err   error
}

// Pool runs jobs on a bounded number of goroutines
type Pool struct {
	concurrency int
}

// NewPool creates a new worker pool. A non-positive concurrency means
// runtime.NumCPU().
func NewPool(concurrency int) *Pool {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	if concurrency > MaxWorkers {
		concurrency = MaxWorkers
	}
	return &Pool{concurrency: concurrency}
}

// Concurrency returns the number of workers.
func (p *Pool) Concurrency() int {
	return p.concurrency
}

// Run calls fn for every job and waits for all of them. Per-job errors are
// reported in the results and never stop other jobs. Jobs not yet started
// when ctx is cancelled report ctx.Err(). Results are in job order.
func Run[J, R any](ctx context.Context, p *Pool, jobs []J, fn func(context.Context, J) (R, error)) []Result[J, R] {
	results := make([]Result[J, R], len(jobs))

	var g errgroup.Group
	g.SetLimit(p.concurrency)

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			results[i].Job = job
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Value, results[i].Err = fn(ctx, job)
			return nil
		})
	}

	// Workers never return errors, failures live in results
	_ = g.Wait()
	return results
}
