package executor

import (
	"context"
	"fmt"

	"github.com/yuya-takeyama/hash-backup/pkg/logger"
	"github.com/yuya-takeyama/hash-backup/pkg/planner"
	"github.com/yuya-takeyama/hash-backup/pkg/remote"
)

const defaultTransfers = 4

type Options struct {
	// Transfers is the concurrency hint passed to the gateway with every copy.
	Transfers int
	DryRun    bool

	// AllowBulk lets a bulk plan be sent as a single whole-tree copy of
	// LocalRoot into RemoteBase.
	AllowBulk  bool
	LocalRoot  string
	RemoteBase string
}

// Executor dispatches copy requests for a transfer plan.
type Executor struct {
	gateway remote.Gateway
	logger  logger.Logger
	opts    Options
}

func NewExecutor(gateway remote.Gateway, log logger.Logger, opts Options) *Executor {
	if opts.Transfers <= 0 {
		opts.Transfers = defaultTransfers
	}
	if log == nil {
		log = logger.NullLogger{}
	}
	return &Executor{
		gateway: gateway,
		logger:  log,
		opts:    opts,
	}
}

type Result struct {
	Item  planner.Item
	Error error
}

// Execute issues the copies of plan one request at a time and records every
// outcome. A failed copy is logged and does not stop the remaining ones; it is
// not retried until the next cycle.
func (e *Executor) Execute(ctx context.Context, plan planner.Plan) []Result {
	if plan.Bulk && e.opts.AllowBulk && e.opts.LocalRoot != "" {
		return e.executeBulk(ctx, plan.Items)
	}

	results := make([]Result, len(plan.Items))
	for i, item := range plan.Items {
		results[i] = Result{Item: item, Error: e.executeItem(ctx, item)}
	}
	return results
}

// executeBulk copies the whole local tree in one request. Its outcome applies
// to every item.
func (e *Executor) executeBulk(ctx context.Context, items []planner.Item) []Result {
	e.logger.Info(fmt.Sprintf("Remote is empty, copying %d files as one tree", len(items)))

	var err error
	if e.opts.DryRun {
		e.logger.Transfer(e.opts.LocalRoot, e.opts.RemoteBase, true)
	} else {
		err = e.gateway.Copy(ctx, e.opts.LocalRoot, e.opts.RemoteBase, e.opts.Transfers)
		if err != nil {
			e.logger.TransferFailed(e.opts.LocalRoot, e.opts.RemoteBase, err)
		} else {
			e.logger.Transfer(e.opts.LocalRoot, e.opts.RemoteBase, false)
		}
	}

	results := make([]Result, len(items))
	for i, item := range items {
		results[i] = Result{Item: item, Error: err}
	}
	return results
}

func (e *Executor) executeItem(ctx context.Context, item planner.Item) error {
	if item.Action != planner.ActionCopy {
		return nil
	}

	if e.opts.DryRun {
		e.logger.Transfer(item.LocalPath, item.RemotePath, true)
		return nil
	}

	if err := e.gateway.Copy(ctx, item.LocalPath, item.RemoteDir, e.opts.Transfers); err != nil {
		e.logger.TransferFailed(item.LocalPath, item.RemotePath, err)
		return fmt.Errorf("copy %s: %w", item.RelPath, err)
	}
	e.logger.Transfer(item.LocalPath, item.RemotePath, false)
	return nil
}

// Summary counts successful and failed results.
func Summary(results []Result) (succeeded, failed int) {
	for _, r := range results {
		if r.Error != nil {
			failed++
		} else {
			succeeded++
		}
	}
	return succeeded, failed
}
