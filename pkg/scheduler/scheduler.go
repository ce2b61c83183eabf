// Package scheduler drives backup cycles: mirror, hash, fetch, diff and
// transfer, followed by a fixed sleep, until the context is cancelled.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"github.com/yuya-takeyama/hash-backup/internal/checksum"
	"github.com/yuya-takeyama/hash-backup/internal/logging"
	"github.com/yuya-takeyama/hash-backup/pkg/executor"
	"github.com/yuya-takeyama/hash-backup/pkg/logger"
	"github.com/yuya-takeyama/hash-backup/pkg/manifest"
	"github.com/yuya-takeyama/hash-backup/pkg/mirror"
	"github.com/yuya-takeyama/hash-backup/pkg/planner"
	"github.com/yuya-takeyama/hash-backup/pkg/remote"
)

// Config is everything a scheduler needs to know about the job. It is fixed
// for the lifetime of the scheduler.
type Config struct {
	LocalRoot     string
	RemoteBase    string
	Interval      time.Duration
	HashAlgorithm checksum.Algorithm
	HashWorkers   int
	Transfers     int
	Policy        planner.DedupPolicy
	Excludes      []string
	DryRun        bool
}

// Deps are the collaborators of a scheduler. Nil fields get defaults.
type Deps struct {
	Fs     afero.Fs
	Clock  clockwork.Clock
	Logger logger.Logger

	// OnTransition is called after every state change.
	OnTransition func(from, to State)
	// OnCycle is called with the result of every completed cycle.
	OnCycle func(*CycleResult)
}

// TransferOutcome is the result of one planned copy.
type TransferOutcome struct {
	Digest     string `json:"digest"`
	LocalPath  string `json:"local_path"`
	RemotePath string `json:"remote_path"`
	Reason     string `json:"reason"`
	Error      string `json:"error,omitempty"`
}

// CycleResult summarizes one cycle. It is only logged and reported, never
// carried into the next cycle.
type CycleResult struct {
	Cycle               int               `json:"cycle"`
	Started             time.Time         `json:"started"`
	Duration            time.Duration     `json:"duration"`
	DirectoriesMirrored int               `json:"directories_mirrored"`
	DirectoriesFailed   int               `json:"directories_failed"`
	FilesHashed         int               `json:"files_hashed"`
	HashFailures        int               `json:"hash_failures"`
	RemoteEntries       int               `json:"remote_entries"`
	RemoteUnavailable   bool              `json:"remote_unavailable"`
	BackupSet           int               `json:"backup_set"`
	Transferred         int               `json:"transferred"`
	TransferFailed      int               `json:"transfer_failed"`
	BytesTransferred    int64             `json:"bytes_transferred"`
	BulkCopy            bool              `json:"bulk_copy"`
	DryRun              bool              `json:"dry_run"`
	Transfers           []TransferOutcome `json:"transfers"`
}

func (r *CycleResult) summary() map[string]interface{} {
	return map[string]interface{}{
		"mirrored":           r.DirectoriesMirrored,
		"mirror_failed":      r.DirectoriesFailed,
		"hashed":             r.FilesHashed,
		"hash_failed":        r.HashFailures,
		"remote_entries":     r.RemoteEntries,
		"remote_unavailable": r.RemoteUnavailable,
		"backup_set":         r.BackupSet,
		"transferred":        r.Transferred,
		"transfer_failed":    r.TransferFailed,
		"transferred_bytes":  logging.FormatBytes(r.BytesTransferred),
		"bulk":               r.BulkCopy,
	}
}

// Scheduler runs backup cycles one after another.
type Scheduler struct {
	cfg      Config
	clock    clockwork.Clock
	logger   logger.Logger
	mirror   *mirror.Mirror
	builder  *manifest.Builder
	fetcher  *manifest.Fetcher
	executor *executor.Executor

	onTransition func(from, to State)
	onCycle      func(*CycleResult)

	mu    sync.Mutex
	state State
	cycle int
}

// New creates a scheduler for cfg that talks to the remote through gateway.
func New(cfg Config, gateway remote.Gateway, deps Deps) (*Scheduler, error) {
	if cfg.LocalRoot == "" {
		return nil, errors.New("local root is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", cfg.Interval)
	}
	if gateway == nil {
		return nil, errors.New("remote gateway is required")
	}

	if deps.Fs == nil {
		deps.Fs = afero.NewOsFs()
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = logger.NullLogger{}
	}

	return &Scheduler{
		cfg:    cfg,
		clock:  deps.Clock,
		logger: deps.Logger,
		mirror: mirror.New(deps.Fs, gateway, mirror.Options{
			Excludes: cfg.Excludes,
			DryRun:   cfg.DryRun,
		}, deps.Logger),
		builder: manifest.NewBuilder(deps.Fs, manifest.BuilderOptions{
			Algorithm: cfg.HashAlgorithm,
			Workers:   cfg.HashWorkers,
			Excludes:  cfg.Excludes,
		}, deps.Logger),
		fetcher: manifest.NewFetcher(gateway, cfg.HashAlgorithm, cfg.Excludes, deps.Logger),
		executor: executor.NewExecutor(gateway, deps.Logger, executor.Options{
			Transfers: cfg.Transfers,
			DryRun:    cfg.DryRun,
			// A whole-tree copy would also carry excluded files
			AllowBulk:  len(cfg.Excludes) == 0,
			LocalRoot:  cfg.LocalRoot,
			RemoteBase: cfg.RemoteBase,
		}),
		onTransition: deps.OnTransition,
		onCycle:      deps.OnCycle,
		state:        StateIdle,
	}, nil
}

// State returns the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) transition(to State) error {
	s.mu.Lock()
	from := s.state
	if err := ValidateTransition(from, to); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = to
	s.mu.Unlock()

	if s.onTransition != nil {
		s.onTransition(from, to)
	}
	return nil
}

// Run executes cycles until ctx is cancelled. A running cycle always completes
// first; an interrupt received meanwhile stops the scheduler without sleeping.
// Cycle failures are logged and retried on the next cycle. Run returns nil on
// an orderly stop.
func (s *Scheduler) Run(ctx context.Context) error {
	if IsTerminal(s.State()) {
		return errors.New("scheduler already stopped")
	}
	if ctx.Err() != nil {
		return s.transition(StateStopped)
	}

	for {
		if _, err := s.RunCycle(ctx); err != nil {
			s.logger.Error("cycle", s.cfg.LocalRoot, err)
		}
		if ctx.Err() != nil {
			s.logger.Info("Interrupted, stopping")
			return s.transition(StateStopped)
		}

		if err := s.transition(StateSleeping); err != nil {
			return err
		}
		s.logger.Debug(fmt.Sprintf("Sleeping for %s", s.cfg.Interval))

		select {
		case <-ctx.Done():
			s.logger.Info("Interrupted, stopping")
			return s.transition(StateStopped)
		case <-s.clock.After(s.cfg.Interval):
		}
	}
}

// Once executes a single cycle and stops.
func (s *Scheduler) Once(ctx context.Context) (*CycleResult, error) {
	result, err := s.RunCycle(ctx)
	if terr := s.transition(StateStopped); terr != nil && err == nil {
		err = terr
	}
	return result, err
}

// RunCycle executes one full cycle. The cycle ignores cancellation of ctx so
// an interrupt never leaves it half done.
func (s *Scheduler) RunCycle(ctx context.Context) (*CycleResult, error) {
	ctx = context.WithoutCancel(ctx)

	if err := s.transition(StateMirroring); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cycle++
	result := &CycleResult{Cycle: s.cycle, Started: s.clock.Now(), DryRun: s.cfg.DryRun}
	s.mu.Unlock()

	s.logger.CycleStart(result.Cycle)
	err := s.runPhases(ctx, result)
	result.Duration = s.clock.Since(result.Started)

	if err != nil {
		return result, err
	}
	s.logger.CycleComplete(result.Cycle, result.Duration, result.summary())
	if s.onCycle != nil {
		s.onCycle(result)
	}
	return result, nil
}

func (s *Scheduler) runPhases(ctx context.Context, result *CycleResult) error {
	mirrored, err := s.mirror.Run(ctx, s.cfg.LocalRoot, s.cfg.RemoteBase)
	if err != nil {
		return fmt.Errorf("mirror: %w", err)
	}
	result.DirectoriesMirrored = mirrored.Ensured
	result.DirectoriesFailed = len(mirrored.Failures)

	if err := s.transition(StateHashing); err != nil {
		return err
	}
	local, err := s.builder.Build(ctx, s.cfg.LocalRoot)
	if err != nil {
		return fmt.Errorf("hash: %w", err)
	}
	result.FilesHashed = len(local.Files)
	result.HashFailures = len(local.Failures)

	if err := s.transition(StateFetching); err != nil {
		return err
	}
	remoteManifest, err := s.fetcher.Fetch(ctx, s.cfg.RemoteBase)
	if err != nil {
		// Nothing is known remotely; everything local is backed up again
		result.RemoteUnavailable = true
	}
	result.RemoteEntries = remoteManifest.Len()

	if err := s.transition(StateDiffing); err != nil {
		return err
	}
	plan := planner.GeneratePlan(local, remoteManifest, planner.Options{
		Policy:     s.cfg.Policy,
		RemoteBase: s.cfg.RemoteBase,
	})
	result.BackupSet = len(plan.BackupSet)
	result.BulkCopy = plan.Bulk && len(s.cfg.Excludes) == 0
	s.logger.Info(fmt.Sprintf("%d files to back up, %d already present", plan.Len(), plan.Skipped))

	if err := s.transition(StateTransferring); err != nil {
		return err
	}
	results := s.executor.Execute(ctx, plan)
	result.Transferred, result.TransferFailed = executor.Summary(results)
	result.Transfers = make([]TransferOutcome, 0, len(results))
	for _, r := range results {
		outcome := TransferOutcome{
			Digest:     r.Item.Digest,
			LocalPath:  r.Item.LocalPath,
			RemotePath: r.Item.RemotePath,
			Reason:     r.Item.Reason,
		}
		if r.Error != nil {
			outcome.Error = r.Error.Error()
		} else {
			result.BytesTransferred += r.Item.Size
		}
		result.Transfers = append(result.Transfers, outcome)
	}
	return nil
}
