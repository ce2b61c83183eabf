package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/yuya-takeyama/hash-backup/internal/logging"
	"github.com/yuya-takeyama/hash-backup/pkg/config"
	"github.com/yuya-takeyama/hash-backup/pkg/logger"
	"github.com/yuya-takeyama/hash-backup/pkg/scheduler"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
	builtBy = "unknown"
)

type runOptions struct {
	configPath     string
	once           bool
	dryRun         bool
	quiet          bool
	resultJSONFile string
	transfers      int
	hashWorkers    int
	excludes       []string
}

func main() {
	if err := newRootCmd(afero.NewOsFs()).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(fs afero.Fs) *cobra.Command {
	var opts runOptions

	rootCmd := &cobra.Command{
		Use:   "hash-backup",
		Short: "Incremental one-way backup by content hash",
		Long: `hash-backup periodically mirrors a local directory to a remote. Files are
compared by content digest, so only content the remote does not hold yet is
copied. The remote is never modified beyond creating directories and files.`,
		Version:      fmt.Sprintf("%s (commit: %s, built at: %s by %s)", version, commit, date, builtBy),
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, fs, &opts)
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath, "Path to the configuration file")
	rootCmd.Flags().BoolVar(&opts.once, "once", false, "Run a single cycle and exit")
	rootCmd.Flags().BoolVar(&opts.dryRun, "dryrun", false, "Shows operations without executing")
	rootCmd.Flags().BoolVar(&opts.quiet, "quiet", false, "Suppress non-error output")
	rootCmd.Flags().StringVar(&opts.resultJSONFile, "result-json-file", "", "Path to output each cycle result as JSON file")
	rootCmd.Flags().IntVar(&opts.transfers, "transfers", 0, "Concurrent transfers per copy (overrides config)")
	rootCmd.Flags().IntVar(&opts.hashWorkers, "hash-workers", 0, "Number of hashing workers (overrides config)")
	rootCmd.Flags().StringSliceVar(&opts.excludes, "exclude", nil, "Exclude patterns, added to the configured ones (multiple allowed)")

	rootCmd.AddCommand(newInitCmd(fs, &opts.configPath))
	rootCmd.AddCommand(newObscureCmd(fs, &opts.configPath))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func run(cmd *cobra.Command, fs afero.Fs, opts *runOptions) error {
	cfg, err := loadConfig(cmd, fs, opts)
	if err != nil {
		return err
	}

	log, closer, err := logging.Setup(logging.Options{
		Level: cfg.LogLevel,
		Quiet: opts.quiet,
		File:  cfg.LogFile,
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		// A second signal terminates immediately
		stop()
	}()

	gateway, err := newGateway(ctx, cfg)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"local":    cfg.LocalRoot,
		"remote":   cfg.RemoteBase(),
		"backend":  cfg.Backend,
		"interval": cfg.Interval.Duration,
		"dryrun":   opts.dryRun,
	}).Info("Starting backup")

	sched, err := scheduler.New(schedulerConfig(cfg, opts.dryRun), gateway, scheduler.Deps{
		Fs:     fs,
		Logger: logger.New(log),
		OnCycle: func(result *scheduler.CycleResult) {
			if opts.resultJSONFile == "" {
				return
			}
			if err := writeCycleResult(fs, opts.resultJSONFile, result); err != nil {
				log.WithError(err).Error("Failed to write result JSON")
			}
		},
	})
	if err != nil {
		return err
	}

	if !opts.once {
		return sched.Run(ctx)
	}

	result, err := sched.Once(ctx)
	if err != nil {
		return err
	}
	if result.TransferFailed > 0 {
		return fmt.Errorf("%d transfers failed", result.TransferFailed)
	}
	return nil
}

// loadConfig reads the configuration file, applies command line overrides and
// validates the result.
func loadConfig(cmd *cobra.Command, fs afero.Fs, opts *runOptions) (*config.Config, error) {
	cfg, err := config.Load(fs, opts.configPath)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("transfers") {
		cfg.Transfers = opts.transfers
	}
	if cmd.Flags().Changed("hash-workers") {
		cfg.HashWorkers = opts.hashWorkers
	}
	cfg.Excludes = append(cfg.Excludes, opts.excludes...)

	if err := cfg.Validate(fs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func schedulerConfig(cfg *config.Config, dryRun bool) scheduler.Config {
	return scheduler.Config{
		LocalRoot:     cfg.LocalRoot,
		RemoteBase:    cfg.RemoteBase(),
		Interval:      cfg.Interval.Duration,
		HashAlgorithm: cfg.Algorithm(),
		HashWorkers:   cfg.HashWorkers,
		Transfers:     cfg.Transfers,
		Policy:        cfg.Policy(),
		Excludes:      cfg.Excludes,
		DryRun:        dryRun,
	}
}

func writeCycleResult(fs afero.Fs, path string, result *scheduler.CycleResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := afero.WriteFile(fs, path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}
