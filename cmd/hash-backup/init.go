package main

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/yuya-takeyama/hash-backup/pkg/config"
	"github.com/yuya-takeyama/hash-backup/pkg/remote"
)

type secretObscurer interface {
	ObscureSecret(ctx context.Context, plaintext string) (string, error)
}

// newObscurer returns the gateway used to obscure credentials. Only rclone
// knows how, whatever backend the job uses.
var newObscurer = func(cfg *config.Config) secretObscurer {
	return newRcloneGateway(cfg)
}

type initOptions struct {
	remote    remote.Descriptor
	password  string
	localRoot string
	backend   string
	s3URI     string
	gcsBucket string
	interval  string
	force     bool
}

func newInitCmd(fs afero.Fs, configPath *string) *cobra.Command {
	var opts initOptions

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file",
		Long: `init writes the configuration file from flags. The password is stored
in rclone's obscured form. An existing file is only replaced with --force.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, fs, *configPath, &opts)
		},
	}

	cmd.Flags().StringVar(&opts.remote.Name, "name", "", "Remote name")
	cmd.Flags().StringVar(&opts.remote.Type, "type", "", "Remote type for an on-the-fly remote (sftp, ftp, ...)")
	cmd.Flags().StringVar(&opts.remote.Host, "host", "", "Remote host")
	cmd.Flags().StringVar(&opts.remote.Port, "port", "", "Remote port")
	cmd.Flags().StringVar(&opts.remote.User, "user", "", "Remote user")
	cmd.Flags().StringVar(&opts.password, "password", "", "Remote password, stored obscured")
	cmd.Flags().StringVar(&opts.remote.Path, "remote-path", "", "Remote directory that mirrors the local root")
	cmd.Flags().StringVar(&opts.localRoot, "local-root", "", "Local directory to back up")
	cmd.Flags().StringVar(&opts.backend, "backend", config.BackendRclone, "Backend: rclone, s3 or gcs")
	cmd.Flags().StringVar(&opts.s3URI, "s3-uri", "", "S3 URI (s3://bucket/prefix) for the s3 backend")
	cmd.Flags().StringVar(&opts.gcsBucket, "gcs-bucket", "", "Bucket for the gcs backend")
	cmd.Flags().StringVar(&opts.interval, "interval", config.DefaultInterval.String(), "Time to sleep between cycles")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Overwrite an existing configuration file")

	return cmd
}

func runInit(cmd *cobra.Command, fs afero.Fs, configPath string, opts *initOptions) error {
	path, err := config.ExpandPath(configPath)
	if err != nil {
		return err
	}
	if exists, err := afero.Exists(fs, path); err != nil {
		return fmt.Errorf("failed to check %s: %w", path, err)
	} else if exists && !opts.force {
		return fmt.Errorf("%s already exists, use --force to overwrite it", path)
	}

	cfg := config.Default()
	cfg.Remote = opts.remote
	cfg.Backend = opts.backend
	cfg.S3.URI = opts.s3URI
	cfg.GCS.Bucket = opts.gcsBucket
	if err := cfg.Interval.Set(opts.interval); err != nil {
		return &config.ConfigurationError{Field: "interval", Reason: "parse", Err: err}
	}
	if cfg.LocalRoot, err = config.ExpandPath(opts.localRoot); err != nil {
		return err
	}

	if opts.password != "" {
		obscured, err := newObscurer(cfg).ObscureSecret(cmd.Context(), opts.password)
		if err != nil {
			return fmt.Errorf("failed to obscure password: %w", err)
		}
		cfg.Remote.Pass = obscured
	}

	if err := cfg.Validate(fs); err != nil {
		return err
	}
	if err := config.Save(fs, path, cfg); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
	return nil
}

func newObscureCmd(fs afero.Fs, configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "obscure <password>",
		Short: "Print the obscured form of a password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// The rclone settings of an existing configuration are honoured
			cfg, err := config.Load(fs, *configPath)
			if err != nil {
				cfg = config.Default()
			}

			obscured, err := newObscurer(cfg).ObscureSecret(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), obscured)
			return nil
		},
	}
}
