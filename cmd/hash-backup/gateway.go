package main

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"google.golang.org/api/option"

	"github.com/yuya-takeyama/hash-backup/internal/s3client"
	"github.com/yuya-takeyama/hash-backup/pkg/config"
	"github.com/yuya-takeyama/hash-backup/pkg/remote"
)

// newGateway builds the remote gateway for the configured backend.
func newGateway(ctx context.Context, cfg *config.Config) (remote.Gateway, error) {
	switch cfg.Backend {
	case config.BackendRclone:
		return newRcloneGateway(cfg), nil

	case config.BackendS3:
		var configOpts []func(*awsconfig.LoadOptions) error
		if cfg.S3.Profile != "" {
			configOpts = append(configOpts, awsconfig.WithSharedConfigProfile(cfg.S3.Profile))
		}
		if cfg.S3.Region != "" {
			configOpts = append(configOpts, awsconfig.WithRegion(cfg.S3.Region))
		}

		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, configOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return remote.NewS3(s3client.NewFromConfig(awsCfg), cfg.S3Bucket()), nil

	case config.BackendGCS:
		var clientOpts []option.ClientOption
		if cfg.GCS.CredentialsFile != "" {
			clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.GCS.CredentialsFile))
		}

		client, err := storage.NewClient(ctx, clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCS client: %w", err)
		}
		return remote.NewGCS(client, cfg.GCS.Bucket), nil
	}

	return nil, &config.ConfigurationError{Field: "backend", Reason: fmt.Sprintf("unknown backend %q", cfg.Backend)}
}

func newRcloneGateway(cfg *config.Config) *remote.Rclone {
	return remote.NewRclone(cfg.Remote, remote.RcloneOptions{
		Binary:     cfg.Rclone.Binary,
		ConfigPath: cfg.Rclone.Config,
	})
}
