package s3client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

const (
	defaultMaxRetries = 5
	defaultBaseDelay  = 100 * time.Millisecond
	defaultMaxDelay   = 30 * time.Second
)

// API is the subset of the S3 client used for listing and uploading.
type API interface {
	s3.ListObjectsV2APIClient
	s3.HeadObjectAPIClient
	manager.UploadAPIClient
}

// Client wraps the S3 client with retry logic
type Client struct {
	api        API
	uploader   *manager.Uploader
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewClient creates a new S3 client wrapper
func NewClient(api API) *Client {
	return &Client{
		api:        api,
		uploader:   manager.NewUploader(api),
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
		maxDelay:   defaultMaxDelay,
	}
}

// NewFromConfig creates a wrapper around s3.NewFromConfig(cfg).
func NewFromConfig(cfg aws.Config) *Client {
	return NewClient(s3.NewFromConfig(cfg))
}

// ListObjectsV2Pages lists objects with pagination support
func (c *Client) ListObjectsV2Pages(ctx context.Context, bucket, prefix string, fn func([]types.Object) error) error {
	paginator := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		var page *s3.ListObjectsV2Output
		err := c.withRetry(ctx, func() error {
			var err error
			page, err = paginator.NextPage(ctx)
			return err
		})
		if err != nil {
			return fmt.Errorf("list objects: %w", err)
		}

		if err := fn(page.Contents); err != nil {
			return err
		}
	}

	return nil
}

// HeadObject retrieves object metadata
func (c *Client) HeadObject(ctx context.Context, bucket, key string) (*s3.HeadObjectOutput, error) {
	var output *s3.HeadObjectOutput
	err := c.withRetry(ctx, func() error {
		var err error
		output, err = c.api.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		return err
	})
	return output, err
}

// PutEmpty writes a zero-byte object, used for directory markers.
func (c *Client) PutEmpty(ctx context.Context, bucket, key string) error {
	return c.withRetry(ctx, func() error {
		_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(nil),
			ContentLength: aws.Int64(0),
		})
		return err
	})
}

// UploadInput describes an upload. Open is called again for every retry attempt.
type UploadInput struct {
	Bucket      string
	Key         string
	ContentType string
	Metadata    map[string]string
	Concurrency int
	Open        func() (io.ReadCloser, error)
}

// Upload streams a body to S3, switching to multipart for large bodies.
func (c *Client) Upload(ctx context.Context, in UploadInput) error {
	return c.withRetry(ctx, func() error {
		body, err := in.Open()
		if err != nil {
			return fmt.Errorf("open body: %w", err)
		}
		defer body.Close()

		input := &s3.PutObjectInput{
			Bucket:            aws.String(in.Bucket),
			Key:               aws.String(in.Key),
			Body:              body,
			Metadata:          in.Metadata,
			ChecksumAlgorithm: types.ChecksumAlgorithmCrc64nvme,
		}
		if in.ContentType != "" {
			input.ContentType = aws.String(in.ContentType)
		}

		_, err = c.uploader.Upload(ctx, input, func(u *manager.Uploader) {
			if in.Concurrency > 0 {
				u.Concurrency = in.Concurrency
			}
		})
		return err
	})
}

func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		if !c.isRetryableError(err) {
			return err
		}

		lastErr = err
		if attempt < c.maxRetries {
			delay := c.calculateDelay(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// isRetryableError checks if an error is retryable
func (c *Client) isRetryableError(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "SlowDown", "ServiceUnavailable", "RequestTimeout", "RequestTimeoutException":
			return true
		}
		// Retry on 5xx errors
		if httpErr, ok := apiErr.(interface{ HTTPStatusCode() int }); ok {
			code := httpErr.HTTPStatusCode()
			return code >= 500 && code < 600
		}
	}
	// Also retry on network errors
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF)
}

// calculateDelay calculates the retry delay with exponential backoff and jitter
func (c *Client) calculateDelay(attempt int) time.Duration {
	base := float64(c.baseDelay)
	delay := base * math.Pow(2.0, float64(attempt))

	// Add jitter (±25%)
	jitter := delay * 0.25 * (2*rand.Float64() - 1)
	delay += jitter

	// Cap at maxDelay
	if delay > float64(c.maxDelay) {
		delay = float64(c.maxDelay)
	}

	return time.Duration(delay)
}
