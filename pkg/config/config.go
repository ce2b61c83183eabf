// Package config loads and validates the backup job configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/ghodss/yaml"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/yuya-takeyama/hash-backup/internal/checksum"
	"github.com/yuya-takeyama/hash-backup/internal/s3client"
	"github.com/yuya-takeyama/hash-backup/pkg/planner"
	"github.com/yuya-takeyama/hash-backup/pkg/remote"
)

const (
	// DefaultPath is where the configuration lives unless --config is given.
	DefaultPath = "~/.config/hash-backup/config.yaml"

	DefaultInterval  = time.Hour
	DefaultTransfers = 4

	BackendRclone = "rclone"
	BackendS3     = "s3"
	BackendGCS    = "gcs"
)

// homedirExpand will be overridden in tests
var homedirExpand = homedir.Expand

// Duration is a time.Duration written as a Go duration string ("1h30m").
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// Bare numbers are seconds
		var secs int64
		if nerr := json.Unmarshal(b, &secs); nerr != nil {
			return fmt.Errorf("invalid duration %s", string(b))
		}
		d.Duration = time.Duration(secs) * time.Second
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Set parses a Go duration string.
func (d *Duration) Set(s string) error {
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

type RcloneConfig struct {
	Binary string `json:"binary,omitempty"`
	Config string `json:"config,omitempty"`
}

type S3Config struct {
	URI     string `json:"uri,omitempty"`
	Region  string `json:"region,omitempty"`
	Profile string `json:"profile,omitempty"`
}

type GCSConfig struct {
	Bucket          string `json:"bucket,omitempty"`
	CredentialsFile string `json:"credentials_file,omitempty"`
}

// Config is the job configuration.
type Config struct {
	Remote        remote.Descriptor `json:"remote"`
	LocalRoot     string            `json:"local_root"`
	Interval      Duration          `json:"interval,omitempty"`
	HashWorkers   int               `json:"hash_workers,omitempty"`
	Transfers     int               `json:"transfers,omitempty"`
	HashAlgorithm string            `json:"hash_algorithm,omitempty"`
	DedupPolicy   string            `json:"dedup_policy,omitempty"`
	Excludes      []string          `json:"excludes,omitempty"`
	Backend       string            `json:"backend,omitempty"`
	Rclone        RcloneConfig      `json:"rclone,omitempty"`
	S3            S3Config          `json:"s3,omitempty"`
	GCS           GCSConfig         `json:"gcs,omitempty"`
	LogFile       string            `json:"log_file,omitempty"`
	LogLevel      string            `json:"log_level,omitempty"`
}

// ConfigurationError is a missing or invalid setting. It is fatal.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// IsConfigurationError reports whether err contains a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cerr *ConfigurationError
	return errors.As(err, &cerr)
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Interval.Duration == 0 {
		c.Interval.Duration = DefaultInterval
	}
	if c.HashWorkers == 0 {
		c.HashWorkers = runtime.NumCPU()
	}
	if c.Transfers == 0 {
		c.Transfers = DefaultTransfers
	}
	if c.HashAlgorithm == "" {
		c.HashAlgorithm = string(checksum.MD5)
	}
	if c.DedupPolicy == "" {
		c.DedupPolicy = string(planner.DedupDigest)
	}
	if c.Backend == "" {
		c.Backend = BackendRclone
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// ExpandPath expands a leading "~".
func ExpandPath(p string) (string, error) {
	return homedirExpand(p)
}

// Load reads the configuration at path, applies defaults and expands "~" in
// path settings. Unknown keys are rejected.
func Load(fs afero.Fs, p string) (*Config, error) {
	expanded, err := ExpandPath(p)
	if err != nil {
		return nil, &ConfigurationError{Field: "config", Reason: "expand path", Err: err}
	}

	data, err := afero.ReadFile(fs, expanded)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &ConfigurationError{
				Field:  "config",
				Reason: fmt.Sprintf("no configuration at %s, run `hash-backup init` to create one", expanded),
			}
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	c := &Config{}
	if err := yaml.UnmarshalStrict(data, c, yaml.DisallowUnknownFields); err != nil {
		return nil, &ConfigurationError{Field: "config", Reason: "parse " + expanded, Err: err}
	}
	c.applyDefaults()

	for _, field := range []*string{&c.LocalRoot, &c.LogFile, &c.Rclone.Config, &c.GCS.CredentialsFile} {
		if *field == "" {
			continue
		}
		if *field, err = ExpandPath(*field); err != nil {
			return nil, &ConfigurationError{Field: "config", Reason: "expand path", Err: err}
		}
	}
	return c, nil
}

// Save writes c to path as YAML, readable only by the owner because it holds
// the obscured credential.
func Save(fs afero.Fs, p string, c *Config) error {
	expanded, err := ExpandPath(p)
	if err != nil {
		return fmt.Errorf("expand config path: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := fs.MkdirAll(filepath.Dir(expanded), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := afero.WriteFile(fs, expanded, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks that c describes a runnable job. Every problem found is
// returned, joined.
func (c *Config) Validate(fs afero.Fs) error {
	var errs []error
	invalid := func(field, format string, args ...interface{}) {
		errs = append(errs, &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	if c.LocalRoot == "" {
		invalid("local_root", "is required")
	} else if info, err := fs.Stat(c.LocalRoot); err != nil {
		invalid("local_root", "%s does not exist", c.LocalRoot)
	} else if !info.IsDir() {
		invalid("local_root", "%s is not a directory", c.LocalRoot)
	}

	if c.Interval.Duration <= 0 {
		invalid("interval", "must be positive, got %s", c.Interval)
	}
	if c.Transfers < 0 {
		invalid("transfers", "must not be negative")
	}
	if c.HashWorkers < 0 {
		invalid("hash_workers", "must not be negative")
	}

	algorithm, err := checksum.ParseAlgorithm(c.HashAlgorithm)
	if err != nil {
		invalid("hash_algorithm", "%v", err)
	}
	if _, err := planner.ParseDedupPolicy(c.DedupPolicy); err != nil {
		invalid("dedup_policy", "%v", err)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		invalid("log_level", "%v", err)
	}

	switch c.Backend {
	case BackendRclone:
		if c.Remote.Name == "" && c.Remote.Type == "" {
			invalid("remote.name", "is required for the rclone backend")
		}
		if c.Remote.Type != "" && c.Remote.Host == "" {
			invalid("remote.host", "is required when remote.type is set")
		}
	case BackendS3:
		if _, _, err := s3client.ParseS3URI(c.S3.URI); err != nil {
			invalid("s3.uri", "%v", err)
		}
		if algorithm != "" && algorithm != checksum.MD5 {
			invalid("hash_algorithm", "the s3 backend only lists md5")
		}
	case BackendGCS:
		if c.GCS.Bucket == "" {
			invalid("gcs.bucket", "is required for the gcs backend")
		}
		if algorithm != "" && algorithm != checksum.MD5 {
			invalid("hash_algorithm", "the gcs backend only lists md5")
		}
	default:
		invalid("backend", "unknown backend %q, want rclone, s3 or gcs", c.Backend)
	}

	return errors.Join(errs...)
}

// Algorithm returns the parsed hash algorithm. Call after Validate.
func (c *Config) Algorithm() checksum.Algorithm {
	a, _ := checksum.ParseAlgorithm(c.HashAlgorithm)
	return a
}

// Policy returns the parsed dedup policy. Call after Validate.
func (c *Config) Policy() planner.DedupPolicy {
	p, _ := planner.ParseDedupPolicy(c.DedupPolicy)
	return p
}

// RemoteBase returns the remote directory that mirrors the local root. For
// S3 it lives below the key prefix of s3.uri.
func (c *Config) RemoteBase() string {
	if c.Backend != BackendS3 {
		return c.Remote.Path
	}
	_, prefix, err := s3client.ParseS3URI(c.S3.URI)
	if err != nil || prefix == "" {
		return c.Remote.Path
	}
	return path.Join(strings.TrimSuffix(prefix, "/"), c.Remote.Path)
}

// S3Bucket returns the bucket named by s3.uri.
func (c *Config) S3Bucket() string {
	bucket, _, _ := s3client.ParseS3URI(c.S3.URI)
	return bucket
}
