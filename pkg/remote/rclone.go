package remote

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"

	"github.com/yuya-takeyama/hash-backup/internal/checksum"
)

// runFunc executes a command and returns its stdout and stderr.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, []byte, error)

// Rclone drives an rclone executable as a subprocess.
type Rclone struct {
	binary     string
	configPath string
	remote     string
	run        runFunc
}

// RcloneOptions configures the rclone gateway.
type RcloneOptions struct {
	Binary     string // Defaults to "rclone" from PATH
	ConfigPath string // Passed as --config when set
}

// NewRclone creates a gateway for the remote described by d.
func NewRclone(d Descriptor, opts RcloneOptions) *Rclone {
	binary := opts.Binary
	if binary == "" {
		binary = "rclone"
	}
	return &Rclone{
		binary:     binary,
		configPath: opts.ConfigPath,
		remote:     d.RcloneRemote(),
		run:        execRun,
	}
}

func execRun(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Target returns the rclone path for remotePath.
func (r *Rclone) Target(remotePath string) string {
	return r.remote + remotePath
}

func (r *Rclone) command(ctx context.Context, op, target string, args ...string) ([]byte, error) {
	if r.configPath != "" {
		args = append([]string{"--config", r.configPath}, args...)
	}

	stdout, stderr, err := r.run(ctx, r.binary, args...)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("%w: %s", ErrToolNotFound, r.binary)
		}
		return stdout, &ToolError{
			Op:     op,
			Target: target,
			Stderr: strings.TrimSpace(string(stderr)),
			Err:    err,
		}
	}
	return stdout, nil
}

func (r *Rclone) ObscureSecret(ctx context.Context, plaintext string) (string, error) {
	stdout, err := r.command(ctx, "obscure", "secret", "obscure", plaintext)
	if err != nil {
		return "", err
	}
	obscured := strings.TrimSpace(string(stdout))
	if obscured == "" {
		return "", &ToolError{Op: "obscure", Target: "secret", Err: ErrMalformedOutput}
	}
	return obscured, nil
}

func (r *Rclone) ListHashes(ctx context.Context, remotePath string, algorithm checksum.Algorithm) ([]string, error) {
	target := r.Target(remotePath)
	stdout, err := r.command(ctx, "hashsum", target, "hashsum", algorithm.RcloneName(), target)
	if err != nil {
		return nil, err
	}

	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(stdout))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := scanner.Text(); strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &ToolError{Op: "hashsum", Target: target, Err: fmt.Errorf("%w: %v", ErrMalformedOutput, err)}
	}
	return lines, nil
}

func (r *Rclone) EnsureDirectory(ctx context.Context, remotePath string) error {
	target := r.Target(remotePath)
	_, err := r.command(ctx, "mkdir", target, "mkdir", target)
	if err != nil && IsAlreadyExists(err) {
		return nil
	}
	return err
}

func (r *Rclone) Copy(ctx context.Context, sourcePath, remoteDestPath string, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 4
	}
	target := r.Target(remoteDestPath)
	_, err := r.command(ctx, "copy", target, "copy", fmt.Sprintf("--transfers=%d", concurrency), sourcePath, target)
	return err
}

// IsAlreadyExists reports whether a mkdir failure only says the directory exists.
func IsAlreadyExists(err error) bool {
	var toolErr *ToolError
	if !errors.As(err, &toolErr) {
		return false
	}
	msg := strings.ToLower(toolErr.Stderr)
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "file exists")
}
