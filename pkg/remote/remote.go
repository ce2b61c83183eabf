// Package remote defines the gateway to remote storage and its backends.
//
// Every remote operation of a backup cycle goes through Gateway, so the sync
// engine does not know whether bytes travel through an rclone subprocess or a
// native cloud SDK.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yuya-takeyama/hash-backup/internal/checksum"
)

// Gateway is the remote storage contract used by the sync engine. The remote
// identity is bound when the gateway is constructed; paths are relative to it.
type Gateway interface {
	// ObscureSecret turns a plaintext credential into its obscured form.
	ObscureSecret(ctx context.Context, plaintext string) (string, error)

	// ListHashes returns "digest name" lines for every file below remotePath.
	ListHashes(ctx context.Context, remotePath string, algorithm checksum.Algorithm) ([]string, error)

	// EnsureDirectory creates remotePath. An existing directory is not an error.
	EnsureDirectory(ctx context.Context, remotePath string) error

	// Copy copies sourcePath into the remote directory remoteDestPath. When
	// sourcePath is a directory its whole tree is copied.
	Copy(ctx context.Context, sourcePath, remoteDestPath string, concurrency int) error
}

var (
	ErrToolNotFound      = errors.New("remote tool not found")
	ErrMalformedOutput   = errors.New("malformed remote tool output")
	ErrRemoteUnavailable = errors.New("remote unavailable")
	ErrUnsupported       = errors.New("operation not supported by backend")
	ErrUnsupportedHash   = errors.New("hash algorithm not supported by backend")
)

// ToolError is returned when a gateway operation fails.
type ToolError struct {
	Op     string // hashsum, mkdir, copy or obscure
	Target string
	Stderr string
	Err    error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Op, e.Target, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Descriptor identifies a remote endpoint.
type Descriptor struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
	Host string `json:"host,omitempty"`
	Port string `json:"port,omitempty"`
	User string `json:"user,omitempty"`
	Pass string `json:"pass,omitempty"` // obscured
	Path string `json:"path"`
}

// RcloneRemote renders the descriptor as an rclone remote prefix. Without a
// type the descriptor names a remote from the rclone config file; otherwise an
// on-the-fly connection string is built.
func (d Descriptor) RcloneRemote() string {
	if d.Type == "" {
		return d.Name + ":"
	}

	var b strings.Builder
	b.WriteString(":")
	b.WriteString(d.Type)
	for _, kv := range [][2]string{
		{"host", d.Host},
		{"port", d.Port},
		{"user", d.User},
		{"pass", d.Pass},
	} {
		if kv[1] == "" {
			continue
		}
		b.WriteString(",")
		b.WriteString(kv[0])
		b.WriteString("=")
		b.WriteString(quoteParam(kv[1]))
	}
	b.WriteString(":")
	return b.String()
}

// quoteParam double quotes a connection string value, doubling embedded quotes.
func quoteParam(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}

// String hides the credential.
func (d Descriptor) String() string {
	if d.Type == "" {
		return fmt.Sprintf("%s:%s", d.Name, d.Path)
	}
	return fmt.Sprintf("%s(%s://%s@%s):%s", d.Name, d.Type, d.User, d.Host, d.Path)
}
