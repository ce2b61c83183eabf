package manifest

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"github.com/yuya-takeyama/hash-backup/internal/checksum"
	"github.com/yuya-takeyama/hash-backup/internal/walker"
	"github.com/yuya-takeyama/hash-backup/pkg/logger"
	"github.com/yuya-takeyama/hash-backup/pkg/remote"
)

// Fetcher retrieves the remote manifest through a gateway hash listing.
type Fetcher struct {
	gateway   remote.Gateway
	algorithm checksum.Algorithm
	excludes  []string
	logger    logger.Logger
}

// NewFetcher creates a fetcher.
func NewFetcher(gateway remote.Gateway, algorithm checksum.Algorithm, excludes []string, log logger.Logger) *Fetcher {
	if log == nil {
		log = logger.NullLogger{}
	}
	if algorithm == "" {
		algorithm = checksum.MD5
	}
	return &Fetcher{
		gateway:   gateway,
		algorithm: algorithm,
		excludes:  excludes,
		logger:    log,
	}
}

// Fetch lists remotePath and parses the result. When the listing fails the
// returned manifest is empty and the error wraps remote.ErrRemoteUnavailable;
// callers may keep going with the empty manifest. Output in which no line
// parses counts as a failed listing. Empty output is a genuinely empty remote
// and returns no error.
func (f *Fetcher) Fetch(ctx context.Context, remotePath string) (*RemoteManifest, error) {
	lines, err := f.gateway.ListHashes(ctx, remotePath, f.algorithm)
	if err != nil {
		f.logger.RemoteUnavailable(remotePath, err)
		return NewRemoteManifest(remotePath), fmt.Errorf("%w: %w", remote.ErrRemoteUnavailable, err)
	}

	m, skipped := ParseLines(remotePath, lines, f.excludes)
	if m.IsEmpty() && skipped > 0 {
		// Output without a single parsable line
		err := &remote.ToolError{Op: "hashsum", Target: remotePath, Err: remote.ErrMalformedOutput}
		f.logger.RemoteUnavailable(remotePath, err)
		return m, fmt.Errorf("%w: %w", remote.ErrRemoteUnavailable, err)
	}
	if skipped > 0 {
		f.logger.Warn(fmt.Sprintf("skipped %d malformed hash listing lines for %s", skipped, remotePath))
	}
	if m.IsEmpty() {
		f.logger.Info(fmt.Sprintf("remote %s is empty", remotePath))
	}
	return m, nil
}

// ParseLines builds a manifest from "digest name" lines. The digest is the
// first whitespace separated token and the name is the rest of the line, so
// names may contain spaces. Lines with fewer than two tokens or a digest that
// is not hex are skipped and counted. Names matching excludes are dropped.
func ParseLines(base string, lines []string, excludes []string) (*RemoteManifest, int) {
	m := NewRemoteManifest(base)
	skipped := 0

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		i := strings.IndexFunc(line, unicode.IsSpace)
		if i < 0 {
			skipped++
			continue
		}
		digest, name := line[:i], strings.TrimSpace(line[i:])
		if _, err := hex.DecodeString(digest); err != nil {
			skipped++
			continue
		}

		if walker.IsExcluded(name, excludes) {
			continue
		}
		m.Add(strings.ToLower(digest), walker.RemotePath(base, name))
	}

	return m, skipped
}
