package planner

import (
	"fmt"
	"strings"
)

// DedupPolicy decides when a local file counts as already backed up.
type DedupPolicy string

const (
	// DedupDigest skips any file whose content exists anywhere remotely.
	// Local files with identical content collapse into one transfer.
	DedupDigest DedupPolicy = "digest"
	// DedupPath checks every local file at its own mirrored remote path.
	DedupPath DedupPolicy = "path"
)

// ParseDedupPolicy parses a policy name; empty means DedupDigest.
func ParseDedupPolicy(s string) (DedupPolicy, error) {
	switch DedupPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", DedupDigest:
		return DedupDigest, nil
	case DedupPath:
		return DedupPath, nil
	default:
		return "", fmt.Errorf("unknown dedup policy: %q", s)
	}
}

type Action string

const (
	ActionCopy Action = "copy"
	ActionSkip Action = "skip"
)

// BackupSet is the sorted set of local digests missing remotely.
type BackupSet []string

type Item struct {
	Action     Action
	Digest     string
	LocalPath  string
	RelPath    string
	RemoteDir  string // Directory the file is copied into
	RemotePath string
	Size       int64
	Reason     string
}

type Options struct {
	Policy     DedupPolicy
	RemoteBase string
}

// Plan is the transfer work for one cycle.
type Plan struct {
	BackupSet BackupSet
	Items     []Item // Copy items only, sorted by RemotePath
	Skipped   int    // Local files already present remotely

	// Bulk is set when nothing is known remotely; the whole tree can then
	// be copied in one request instead of per file.
	Bulk bool
}

// Len returns the number of files to copy.
func (p Plan) Len() int {
	return len(p.Items)
}
