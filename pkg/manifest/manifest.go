// Package manifest builds the per-cycle content manifests: what the local tree
// holds and what the remote already has, both keyed by content digest.
package manifest

import (
	"fmt"
	"sort"
)

// FileRecord is one hashed local file.
type FileRecord struct {
	Digest  string
	Path    string // Absolute local path
	RelPath string // Slash separated, relative to the local root
	Size    int64
}

// LocalManifest maps content digests to local files. Files with identical
// content collapse into one ByDigest entry; the record hashed last wins.
type LocalManifest struct {
	Root     string
	ByDigest map[string]FileRecord
	Files    []FileRecord // Every hashed file, in walk order
	Failures []*LocalIOError
}

// NewLocalManifest returns an empty manifest for root.
func NewLocalManifest(root string) *LocalManifest {
	return &LocalManifest{
		Root:     root,
		ByDigest: make(map[string]FileRecord),
	}
}

// Add records a hashed file.
func (m *LocalManifest) Add(rec FileRecord) {
	m.ByDigest[rec.Digest] = rec
	m.Files = append(m.Files, rec)
}

// Len returns the number of distinct digests.
func (m *LocalManifest) Len() int {
	return len(m.ByDigest)
}

// Digests returns the distinct digests in sorted order.
func (m *LocalManifest) Digests() []string {
	return sortedKeys(m.ByDigest)
}

// RemoteManifest maps content digests to remote paths, parsed from a hash
// listing. Entries keeps the reverse direction for path based checks.
type RemoteManifest struct {
	Base     string
	ByDigest map[string]string
	Entries  map[string]string // remote path -> digest
}

// NewRemoteManifest returns an empty manifest rooted at base.
func NewRemoteManifest(base string) *RemoteManifest {
	return &RemoteManifest{
		Base:     base,
		ByDigest: make(map[string]string),
		Entries:  make(map[string]string),
	}
}

// Add records a remote file.
func (m *RemoteManifest) Add(digest, remotePath string) {
	m.ByDigest[digest] = remotePath
	m.Entries[remotePath] = digest
}

// Has reports whether digest is present remotely.
func (m *RemoteManifest) Has(digest string) bool {
	_, ok := m.ByDigest[digest]
	return ok
}

// Len returns the number of distinct digests.
func (m *RemoteManifest) Len() int {
	return len(m.ByDigest)
}

// IsEmpty reports whether nothing is known remotely.
func (m *RemoteManifest) IsEmpty() bool {
	return m == nil || len(m.ByDigest) == 0
}

// LocalIOError is a per-file read failure. The file is left out of the manifest.
type LocalIOError struct {
	Path string
	Err  error
}

func (e *LocalIOError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e *LocalIOError) Unwrap() error {
	return e.Err
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
