// Package remotetest provides Gateway implementations for tests.
package remotetest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/yuya-takeyama/hash-backup/internal/checksum"
	"github.com/yuya-takeyama/hash-backup/pkg/remote"
)

// Call is one recorded gateway invocation.
type Call struct {
	Op   string
	Args []string
}

// Gateway is a mock gateway whose behavior is set through func fields. Calls
// are recorded; a nil func succeeds with an empty result.
type Gateway struct {
	ObscureFunc         func(ctx context.Context, plaintext string) (string, error)
	ListHashesFunc      func(ctx context.Context, remotePath string, algorithm checksum.Algorithm) ([]string, error)
	EnsureDirectoryFunc func(ctx context.Context, remotePath string) error
	CopyFunc            func(ctx context.Context, sourcePath, remoteDestPath string, concurrency int) error

	mu    sync.Mutex
	calls []Call
}

var _ remote.Gateway = (*Gateway)(nil)

func (g *Gateway) record(op string, args ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, Call{Op: op, Args: args})
}

// Calls returns the recorded calls for op, or all calls when op is empty.
func (g *Gateway) Calls(op string) []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []Call
	for _, c := range g.calls {
		if op == "" || c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (g *Gateway) ObscureSecret(ctx context.Context, plaintext string) (string, error) {
	g.record("obscure", plaintext)
	if g.ObscureFunc != nil {
		return g.ObscureFunc(ctx, plaintext)
	}
	return "obscured:" + plaintext, nil
}

func (g *Gateway) ListHashes(ctx context.Context, remotePath string, algorithm checksum.Algorithm) ([]string, error) {
	g.record("hashsum", remotePath, string(algorithm))
	if g.ListHashesFunc != nil {
		return g.ListHashesFunc(ctx, remotePath, algorithm)
	}
	return nil, nil
}

func (g *Gateway) EnsureDirectory(ctx context.Context, remotePath string) error {
	g.record("mkdir", remotePath)
	if g.EnsureDirectoryFunc != nil {
		return g.EnsureDirectoryFunc(ctx, remotePath)
	}
	return nil
}

func (g *Gateway) Copy(ctx context.Context, sourcePath, remoteDestPath string, concurrency int) error {
	g.record("copy", sourcePath, remoteDestPath, strconv.Itoa(concurrency))
	if g.CopyFunc != nil {
		return g.CopyFunc(ctx, sourcePath, remoteDestPath, concurrency)
	}
	return nil
}

// Memory is an in-memory remote. Copies read content from Local and make it
// visible to later ListHashes calls, so whole cycles can be replayed.
type Memory struct {
	Local afero.Fs

	mu    sync.Mutex
	dirs  map[string]bool
	files map[string][]byte // remote path -> content
	Gateway
}

// NewMemory creates an empty in-memory remote reading local files from fs.
func NewMemory(fs afero.Fs) *Memory {
	return &Memory{
		Local: fs,
		dirs:  make(map[string]bool),
		files: make(map[string][]byte),
	}
}

// Put stores content at remotePath directly.
func (m *Memory) Put(remotePath string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[clean(remotePath)] = content
}

// Files returns the stored remote paths in sorted order.
func (m *Memory) Files() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for p := range m.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// HasDir reports whether remotePath was created.
func (m *Memory) HasDir(remotePath string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirs[clean(remotePath)]
}

func (m *Memory) ListHashes(ctx context.Context, remotePath string, algorithm checksum.Algorithm) ([]string, error) {
	if m.ListHashesFunc != nil {
		return m.Gateway.ListHashes(ctx, remotePath, algorithm)
	}
	m.record("hashsum", remotePath, string(algorithm))

	m.mu.Lock()
	defer m.mu.Unlock()
	base := clean(remotePath)
	var lines []string
	for p, content := range m.files {
		rel, ok := relativeTo(base, p)
		if !ok {
			continue
		}
		digest, err := checksum.Calculate(bytes.NewReader(content), algorithm)
		if err != nil {
			return nil, err
		}
		lines = append(lines, digest+"  "+rel)
	}
	sort.Strings(lines)
	return lines, nil
}

func (m *Memory) EnsureDirectory(ctx context.Context, remotePath string) error {
	if m.EnsureDirectoryFunc != nil {
		return m.Gateway.EnsureDirectory(ctx, remotePath)
	}
	m.record("mkdir", remotePath)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[clean(remotePath)] = true
	return nil
}

func (m *Memory) Copy(ctx context.Context, sourcePath, remoteDestPath string, concurrency int) error {
	if m.CopyFunc != nil {
		return m.Gateway.Copy(ctx, sourcePath, remoteDestPath, concurrency)
	}
	m.record("copy", sourcePath, remoteDestPath, strconv.Itoa(concurrency))

	info, err := m.Local.Stat(sourcePath)
	if err != nil {
		return &remote.ToolError{Op: "copy", Target: remoteDestPath, Err: err}
	}
	if !info.IsDir() {
		return m.copyFile(sourcePath, path.Join(remoteDestPath, filepath.Base(sourcePath)))
	}

	return afero.Walk(m.Local, sourcePath, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(sourcePath, p)
		if err != nil {
			return err
		}
		return m.copyFile(p, path.Join(remoteDestPath, filepath.ToSlash(rel)))
	})
}

func (m *Memory) copyFile(localPath, remotePath string) error {
	content, err := afero.ReadFile(m.Local, localPath)
	if err != nil {
		return &remote.ToolError{Op: "copy", Target: remotePath, Err: err}
	}
	m.Put(remotePath, content)
	return nil
}

func clean(p string) string {
	return path.Clean("/" + p)
}

func relativeTo(base, p string) (string, bool) {
	if base == "/" {
		return strings.TrimPrefix(p, "/"), true
	}
	if !strings.HasPrefix(p, base+"/") {
		return "", false
	}
	return strings.TrimPrefix(p, base+"/"), true
}

// Lines formats digest/name pairs as a hash listing.
func Lines(pairs ...string) []string {
	if len(pairs)%2 != 0 {
		panic(fmt.Sprintf("remotetest.Lines: odd number of arguments: %d", len(pairs)))
	}
	var lines []string
	for i := 0; i < len(pairs); i += 2 {
		lines = append(lines, pairs[i]+"  "+pairs[i+1])
	}
	return lines
}
