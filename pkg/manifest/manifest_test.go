package manifest

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuya-takeyama/hash-backup/internal/checksum"
	"github.com/yuya-takeyama/hash-backup/pkg/logger"
	"github.com/yuya-takeyama/hash-backup/pkg/remote"
	"github.com/yuya-takeyama/hash-backup/pkg/remote/remotetest"
)

const (
	md5Hello = "5d41402abc4b2a76b9719d911017c592"
	md5World = "7d793037a0760186574b0282f2f435e7"
	md5Empty = "d41d8cd98f00b204e9800998ecf8427e"
)

var errUnreadable = errors.New("unreadable")

// failingFs fails Open for one path.
type failingFs struct {
	afero.Fs
	path string
}

func (f failingFs) Open(name string) (afero.File, error) {
	if name == f.path {
		return nil, &os.PathError{Op: "open", Path: name, Err: errUnreadable}
	}
	return f.Fs.Open(name)
}

func newTree(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	files := map[string]string{
		"/data/a.txt":         "hello",
		"/data/b.txt":         "world",
		"/data/sub/copy.txt":  "hello",
		"/data/sub/empty.txt": "",
		"/data/.git/HEAD":     "ref",
	}
	for p, content := range files {
		require.NoError(t, afero.WriteFile(fs, p, []byte(content), 0644))
	}
	return fs
}

func TestBuilderBuild(t *testing.T) {
	fs := newTree(t)
	b := NewBuilder(fs, BuilderOptions{Workers: 2, Excludes: []string{".git/"}}, nil)

	m, err := b.Build(context.Background(), "/data")
	require.NoError(t, err)

	assert.Equal(t, "/data", m.Root)
	assert.Len(t, m.Files, 4)
	assert.Empty(t, m.Failures)
	assert.ElementsMatch(t, []string{md5Hello, md5World, md5Empty}, m.Digests())

	// Duplicate content collapses into one entry, last walked file wins
	assert.Equal(t, 3, m.Len())
	assert.Equal(t, "/data/sub/copy.txt", m.ByDigest[md5Hello].Path)
	assert.Equal(t, "sub/copy.txt", m.ByDigest[md5Hello].RelPath)
	assert.Equal(t, "/data/b.txt", m.ByDigest[md5World].Path)
	assert.Equal(t, int64(5), m.ByDigest[md5World].Size)
}

func TestBuilderExcludesUnreadableFiles(t *testing.T) {
	fs := failingFs{Fs: newTree(t), path: "/data/b.txt"}
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	b := NewBuilder(fs, BuilderOptions{Workers: 4}, logger.New(log))
	m, err := b.Build(context.Background(), "/data")
	require.NoError(t, err)

	_, ok := m.ByDigest[md5World]
	assert.False(t, ok)
	require.Len(t, m.Failures, 1)
	assert.Equal(t, "/data/b.txt", m.Failures[0].Path)
	assert.ErrorIs(t, m.Failures[0], errUnreadable)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["path"] == "/data/b.txt" {
			warned = true
		}
	}
	assert.True(t, warned, "hash failure should be logged")
}

func TestBuilderRootErrors(t *testing.T) {
	fs := newTree(t)
	b := NewBuilder(fs, BuilderOptions{}, nil)

	_, err := b.Build(context.Background(), "/missing")
	assert.Error(t, err)

	_, err = b.Build(context.Background(), "/data/a.txt")
	assert.Error(t, err)
}

func TestBuilderEmptyTree(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/empty", 0755))

	m, err := NewBuilder(fs, BuilderOptions{Algorithm: checksum.SHA256}, nil).Build(context.Background(), "/empty")
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())
	assert.Empty(t, m.Digests())
}

func TestParseLines(t *testing.T) {
	tests := []struct {
		name        string
		base        string
		lines       []string
		excludes    []string
		wantDigests map[string]string
		wantSkipped int
	}{
		{
			name:  "simple listing",
			base:  "/backups",
			lines: []string{md5Hello + "  a.txt", md5World + "  sub/b.txt"},
			wantDigests: map[string]string{
				md5Hello: "/backups/a.txt",
				md5World: "/backups/sub/b.txt",
			},
		},
		{
			name:  "names with spaces and tabs",
			base:  "backups",
			lines: []string{md5Hello + "\tmy file.txt", "  " + md5World + "   two  spaces.txt  "},
			wantDigests: map[string]string{
				md5Hello: "backups/my file.txt",
				md5World: "backups/two  spaces.txt",
			},
		},
		{
			name:        "malformed lines skipped",
			base:        "b",
			lines:       []string{"", "   ", "justonetoken", "ERROR: not hex", md5Empty + "  e.txt"},
			wantDigests: map[string]string{md5Empty: "b/e.txt"},
			wantSkipped: 2,
		},
		{
			name:        "uppercase digests normalized",
			base:        "b",
			lines:       []string{"5D41402ABC4B2A76B9719D911017C592  a.txt"},
			wantDigests: map[string]string{md5Hello: "b/a.txt"},
		},
		{
			name:        "excluded names dropped",
			base:        "b",
			lines:       []string{md5Hello + "  a.txt", md5World + "  .git/HEAD"},
			excludes:    []string{".git/"},
			wantDigests: map[string]string{md5Hello: "b/a.txt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, skipped := ParseLines(tt.base, tt.lines, tt.excludes)
			assert.Equal(t, tt.wantDigests, m.ByDigest)
			assert.Equal(t, tt.wantSkipped, skipped)
			for digest, p := range tt.wantDigests {
				assert.Equal(t, digest, m.Entries[p])
			}
		})
	}
}

func TestFetcherFetch(t *testing.T) {
	gw := &remotetest.Gateway{
		ListHashesFunc: func(_ context.Context, remotePath string, algorithm checksum.Algorithm) ([]string, error) {
			assert.Equal(t, "backups", remotePath)
			assert.Equal(t, checksum.MD5, algorithm)
			return remotetest.Lines(md5Hello, "a.txt", md5World, "b.txt"), nil
		},
	}

	m, err := NewFetcher(gw, checksum.MD5, nil, nil).Fetch(context.Background(), "backups")
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())
	assert.True(t, m.Has(md5Hello))
	assert.False(t, m.IsEmpty())
}

func TestFetcherDistinguishesUnavailableFromEmpty(t *testing.T) {
	t.Run("genuinely empty", func(t *testing.T) {
		gw := &remotetest.Gateway{}
		m, err := NewFetcher(gw, checksum.MD5, nil, nil).Fetch(context.Background(), "backups")
		require.NoError(t, err)
		assert.True(t, m.IsEmpty())
	})

	t.Run("tool not found", func(t *testing.T) {
		gw := &remotetest.Gateway{
			ListHashesFunc: func(context.Context, string, checksum.Algorithm) ([]string, error) {
				return nil, &remote.ToolError{Op: "hashsum", Target: "nas:backups", Err: remote.ErrToolNotFound}
			},
		}
		log, hook := test.NewNullLogger()

		m, err := NewFetcher(gw, checksum.MD5, nil, logger.New(log)).Fetch(context.Background(), "backups")
		require.Error(t, err)
		assert.ErrorIs(t, err, remote.ErrRemoteUnavailable)
		assert.ErrorIs(t, err, remote.ErrToolNotFound)
		require.NotNil(t, m)
		assert.True(t, m.IsEmpty())

		require.NotNil(t, hook.LastEntry())
		assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	})

	t.Run("unparsable output", func(t *testing.T) {
		gw := &remotetest.Gateway{
			ListHashesFunc: func(context.Context, string, checksum.Algorithm) ([]string, error) {
				return []string{"ERROR: something went wrong", "garbage"}, nil
			},
		}

		m, err := NewFetcher(gw, checksum.MD5, nil, nil).Fetch(context.Background(), "backups")
		assert.ErrorIs(t, err, remote.ErrRemoteUnavailable)
		assert.ErrorIs(t, err, remote.ErrMalformedOutput)
		assert.True(t, m.IsEmpty())
	})
}
