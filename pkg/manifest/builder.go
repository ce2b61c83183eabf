package manifest

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"github.com/yuya-takeyama/hash-backup/internal/checksum"
	"github.com/yuya-takeyama/hash-backup/internal/walker"
	"github.com/yuya-takeyama/hash-backup/internal/worker"
	"github.com/yuya-takeyama/hash-backup/pkg/logger"
)

// BuilderOptions configures a Builder.
type BuilderOptions struct {
	Algorithm checksum.Algorithm
	Workers   int // <= 0 means runtime.NumCPU()
	Excludes  []string
}

// Builder hashes a local tree into a LocalManifest.
type Builder struct {
	fs       afero.Fs
	hasher   *checksum.Hasher
	pool     *worker.Pool
	excludes []string
	logger   logger.Logger
}

// NewBuilder creates a manifest builder reading from fs.
func NewBuilder(fs afero.Fs, opts BuilderOptions, log logger.Logger) *Builder {
	if log == nil {
		log = logger.NullLogger{}
	}
	algorithm := opts.Algorithm
	if algorithm == "" {
		algorithm = checksum.MD5
	}
	return &Builder{
		fs:       fs,
		hasher:   checksum.NewHasher(fs, algorithm),
		pool:     worker.NewPool(opts.Workers),
		excludes: opts.Excludes,
		logger:   log,
	}
}

// Build walks root and hashes every regular file on the worker pool. Files
// that cannot be read are logged and recorded in Failures; they never fail the
// build. A missing or non-directory root is an error.
func (b *Builder) Build(ctx context.Context, root string) (*LocalManifest, error) {
	w, err := walker.NewWalker(b.fs, root, b.excludes)
	if err != nil {
		return nil, fmt.Errorf("local root: %w", err)
	}

	walked, err := w.Walk()
	if err != nil {
		return nil, err
	}

	m := NewLocalManifest(w.Root())
	for _, werr := range walked.Errors {
		ioErr := &LocalIOError{Path: werr.Path, Err: werr.Err}
		m.Failures = append(m.Failures, ioErr)
		b.logger.HashFailed(werr.Path, werr.Err)
	}

	results := worker.Run(ctx, b.pool, walked.Files, func(_ context.Context, f walker.FileInfo) (string, error) {
		return b.hasher.HashFile(f.Path)
	})

	for _, r := range results {
		if r.Err != nil {
			m.Failures = append(m.Failures, &LocalIOError{Path: r.Job.Path, Err: r.Err})
			b.logger.HashFailed(r.Job.Path, r.Err)
			continue
		}
		b.logger.Hashed(r.Job.Path, r.Value)
		m.Add(FileRecord{
			Digest:  r.Value,
			Path:    r.Job.Path,
			RelPath: r.Job.RelPath,
			Size:    r.Job.Size,
		})
	}

	return m, nil
}
