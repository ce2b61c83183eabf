// Package mirror replicates the local directory hierarchy on the remote
// before any file content is transferred.
package mirror

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/yuya-takeyama/hash-backup/internal/walker"
	"github.com/yuya-takeyama/hash-backup/pkg/logger"
	"github.com/yuya-takeyama/hash-backup/pkg/remote"
)

// DirectoryPlan lists the remote directories that must exist, parents first.
type DirectoryPlan []string

// PlanDirectories derives the remote directory set from a walk: the root,
// every directory and every file's parent, with any missing intermediate
// level filled in. Directories are ordered by depth so a parent is always
// requested before its children.
func PlanDirectories(result *walker.Result, remoteBase string) DirectoryPlan {
	rel := map[string]struct{}{".": {}}
	add := func(p string) {
		for p != "." && p != "/" && p != "" {
			if _, ok := rel[p]; ok {
				return
			}
			rel[p] = struct{}{}
			p = path.Dir(p)
		}
	}

	if result != nil {
		for _, d := range result.Dirs {
			add(d.RelPath)
		}
		for _, f := range result.Files {
			add(path.Dir(f.RelPath))
		}
	}

	relPaths := make([]string, 0, len(rel))
	for p := range rel {
		relPaths = append(relPaths, p)
	}
	sort.Slice(relPaths, func(i, j int) bool {
		di, dj := depth(relPaths[i]), depth(relPaths[j])
		if di != dj {
			return di < dj
		}
		return relPaths[i] < relPaths[j]
	})

	plan := make(DirectoryPlan, 0, len(relPaths))
	for _, p := range relPaths {
		plan = append(plan, walker.RemotePath(remoteBase, p))
	}
	return plan
}

func depth(relPath string) int {
	if relPath == "." {
		return 0
	}
	return strings.Count(relPath, "/") + 1
}

// Failure records a directory that could not be ensured.
type Failure struct {
	RemotePath string
	Err        error
}

// Result summarizes a mirror pass.
type Result struct {
	Plan     DirectoryPlan
	Ensured  int
	Failures []Failure
}

type Options struct {
	Excludes []string
	DryRun   bool
}

// Mirror ensures remote directories through a gateway.
type Mirror struct {
	fs      afero.Fs
	gateway remote.Gateway
	opts    Options
	logger  logger.Logger
}

func New(fs afero.Fs, gateway remote.Gateway, opts Options, log logger.Logger) *Mirror {
	if log == nil {
		log = logger.NullLogger{}
	}
	return &Mirror{fs: fs, gateway: gateway, opts: opts, logger: log}
}

// Run walks localRoot and ensures every planned directory below remoteBase.
// Per-directory failures are logged and collected; the walk always runs to
// the end. Only an unusable local root is returned as an error.
func (m *Mirror) Run(ctx context.Context, localRoot, remoteBase string) (*Result, error) {
	w, err := walker.NewWalker(m.fs, localRoot, m.opts.Excludes)
	if err != nil {
		return nil, fmt.Errorf("local root: %w", err)
	}
	walked, err := w.Walk()
	if err != nil {
		return nil, err
	}
	for _, werr := range walked.Errors {
		m.logger.Error("walk", werr.Path, werr.Err)
	}

	result := &Result{Plan: PlanDirectories(walked, remoteBase)}
	for _, dir := range result.Plan {
		if m.opts.DryRun {
			m.logger.Info(fmt.Sprintf("(dryrun) mkdir %s", dir))
			result.Ensured++
			continue
		}

		err := m.gateway.EnsureDirectory(ctx, dir)
		m.logger.DirectoryEnsured(dir, err)
		if err != nil {
			result.Failures = append(result.Failures, Failure{RemotePath: dir, Err: err})
			continue
		}
		result.Ensured++
	}
	return result, nil
}
