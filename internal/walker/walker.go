package walker

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
)

// FileInfo represents a local regular file
type FileInfo struct {
	Path    string // Absolute path
	RelPath string // Relative path from root, slash separated
	Size    int64
	ModTime int64 // Unix timestamp
	Mode    os.FileMode
}

// DirInfo represents a local directory. The root itself has RelPath ".".
type DirInfo struct {
	Path    string
	RelPath string
}

// WalkError records an entry that could not be read during the walk.
type WalkError struct {
	Path string
	Err  error
}

func (e *WalkError) Error() string {
	return fmt.Sprintf("walk %s: %v", e.Path, e.Err)
}

func (e *WalkError) Unwrap() error {
	return e.Err
}

// Result is the outcome of a walk.
type Result struct {
	Files  []FileInfo
	Dirs   []DirInfo
	Errors []*WalkError
}

// Walker walks local files with exclude pattern support
type Walker struct {
	fs       afero.Fs
	root     string
	excludes []string
}

// NewWalker creates a new file walker
func NewWalker(fs afero.Fs, root string, excludes []string) (*Walker, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("get absolute path: %w", err)
	}

	// Validate root exists and is a directory
	info, err := fs.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", absRoot)
	}

	for _, pattern := range excludes {
		if !doublestar.ValidatePattern(strings.TrimSuffix(pattern, "/")) {
			return nil, fmt.Errorf("invalid exclude pattern: %q", pattern)
		}
	}

	return &Walker{
		fs:       fs,
		root:     absRoot,
		excludes: excludes,
	}, nil
}

// Root returns the absolute root of the walk.
func (w *Walker) Root() string {
	return w.root
}

// Walk walks the tree and returns every non-excluded regular file and directory.
// Unreadable entries below the root are reported in Result.Errors and skipped.
func (w *Walker) Walk() (*Result, error) {
	result := &Result{}

	err := afero.Walk(w.fs, w.root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if p == w.root {
				return err
			}
			result.Errors = append(result.Errors, &WalkError{Path: p, Err: err})
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		relPath, err := filepath.Rel(w.root, p)
		if err != nil {
			return fmt.Errorf("get relative path: %w", err)
		}

		// Convert to forward slashes for pattern matching
		relPath = filepath.ToSlash(relPath)

		if info.IsDir() {
			if relPath != "." && w.IsExcluded(relPath) {
				return filepath.SkipDir
			}
			result.Dirs = append(result.Dirs, DirInfo{Path: p, RelPath: relPath})
			return nil
		}

		// Symlinks, devices and sockets are not backed up
		if !info.Mode().IsRegular() {
			return nil
		}

		if w.IsExcluded(relPath) {
			return nil
		}

		result.Files = append(result.Files, FileInfo{
			Path:    p,
			RelPath: relPath,
			Size:    info.Size(),
			ModTime: info.ModTime().Unix(),
			Mode:    info.Mode(),
		})

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}

	return result, nil
}

// IsExcluded checks if a slash separated relative path matches any exclude pattern
func (w *Walker) IsExcluded(relPath string) bool {
	return IsExcluded(relPath, w.excludes)
}

// IsExcluded checks if a path matches any of patterns. Patterns ending in "/"
// match a directory and everything below it.
func IsExcluded(relPath string, patterns []string) bool {
	for _, pattern := range patterns {
		// Handle directory patterns (ending with /)
		if strings.HasSuffix(pattern, "/") {
			dirPattern := strings.TrimSuffix(pattern, "/")
			// Check the path itself and each of its parent directories
			parts := strings.Split(relPath, "/")
			for i := 1; i <= len(parts); i++ {
				subPath := strings.Join(parts[:i], "/")
				if matched, _ := doublestar.Match(dirPattern, subPath); matched {
					return true
				}
			}
		} else {
			// Regular file pattern
			if matched, _ := doublestar.Match(pattern, relPath); matched {
				return true
			}
		}
	}
	return false
}

// RemotePath converts a local relative path to a path under the remote base.
func RemotePath(base, relPath string) string {
	relPath = filepath.ToSlash(relPath)
	if relPath == "." || relPath == "" {
		return base
	}
	if base == "" {
		return relPath
	}
	return path.Join(base, relPath)
}
