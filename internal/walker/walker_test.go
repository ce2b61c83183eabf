package walker

import (
	"reflect"
	"sort"
	"testing"

	"github.com/spf13/afero"
)

func newTestFs(t *testing.T) afero.Fs {
	t.Helper()

	fs := afero.NewMemMapFs()
	testFiles := []struct {
		path    string
		isDir   bool
		content string
	}{
		{"/root/file1.txt", false, "content1"},
		{"/root/dir1", true, ""},
		{"/root/dir1/file3.txt", false, "content3"},
		{"/root/dir1/subdir", true, ""},
		{"/root/dir1/subdir/file5.txt", false, "content5"},
		{"/root/dir2", true, ""},
		{"/root/empty", true, ""},
		{"/root/dir2/file6.log", false, "content6"},
		{"/root/.hidden", false, "hidden"},
	}

	for _, tf := range testFiles {
		if tf.isDir {
			if err := fs.MkdirAll(tf.path, 0755); err != nil {
				t.Fatalf("Failed to create directory %s: %v", tf.path, err)
			}
			continue
		}
		if err := afero.WriteFile(fs, tf.path, []byte(tf.content), 0644); err != nil {
			t.Fatalf("Failed to create file %s: %v", tf.path, err)
		}
	}
	return fs
}

func TestWalk(t *testing.T) {
	fs := newTestFs(t)

	tests := []struct {
		name      string
		excludes  []string
		wantFiles []string
		wantDirs  []string
	}{
		{
			name:     "no excludes",
			excludes: nil,
			wantFiles: []string{
				".hidden",
				"dir1/file3.txt",
				"dir1/subdir/file5.txt",
				"dir2/file6.log",
				"file1.txt",
			},
			wantDirs: []string{".", "dir1", "dir1/subdir", "dir2", "empty"},
		},
		{
			name:     "exclude hidden files",
			excludes: []string{".*", "**/.*"},
			wantFiles: []string{
				"dir1/file3.txt",
				"dir1/subdir/file5.txt",
				"dir2/file6.log",
				"file1.txt",
			},
			wantDirs: []string{".", "dir1", "dir1/subdir", "dir2", "empty"},
		},
		{
			name:     "exclude directory pattern",
			excludes: []string{"dir1/"},
			wantFiles: []string{
				".hidden",
				"dir2/file6.log",
				"file1.txt",
			},
			wantDirs: []string{".", "dir2", "empty"},
		},
		{
			name:     "exclude by extension",
			excludes: []string{"**/*.log"},
			wantFiles: []string{
				".hidden",
				"dir1/file3.txt",
				"dir1/subdir/file5.txt",
				"file1.txt",
			},
			wantDirs: []string{".", "dir1", "dir1/subdir", "dir2", "empty"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewWalker(fs, "/root", tt.excludes)
			if err != nil {
				t.Fatalf("NewWalker() error = %v", err)
			}

			result, err := w.Walk()
			if err != nil {
				t.Fatalf("Walk() error = %v", err)
			}

			var gotFiles, gotDirs []string
			for _, f := range result.Files {
				gotFiles = append(gotFiles, f.RelPath)
			}
			for _, d := range result.Dirs {
				gotDirs = append(gotDirs, d.RelPath)
			}
			sort.Strings(gotFiles)
			sort.Strings(gotDirs)

			if !reflect.DeepEqual(gotFiles, tt.wantFiles) {
				t.Errorf("files = %v, want %v", gotFiles, tt.wantFiles)
			}
			if !reflect.DeepEqual(gotDirs, tt.wantDirs) {
				t.Errorf("dirs = %v, want %v", gotDirs, tt.wantDirs)
			}
		})
	}
}

func TestNewWalkerErrors(t *testing.T) {
	fs := newTestFs(t)

	if _, err := NewWalker(fs, "/does/not/exist", nil); err == nil {
		t.Error("expected error for missing root")
	}
	if _, err := NewWalker(fs, "/root/file1.txt", nil); err == nil {
		t.Error("expected error for file root")
	}
	if _, err := NewWalker(fs, "/root", []string{"[unclosed"}); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestRemotePath(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		relPath string
		want    string
	}{
		{"root maps to base", "/backups/home", ".", "/backups/home"},
		{"nested path", "/backups/home", "a/b.txt", "/backups/home/a/b.txt"},
		{"relative base", "backups", "a", "backups/a"},
		{"empty base", "", "a/b", "a/b"},
		{"trailing slash on base", "backups/", "a", "backups/a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RemotePath(tt.base, tt.relPath); got != tt.want {
				t.Errorf("RemotePath(%q, %q) = %q, want %q", tt.base, tt.relPath, got, tt.want)
			}
		})
	}
}
