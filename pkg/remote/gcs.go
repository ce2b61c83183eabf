package remote

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/yuya-takeyama/hash-backup/internal/checksum"
	"github.com/yuya-takeyama/hash-backup/internal/worker"
)

type gcsObject struct {
	Name string
	MD5  []byte
}

// gcsBucket is the part of a bucket handle the gateway needs.
type gcsBucket interface {
	List(ctx context.Context, prefix string) ([]gcsObject, error)
	Write(ctx context.Context, key, contentType string, r io.Reader) error
}

type storageBucket struct {
	handle *storage.BucketHandle
	// newWriter replaces the object writer in tests.
	newWriter func(ctx context.Context, key, contentType string) io.WriteCloser
}

func (b storageBucket) List(ctx context.Context, prefix string) ([]gcsObject, error) {
	var objects []gcsObject
	it := b.handle.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		objects = append(objects, gcsObject{Name: attrs.Name, MD5: attrs.MD5})
	}
	return objects, nil
}

func (b storageBucket) openWriter(ctx context.Context, key, contentType string) io.WriteCloser {
	if b.newWriter != nil {
		return b.newWriter(ctx, key, contentType)
	}
	w := b.handle.Object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	return w
}

func (b storageBucket) Write(ctx context.Context, key, contentType string, r io.Reader) error {
	// Cancelling the writer's context before Close aborts the upload instead
	// of committing a truncated object.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := b.openWriter(wctx, key, contentType)
	if _, err := io.Copy(w, r); err != nil {
		cancel()
		w.Close()
		return fmt.Errorf("write object: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// GCS is a gateway backed by Google Cloud Storage.
type GCS struct {
	bucket gcsBucket
	name   string
}

// NewGCS creates a gateway for the named bucket.
func NewGCS(client *storage.Client, bucket string) *GCS {
	return &GCS{bucket: storageBucket{handle: client.Bucket(bucket)}, name: bucket}
}

func (g *GCS) ObscureSecret(context.Context, string) (string, error) {
	return "", &ToolError{Op: "obscure", Target: "gs://" + g.name, Err: ErrUnsupported}
}

func (g *GCS) ListHashes(ctx context.Context, remotePath string, algorithm checksum.Algorithm) ([]string, error) {
	target := g.uri(remotePath)
	if algorithm != checksum.MD5 {
		return nil, &ToolError{Op: "hashsum", Target: target, Err: fmt.Errorf("%w: %s", ErrUnsupportedHash, algorithm)}
	}

	prefix := dirKey(remotePath)
	objects, err := g.bucket.List(ctx, prefix)
	if err != nil {
		return nil, &ToolError{Op: "hashsum", Target: target, Err: err}
	}

	var lines []string
	for _, obj := range objects {
		// Composite objects carry no MD5
		if strings.HasSuffix(obj.Name, "/") || len(obj.MD5) == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s  %s", hex.EncodeToString(obj.MD5), trimKeyPrefix(obj.Name, prefix)))
	}
	return lines, nil
}

func (g *GCS) EnsureDirectory(ctx context.Context, remotePath string) error {
	key := dirKey(remotePath)
	if key == "" {
		return nil
	}
	if err := g.bucket.Write(ctx, key, "", strings.NewReader("")); err != nil {
		return &ToolError{Op: "mkdir", Target: g.uri(remotePath), Err: err}
	}
	return nil
}

// Copy uploads a file or a directory tree. At most concurrency files are
// uploaded at once.
func (g *GCS) Copy(ctx context.Context, sourcePath, remoteDestPath string, concurrency int) error {
	uploads, err := collectUploads(sourcePath, remoteDestPath)
	if err != nil {
		return &ToolError{Op: "copy", Target: g.uri(remoteDestPath), Err: err}
	}

	results := worker.Run(ctx, worker.NewPool(concurrency), uploads, func(ctx context.Context, u upload) (struct{}, error) {
		return struct{}{}, g.copyFile(ctx, u)
	})
	for _, r := range results {
		if r.Err != nil {
			return &ToolError{Op: "copy", Target: g.uri(r.Job.remotePath), Err: r.Err}
		}
	}
	return nil
}

func (g *GCS) copyFile(ctx context.Context, u upload) error {
	f, err := os.Open(u.localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return g.bucket.Write(ctx, objectKey(u.remotePath), guessContentType(u.localPath), f)
}

func (g *GCS) uri(remotePath string) string {
	return "gs://" + g.name + "/" + objectKey(remotePath)
}
