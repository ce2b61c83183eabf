package remote

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/yuya-takeyama/hash-backup/internal/checksum"
	"github.com/yuya-takeyama/hash-backup/internal/s3client"
)

// md5MetadataKey holds the content MD5 of objects whose ETag is not an MD5
// (multipart uploads).
const md5MetadataKey = "md5"

// S3 is a gateway backed by the AWS S3 SDK. Remote paths are key prefixes
// inside a single bucket.
type S3 struct {
	client *s3client.Client
	bucket string
}

// NewS3 creates a gateway for bucket.
func NewS3(client *s3client.Client, bucket string) *S3 {
	return &S3{client: client, bucket: bucket}
}

func (g *S3) ObscureSecret(context.Context, string) (string, error) {
	return "", &ToolError{Op: "obscure", Target: "s3://" + g.bucket, Err: ErrUnsupported}
}

func (g *S3) ListHashes(ctx context.Context, remotePath string, algorithm checksum.Algorithm) ([]string, error) {
	target := g.uri(remotePath)
	if algorithm != checksum.MD5 {
		return nil, &ToolError{Op: "hashsum", Target: target, Err: fmt.Errorf("%w: %s", ErrUnsupportedHash, algorithm)}
	}

	prefix := dirKey(remotePath)
	var objects []types.Object
	err := g.client.ListObjectsV2Pages(ctx, g.bucket, prefix, func(page []types.Object) error {
		objects = append(objects, page...)
		return nil
	})
	if err != nil {
		return nil, &ToolError{Op: "hashsum", Target: target, Err: err}
	}

	var lines []string
	for _, obj := range objects {
		key := aws.ToString(obj.Key)
		// Directory markers
		if key == "" || strings.HasSuffix(key, "/") {
			continue
		}

		digest := strings.Trim(aws.ToString(obj.ETag), `"`)
		if digest == "" || strings.Contains(digest, "-") {
			// Multipart ETags are not content MD5s, fall back to stored metadata.
			// An object whose digest cannot be read is left out and uploaded again.
			head, err := g.client.HeadObject(ctx, g.bucket, key)
			if err != nil || head == nil {
				continue
			}
			digest = head.Metadata[md5MetadataKey]
			if digest == "" {
				continue
			}
		}

		lines = append(lines, fmt.Sprintf("%s  %s", strings.ToLower(digest), trimKeyPrefix(key, prefix)))
	}
	return lines, nil
}

func (g *S3) EnsureDirectory(ctx context.Context, remotePath string) error {
	key := dirKey(remotePath)
	if key == "" {
		// The bucket root always exists
		return nil
	}
	if err := g.client.PutEmpty(ctx, g.bucket, key); err != nil {
		return &ToolError{Op: "mkdir", Target: g.uri(remotePath), Err: err}
	}
	return nil
}

func (g *S3) Copy(ctx context.Context, sourcePath, remoteDestPath string, concurrency int) error {
	target := g.uri(remoteDestPath)
	uploads, err := collectUploads(sourcePath, remoteDestPath)
	if err != nil {
		return &ToolError{Op: "copy", Target: target, Err: err}
	}

	for _, u := range uploads {
		digest, err := hashLocalFile(u.localPath)
		if err != nil {
			return &ToolError{Op: "copy", Target: target, Err: err}
		}

		localPath := u.localPath
		err = g.client.Upload(ctx, s3client.UploadInput{
			Bucket:      g.bucket,
			Key:         objectKey(u.remotePath),
			ContentType: guessContentType(localPath),
			Metadata:    map[string]string{md5MetadataKey: digest},
			Concurrency: concurrency,
			Open: func() (io.ReadCloser, error) {
				return os.Open(localPath)
			},
		})
		if err != nil {
			return &ToolError{Op: "copy", Target: g.uri(u.remotePath), Err: err}
		}
	}
	return nil
}

func (g *S3) uri(remotePath string) string {
	return s3client.FormatURI(g.bucket, objectKey(remotePath))
}

type upload struct {
	localPath  string
	remotePath string
}

// collectUploads expands a copy request into individual files. A file source
// lands inside remoteDestPath; a directory source has its tree copied there.
func collectUploads(sourcePath, remoteDestPath string) ([]upload, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []upload{{
			localPath:  sourcePath,
			remotePath: path.Join(remoteDestPath, filepath.Base(sourcePath)),
		}}, nil
	}

	var uploads []upload
	err = filepath.Walk(sourcePath, func(p string, fi os.FileInfo, err error) error {
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
		uploads = append(uploads, upload{
			localPath:  p,
			remotePath: path.Join(remoteDestPath, filepath.ToSlash(rel)),
		})
		return nil
	})
	return uploads, err
}

func hashLocalFile(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return checksum.Calculate(f, checksum.MD5)
}

// objectKey converts a remote path into an object key without leading slash.
func objectKey(remotePath string) string {
	key := strings.TrimPrefix(path.Clean("/"+remotePath), "/")
	return key
}

// dirKey returns the key prefix under which the children of remotePath live.
func dirKey(remotePath string) string {
	key := objectKey(remotePath)
	if key == "" {
		return ""
	}
	return key + "/"
}

// trimKeyPrefix removes prefix from key; keys outside prefix are returned unchanged.
func trimKeyPrefix(key, prefix string) string {
	if prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, prefix)
}

func guessContentType(filename string) string {
	ext := filepath.Ext(filename)
	if ext == "" {
		return ""
	}
	return mime.TypeByExtension(ext)
}
