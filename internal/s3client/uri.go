package s3client

import (
	"fmt"
	"path"
	"strings"
)

const uriScheme = "s3://"

// ParseS3URI splits s3://bucket/prefix into its bucket and key prefix. A
// non-empty prefix is returned cleaned with a trailing slash.
func ParseS3URI(uri string) (bucket, prefix string, err error) {
	rest, ok := strings.CutPrefix(uri, uriScheme)
	if !ok {
		return "", "", fmt.Errorf("invalid S3 URI %q: must start with %s", uri, uriScheme)
	}

	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("invalid S3 URI %q: missing bucket name", uri)
	}

	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return bucket, "", nil
	}
	prefix = path.Clean(prefix)
	if prefix == ".." || strings.HasPrefix(prefix, "../") {
		return "", "", fmt.Errorf("invalid S3 URI %q: prefix escapes the bucket", uri)
	}
	return bucket, prefix + "/", nil
}

// FormatURI renders bucket and key as an s3:// URI.
func FormatURI(bucket, key string) string {
	return uriScheme + bucket + "/" + strings.TrimPrefix(key, "/")
}
