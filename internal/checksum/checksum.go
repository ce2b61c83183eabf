package checksum

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/spf13/afero"
)

// ChunkSize is the read size used when folding a file into its digest.
const ChunkSize = 4096

// Algorithm identifies a content digest algorithm.
type Algorithm string

const (
	MD5    Algorithm = "md5"
	SHA1   Algorithm = "sha1"
	SHA256 Algorithm = "sha256"
)

// ParseAlgorithm accepts the algorithm names used in config files and by rclone
// ("md5", "MD5", "sha-1", "SHA-256", ...).
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ReplaceAll(strings.ToLower(s), "-", "") {
	case "", "md5":
		return MD5, nil
	case "sha1":
		return SHA1, nil
	case "sha256":
		return SHA256, nil
	}
	return "", fmt.Errorf("unknown hash algorithm %q", s)
}

// RcloneName returns the name rclone's hashsum command expects.
func (a Algorithm) RcloneName() string {
	switch a {
	case SHA1:
		return "SHA-1"
	case SHA256:
		return "SHA-256"
	default:
		return "MD5"
	}
}

func (a Algorithm) newHash() hash.Hash {
	switch a {
	case SHA1:
		return sha1.New()
	case SHA256:
		return sha256.New()
	default:
		return md5.New()
	}
}

// Hasher computes content digests of files on a filesystem.
type Hasher struct {
	fs        afero.Fs
	algorithm Algorithm
}

// NewHasher creates a Hasher reading from fs.
func NewHasher(fs afero.Fs, algorithm Algorithm) *Hasher {
	if algorithm == "" {
		algorithm = MD5
	}
	return &Hasher{fs: fs, algorithm: algorithm}
}

// HashFile returns the lowercase hex digest of the file at path.
func (h *Hasher) HashFile(path string) (string, error) {
	file, err := h.fs.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	return Calculate(file, h.algorithm)
}

// Calculate folds r into a digest using ChunkSize reads and returns it hex encoded.
func Calculate(r io.Reader, algorithm Algorithm) (string, error) {
	sum := algorithm.newHash()
	buffer := make([]byte, ChunkSize)

	for {
		n, err := r.Read(buffer)
		if n > 0 {
			if _, err := sum.Write(buffer[:n]); err != nil {
				return "", fmt.Errorf("write to hash: %w", err)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read: %w", err)
		}
	}

	// Same format as rclone hashsum output
	return hex.EncodeToString(sum.Sum(nil)), nil
}

// CompareChecksums reports whether two hex digests are equal, ignoring case.
func CompareChecksums(checksum1, checksum2 string) bool {
	return strings.EqualFold(checksum1, checksum2)
}
