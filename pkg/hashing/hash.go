// Package hashing provides content hashers for regular files.
package hashing

import (
	"encoding/binary"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/albertocavalcante/fsmirror/internal/metrics"
	"github.com/albertocavalcante/fsmirror/pkg/snapshot"
	"github.com/cespare/xxhash/v2"
	"github.com/minio/sha256-simd"
	"github.com/zeebo/xxh3"
)

// Hasher computes the content digest of a regular file. The metadata is
// what the caller observed when it decided to hash the file; implementations
// may use it for caching but must not fold it into the digest.
type Hasher interface {
	Hash(path string, meta snapshot.FileMetadata) (snapshot.HashCode, error)
}

// Supported algorithm names.
const (
	AlgorithmXXH3   = "xxh3"
	AlgorithmXXHash = "xxhash"
	AlgorithmSHA256 = "sha256"
)

// DefaultAlgorithm is used when no algorithm is configured.
const DefaultAlgorithm = AlgorithmXXH3

// New returns the hasher for the named algorithm.
func New(algorithm string) (Hasher, error) {
	switch algorithm {
	case "", AlgorithmXXH3:
		return XXH3{}, nil
	case AlgorithmXXHash:
		return XXHash{}, nil
	case AlgorithmSHA256:
		return SHA256{}, nil
	default:
		return nil, fmt.Errorf("unknown hash algorithm %q", algorithm)
	}
}

// XXH3 hashes with the 128-bit XXH3 function.
type XXH3 struct{}

func (XXH3) Hash(path string, _ snapshot.FileMetadata) (snapshot.HashCode, error) {
	h := xxh3.New()
	if err := hashFile(path, h); err != nil {
		return snapshot.HashCode{}, err
	}
	return snapshot.HashCode(h.Sum128().Bytes()), nil
}

// XXHash hashes with 64-bit xxHash. The digest occupies the first eight bytes;
// the rest are zero.
type XXHash struct{}

func (XXHash) Hash(path string, _ snapshot.FileMetadata) (snapshot.HashCode, error) {
	h := xxhash.New()
	if err := hashFile(path, h); err != nil {
		return snapshot.HashCode{}, err
	}
	var out snapshot.HashCode
	binary.BigEndian.PutUint64(out[:8], h.Sum64())
	return out, nil
}

// SHA256 hashes with SHA-256 truncated to the digest width.
type SHA256 struct{}

func (SHA256) Hash(path string, _ snapshot.FileMetadata) (snapshot.HashCode, error) {
	h := sha256.New()
	if err := hashFile(path, h); err != nil {
		return snapshot.HashCode{}, err
	}
	var out snapshot.HashCode
	copy(out[:], h.Sum(nil))
	return out, nil
}

// hashFile streams the contents of path into h.
func hashFile(path string, h hash.Hash) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	n, err := io.Copy(h, f)
	if err != nil {
		return fmt.Errorf("failed to hash file: %w", err)
	}
	metrics.RecordHashedBytes(n)
	return nil
}

// HashBytes computes the XXH3-128 digest of data.
func HashBytes(data []byte) snapshot.HashCode {
	return snapshot.HashCode(xxh3.Hash128(data).Bytes())
}
