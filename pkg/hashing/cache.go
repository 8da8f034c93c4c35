package hashing

import (
	"fmt"

	"github.com/albertocavalcante/fsmirror/internal/metrics"
	"github.com/albertocavalcante/fsmirror/pkg/snapshot"
	lru "github.com/hashicorp/golang-lru/v2"
)

type cachedHash struct {
	meta snapshot.FileMetadata
	hash snapshot.HashCode
}

// CachingHasher reuses a previous digest while a file's length and
// last-modified time are unchanged.
type CachingHasher struct {
	delegate Hasher
	cache    *lru.Cache[string, cachedHash]
}

// NewCachingHasher wraps delegate with a cache of at most size entries.
func NewCachingHasher(delegate Hasher, size int) (*CachingHasher, error) {
	cache, err := lru.New[string, cachedHash](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create hash cache: %w", err)
	}
	return &CachingHasher{delegate: delegate, cache: cache}, nil
}

func (c *CachingHasher) Hash(path string, meta snapshot.FileMetadata) (snapshot.HashCode, error) {
	if cached, ok := c.cache.Get(path); ok && cached.meta == meta {
		metrics.RecordHashCache(true)
		return cached.hash, nil
	}
	metrics.RecordHashCache(false)

	h, err := c.delegate.Hash(path, meta)
	if err != nil {
		return h, err
	}
	c.cache.Add(path, cachedHash{meta: meta, hash: h})
	return h, nil
}

// Len returns the number of cached digests.
func (c *CachingHasher) Len() int {
	return c.cache.Len()
}

// Purge drops every cached digest.
func (c *CachingHasher) Purge() {
	c.cache.Purge()
}
