// Package hashcache memoizes 64-bit content hashes of files, keyed by
// absolute path, so the same file is never rehashed twice within a
// single build.
package hashcache

import (
	"io"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/xerrors"
)

const blockSize = 4096

// ErrNotAbsolute is returned by Hash when given a relative path; every
// caller is expected to resolve paths before reaching this cache.
type ErrNotAbsolute struct{ Path string }

func (e *ErrNotAbsolute) Error() string {
	return xerrors.Errorf("hashcache: path is not absolute: %q", e.Path).Error()
}

// Cache memoizes Hash results. The zero value is ready to use.
type Cache struct {
	mu sync.Mutex
	m  map[string]uint64
}

// HashFile streams path in 4 KiB blocks through a seed-0 xxhash64 and
// returns the digest, without using the cache.
func HashFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	h := xxhash.New()
	buf := make([]byte, blockSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}

// Hash returns the memoized content hash of the file at path, computing
// and caching it on first request. path must be absolute.
func (c *Cache) Hash(path string) (uint64, error) {
	if len(path) == 0 || path[0] != '/' {
		return 0, &ErrNotAbsolute{Path: path}
	}
	c.mu.Lock()
	if c.m == nil {
		c.m = make(map[string]uint64)
	}
	if h, ok := c.m[path]; ok {
		c.mu.Unlock()
		return h, nil
	}
	c.mu.Unlock()

	h, err := HashFile(path)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.m[path] = h
	c.mu.Unlock()
	return h, nil
}

// Invalidate removes any memoized hash for path, forcing the next Hash
// call to recompute it from disk.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	delete(c.m, path)
	c.mu.Unlock()
}
