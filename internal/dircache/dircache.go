// Package dircache memoizes which local directories under a root are
// known to exist, recursively creating missing ones on demand.
package dircache

import (
	"os"
	"path"
	"sync"

	"golang.org/x/xerrors"
)

// ErrCreate wraps a directory-creation failure other than "already
// exists".
type ErrCreate struct {
	LocalPath string
	Err       error
}

func (e *ErrCreate) Error() string {
	return xerrors.Errorf("failed to create directory %q: %w", e.LocalPath, e.Err).Error()
}

func (e *ErrCreate) Unwrap() error { return e.Err }

// Cache tracks which directories, relative to RootPath, are known to
// exist.
type Cache struct {
	RootPath string

	mu      sync.Mutex
	existing map[string]bool
}

// Create ensures localPath (and every ancestor of it) exists under
// c.RootPath, creating whatever is missing. It is idempotent: once a
// path has been created (or found to already exist), later calls are
// no-ops.
func (c *Cache) Create(localPath string) error {
	if localPath == "." {
		return nil
	}
	c.mu.Lock()
	if c.existing == nil {
		c.existing = make(map[string]bool)
	}
	if c.existing[localPath] {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.Create(path.Dir(localPath)); err != nil {
		return err
	}

	fullPath := c.RootPath + "/" + localPath
	if err := os.Mkdir(fullPath, 0o700); err != nil && !os.IsExist(err) {
		return &ErrCreate{LocalPath: localPath, Err: err}
	}

	c.mu.Lock()
	c.existing[localPath] = true
	c.mu.Unlock()
	return nil
}
