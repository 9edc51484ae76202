package hashcache

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHashMemoizesAndInvalidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	var c Cache
	h1, err := c.Hash(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("world!"), 0o644); err != nil {
		t.Fatal(err)
	}
	h2, err := c.Hash(path)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Errorf("expected memoized hash to be stable before invalidation")
	}
	c.Invalidate(path)
	h3, err := c.Hash(path)
	if err != nil {
		t.Fatal(err)
	}
	if h3 == h1 {
		t.Errorf("expected a different hash after invalidation and content change")
	}
}

func TestHashRejectsRelativePath(t *testing.T) {
	var c Cache
	if _, err := c.Hash("relative/path"); err == nil {
		t.Error("expected error for relative path")
	}
}
