package dircache

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCreateRecursesAndIsIdempotent(t *testing.T) {
	root := t.TempDir()
	c := &Cache{RootPath: root}
	if err := c.Create("a/b/c"); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(filepath.Join(root, "a", "b", "c"))
	if err != nil {
		t.Fatal(err)
	}
	if !info.IsDir() {
		t.Fatal("expected a directory")
	}
	// second call must not error even though everything now exists.
	if err := c.Create("a/b/c"); err != nil {
		t.Fatal(err)
	}
}

func TestCreateDot(t *testing.T) {
	c := &Cache{RootPath: t.TempDir()}
	if err := c.Create("."); err != nil {
		t.Fatal(err)
	}
}
