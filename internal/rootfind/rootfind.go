// Package rootfind locates a project's root directory: the nearest
// ancestor of the working directory that contains a ".updroot" marker
// file.
package rootfind

import (
	"os"
	"path/filepath"

	"golang.org/x/xerrors"
)

const markerName = ".updroot"

// ErrNotFound is returned when no ancestor of workingPath contains a
// ".updroot" marker.
type ErrNotFound struct{ WorkingPath string }

func (e *ErrNotFound) Error() string {
	return xerrors.Errorf("no %s found above %q", markerName, e.WorkingPath).Error()
}

// Find walks upward from workingPath (which must be absolute) looking
// for a directory containing ".updroot", and returns that directory.
func Find(workingPath string) (string, error) {
	dir := filepath.Clean(workingPath)
	for {
		_, err := os.Stat(filepath.Join(dir, markerName))
		if err == nil {
			return dir, nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", &ErrNotFound{WorkingPath: workingPath}
		}
		dir = parent
	}
}
