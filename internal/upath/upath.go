// Package upath implements the path arithmetic used throughout upd:
// splitting and joining slash-separated paths, resolving a path to an
// absolute one, converting an absolute path to one local to a root
// directory, and computing a path relative to an arbitrary directory.
//
// Every path here is always slash-separated text, never consulted
// against the filesystem; callers decide when (if ever) to stat
// anything.
package upath

import (
	"strings"

	"golang.org/x/xerrors"
)

// Split breaks path into its non-empty, non-"." components, collapsing
// ".." against a preceding component when one is available, and
// reports whether path was absolute. A leading ".." with nothing to
// pop is kept for a relative path (matching a path walking above its
// base), but dropped for an absolute one, since climbing above the
// root stays at the root.
func Split(path string) ([]string, bool) {
	absolute := IsAbsolute(path)
	var parts []string
	i := 0
	for i < len(path) {
		j := i
		for j < len(path) && path[j] != '/' {
			j++
		}
		part := path[i:j]
		switch {
		case part == ".." && len(parts) > 0:
			parts = parts[:len(parts)-1]
		case part == ".." && absolute:
			// can't climb above the root; drop it.
		case part != "." && part != "":
			parts = append(parts, part)
		}
		for j < len(path) && path[j] == '/' {
			j++
		}
		i = j
	}
	return parts, absolute
}

// Join is the inverse of Split: an empty parts list yields "." unless
// absolute is set, in which case it yields "/"; otherwise the parts
// are joined with "/", prefixed with a leading "/" when absolute.
func Join(parts []string, absolute bool) string {
	if len(parts) == 0 {
		if absolute {
			return "/"
		}
		return "."
	}
	result := strings.Join(parts, "/")
	if absolute {
		return "/" + result
	}
	return result
}

// Normalize removes redundant "." and ".." components from path,
// preserving whether it was absolute.
func Normalize(path string) string {
	parts, absolute := Split(path)
	return Join(parts, absolute)
}

// IsAbsolute reports whether path starts with a slash.
func IsAbsolute(path string) bool {
	return len(path) > 0 && path[0] == '/'
}

// GetAbsolute resolves relativePath against workingPath (itself assumed
// absolute) unless relativePath is already absolute, and normalizes the
// result.
func GetAbsolute(relativePath, workingPath string) string {
	if IsAbsolute(relativePath) {
		return Normalize(relativePath)
	}
	return Normalize(workingPath + "/" + relativePath)
}

// ErrOutOfRoot is returned by GetLocal when the resolved absolute path
// does not fall under rootPath.
type ErrOutOfRoot struct {
	RelativePath string
}

func (e *ErrOutOfRoot) Error() string {
	return xerrors.Errorf("path %q falls outside of the root directory", e.RelativePath).Error()
}

// GetLocal resolves relativePath (against workingPath) into a path local
// to rootPath, i.e. with the rootPath prefix stripped. It fails with
// *ErrOutOfRoot if the resolved absolute path is not a descendant of
// rootPath; rootPath itself is rejected as well.
func GetLocal(rootPath, relativePath, workingPath string) (string, error) {
	absolutePath := GetAbsolute(relativePath, workingPath)
	if !strings.HasPrefix(absolutePath, rootPath) ||
		(len(absolutePath) > len(rootPath) && absolutePath[len(rootPath)] != '/') {
		return "", &ErrOutOfRoot{RelativePath: relativePath}
	}
	if len(absolutePath) == len(rootPath) {
		return "", &ErrOutOfRoot{RelativePath: relativePath}
	}
	return absolutePath[len(rootPath)+1:], nil
}

// GetRelative computes the path one would need to write, while situated
// in targetPath, to reach relativePath (itself resolved against
// workingPath). The result uses ".." to climb out of targetPath as
// needed, the way a relative include path would.
func GetRelative(targetPath, relativePath, workingPath string) string {
	absolutePath := GetAbsolute(relativePath, workingPath)
	targetParts, _ := Split(targetPath)
	sourceParts, _ := Split(absolutePath)
	i := 0
	for i < len(targetParts) && i < len(sourceParts) && targetParts[i] == sourceParts[i] {
		i++
	}
	result := make([]string, 0, (len(targetParts)-i)+(len(sourceParts)-i))
	for j := i; j < len(targetParts); j++ {
		result = append(result, "..")
	}
	for j := i; j < len(sourceParts); j++ {
		result = append(result, sourceParts[j])
	}
	return Join(result, false)
}
