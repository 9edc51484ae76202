// Package uptodate computes a target's imprint — a digest of
// everything that determines whether it needs rebuilding — and
// compares it against the update log to decide whether a target can
// be skipped.
package uptodate

import (
	"encoding/binary"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/jeanlauliac/upd/internal/hashcache"
	"github.com/jeanlauliac/upd/internal/manifest"
	"github.com/jeanlauliac/upd/internal/updatelog"
	"golang.org/x/xerrors"
)

// ErrFileChangedManually is returned when a target's current content
// hash no longer matches the hash recorded the last time the engine
// produced it, meaning something else modified it since.
type ErrFileChangedManually struct{ LocalFilePath string }

func (e *ErrFileChangedManually) Error() string {
	return xerrors.Errorf("%s was changed outside of upd since it was last built", e.LocalFilePath).Error()
}

// HashCommandLineTemplate folds a command line template's shape and
// contents into a single digest, so a change in the command used to
// produce a file invalidates it the same as a changed input would.
func HashCommandLineTemplate(t manifest.CommandLineTemplate) uint64 {
	h := xxhash.New()
	writeString(h, t.BinaryPath)
	var partsBuf [8]byte
	binary.LittleEndian.PutUint64(partsBuf[:], uint64(len(t.Parts)))
	h.Write(partsBuf[:])
	for _, part := range t.Parts {
		writeStrings(h, part.LiteralArgs)
		var varBuf [8]byte
		binary.LittleEndian.PutUint64(varBuf[:], uint64(len(part.VariableArgs)))
		h.Write(varBuf[:])
		for _, v := range part.VariableArgs {
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], uint64(v))
			h.Write(b[:])
		}
	}
	writeEnvironment(h, t.Environment)
	return h.Sum64()
}

func writeString(h *xxhash.Digest, s string) {
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(s)))
	h.Write(lenBuf[:])
	h.Write([]byte(s))
}

func writeStrings(h *xxhash.Digest, strs []string) {
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(strs)))
	h.Write(lenBuf[:])
	for _, s := range strs {
		writeString(h, s)
	}
}

func writeEnvironment(h *xxhash.Digest, env manifest.Environment) {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sortStrings(keys)
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(keys)))
	h.Write(lenBuf[:])
	for _, k := range keys {
		writeString(h, k)
		writeString(h, env[k])
	}
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// HashFiles folds every localPath's content hash (plus its own name,
// so renaming a dependency also invalidates the imprint) into a single
// digest, in the given order.
func HashFiles(cache *hashcache.Cache, rootPath string, localPaths []string) (uint64, error) {
	h := xxhash.New()
	for _, localPath := range localPaths {
		writeString(h, localPath)
		contentHash, err := cache.Hash(rootPath + "/" + localPath)
		if err != nil {
			return 0, err
		}
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], contentHash)
		h.Write(b[:])
	}
	return h.Sum64(), nil
}

// GetTargetImprint computes the digest that uniquely identifies "this
// target, built from exactly these inputs, order-only dependencies and
// previously-recorded transitive dependencies, with this command
// line". Any change to any of them yields a different imprint.
//
// orderOnlyDepPaths is sorted before hashing (the set it is built from
// has no inherent order) so that the imprint is stable across runs of
// the same manifest.
func GetTargetImprint(cache *hashcache.Cache, rootPath string, localSrcPaths, orderOnlyDepPaths, dependencyLocalPaths []string, cliTemplate manifest.CommandLineTemplate) (uint64, error) {
	h := xxhash.New()

	var tplBuf [8]byte
	binary.LittleEndian.PutUint64(tplBuf[:], HashCommandLineTemplate(cliTemplate))
	h.Write(tplBuf[:])

	sortedOrderOnly := append([]string(nil), orderOnlyDepPaths...)
	sortStrings(sortedOrderOnly)

	for _, group := range [][]string{localSrcPaths, sortedOrderOnly, dependencyLocalPaths} {
		sum, err := HashFiles(cache, rootPath, group)
		if err != nil {
			return 0, err
		}
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], sum)
		h.Write(b[:])
	}
	return h.Sum64(), nil
}

// IsFileUpToDate reports whether localTargetPath can be skipped: it
// must have a log entry, its current content hash must match what was
// recorded (otherwise ErrFileChangedManually), and its recomputed
// imprint must match the recorded one.
func IsFileUpToDate(log *updatelog.Cache, cache *hashcache.Cache, rootPath, localTargetPath string, localSrcPaths []string, orderOnlyDepPaths map[string]bool, cliTemplate manifest.CommandLineTemplate) (bool, error) {
	record, ok := log.Lookup(localTargetPath)
	if !ok {
		return false, nil
	}

	newHash, err := cache.Hash(rootPath + "/" + localTargetPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if newHash != record.ContentHash {
		return false, &ErrFileChangedManually{LocalFilePath: localTargetPath}
	}

	orderOnly := make([]string, 0, len(orderOnlyDepPaths))
	for p := range orderOnlyDepPaths {
		orderOnly = append(orderOnly, p)
	}
	newImprint, err := GetTargetImprint(cache, rootPath, localSrcPaths, orderOnly, record.DependencyLocalPaths, cliTemplate)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return newImprint == record.Imprint, nil
}
