// Package updatelog implements the on-disk update log: a crash-resilient,
// append-only record of the last known imprint, content hash and
// dependency set of every file the engine has produced, plus the
// compacting rewrite that reclaims space for targets no longer live.
//
// The file starts with a version byte, followed by a sequence of
// tagged records: 'E' (entity-name) interns one path component under a
// parent entity id, and 'U' (file-update) records a target's imprint,
// content hash and dependency entity ids. Every local path that is ever
// recorded — targets and dependencies alike — is interned this way, so
// later records can reference it with a 2-byte id instead of repeating
// the string.
package updatelog

import (
	"bufio"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/google/renameio"
	"golang.org/x/xerrors"
)

// Version is the on-disk format version written as the log's first
// byte.
const Version byte = 2

// noParent is the sentinel parent entity id meaning "root" — a path
// with no containing directory recorded.
const noParent uint16 = 0xFFFF

// FileRecord is what the log remembers about one previously-produced
// file: the imprint and content hash it had right after being built,
// and the local paths of every dependency that contributed to it.
type FileRecord struct {
	Imprint              uint64
	ContentHash          uint64
	DependencyLocalPaths []string
}

// ErrVersionMismatch is returned internally when an existing log was
// written by a different format version; callers should treat this the
// same as a missing log (start fresh).
type ErrVersionMismatch struct{ Got byte }

func (e *ErrVersionMismatch) Error() string {
	return xerrors.Errorf("update log: unsupported version %d", e.Got).Error()
}

// ErrCorrupt is returned for any other structurally invalid log
// content (unlike a version mismatch, this is not recoverable by
// starting fresh, since it may indicate a half-written record from a
// bug rather than an expected format change).
type ErrCorrupt struct{ Reason string }

func (e *ErrCorrupt) Error() string {
	return xerrors.Errorf("update log: corrupt: %s", e.Reason).Error()
}

// Cache holds the in-memory view of the update log plus the live,
// append-only file backing it. It is owned by a single goroutine (the
// executor) for the duration of a build.
type Cache struct {
	mu       sync.Mutex
	records  map[string]FileRecord
	w        *writer
	filePath string
}

// Open loads the update log at filePath, or starts an empty one if the
// file does not exist or was written by an incompatible version.
func Open(filePath string) (*Cache, error) {
	f, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return openEmpty(filePath)
		}
		return nil, err
	}
	records, entPaths, err := readLog(bufio.NewReader(f))
	f.Close()
	if err != nil {
		var vmErr *ErrVersionMismatch
		if xerrors.As(err, &vmErr) {
			return openEmpty(filePath)
		}
		return nil, err
	}
	w, err := newWriter(filePath, entPaths)
	if err != nil {
		return nil, err
	}
	return &Cache{records: records, w: w, filePath: filePath}, nil
}

func openEmpty(filePath string) (*Cache, error) {
	w, err := newFreshWriter(filePath)
	if err != nil {
		return nil, err
	}
	return &Cache{records: make(map[string]FileRecord), w: w, filePath: filePath}, nil
}

// Lookup returns the recorded state of localPath, if any.
func (c *Cache) Lookup(localPath string) (FileRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.records[localPath]
	return r, ok
}

// Record appends a durable 'U' record (and whatever 'E' records are
// needed to intern new paths) for localPath, and updates the in-memory
// view.
func (c *Cache) Record(localPath string, rec FileRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.w.record(localPath, rec); err != nil {
		return err
	}
	c.records[localPath] = rec
	return nil
}

// Records returns a snapshot of every currently-recorded path.
func (c *Cache) Records() map[string]FileRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]FileRecord, len(c.records))
	for k, v := range c.records {
		out[k] = v
	}
	return out
}

// Close closes the live log file. It does not rewrite or compact it;
// callers that want a compacted log call Rewrite with Records() once
// the log is closed at the end of a build.
func (c *Cache) Close() error {
	return c.w.close()
}

// Rewrite writes a fresh, compacted log containing exactly one 'U'
// record per entry of records (and the 'E' records those entries need),
// to a temporary file beside filePath, then atomically renames it over
// filePath. A crash before the rename leaves the previous log intact.
func Rewrite(filePath string, records map[string]FileRecord) error {
	t, err := renameio.TempFile("", filePath)
	if err != nil {
		return err
	}
	defer t.Cleanup()

	w := &writer{out: t, entIDsByPath: make(map[string]uint16)}
	if _, err := t.Write([]byte{Version}); err != nil {
		return err
	}

	paths := make([]string, 0, len(records))
	for p := range records {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if err := w.record(p, records[p]); err != nil {
			return err
		}
	}
	return t.CloseAtomicallyReplace()
}

// writer appends 'E'/'U' records to an underlying io.Writer, interning
// local paths into 2-byte entity ids as it goes.
type writer struct {
	out          io.Writer
	entIDsByPath map[string]uint16
	closer       io.Closer
}

func newWriter(filePath string, entPaths []string) (*writer, error) {
	f, err := os.OpenFile(filePath, os.O_WRONLY|os.O_APPEND|os.O_SYNC, 0o600)
	if err != nil {
		return nil, err
	}
	index := make(map[string]uint16, len(entPaths))
	for i, p := range entPaths {
		index[p] = uint16(i)
	}
	return &writer{out: f, entIDsByPath: index, closer: f}, nil
}

func newFreshWriter(filePath string) (*writer, error) {
	f, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC|os.O_APPEND|os.O_SYNC, 0o600)
	if err != nil {
		return nil, err
	}
	if _, err := f.Write([]byte{Version}); err != nil {
		f.Close()
		return nil, err
	}
	return &writer{out: f, entIDsByPath: make(map[string]uint16), closer: f}, nil
}

func (w *writer) close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}

// record writes the 'E' records needed to intern localFilePath and
// every dependency path, then the 'U' record referencing their ids.
func (w *writer) record(localFilePath string, rec FileRecord) error {
	targetID, err := w.getPathID(localFilePath)
	if err != nil {
		return err
	}
	depIDs := make([]uint16, len(rec.DependencyLocalPaths))
	for i, dep := range rec.DependencyLocalPaths {
		id, err := w.getPathID(dep)
		if err != nil {
			return err
		}
		depIDs[i] = id
	}

	var buf []byte
	buf = append(buf, 'U')
	buf = appendU64(buf, rec.Imprint)
	buf = appendU64(buf, rec.ContentHash)
	buf = appendU16(buf, targetID)
	buf = appendU16(buf, uint16(len(depIDs)))
	for _, id := range depIDs {
		buf = appendU16(buf, id)
	}
	_, err = w.out.Write(buf)
	return err
}

// getPathID returns the entity id for filePath, recursively interning
// every "/"-delimited ancestor (including filePath itself) that is not
// already known, emitting an 'E' record for each newly-discovered one.
func (w *writer) getPathID(filePath string) (uint16, error) {
	ix := strings.IndexByte(filePath, '/')
	parentEntID := noParent
	parentIx := -1
	for {
		var pathPart, entName string
		if ix == -1 {
			pathPart = filePath
			entName = filePath[parentIx+1:]
		} else {
			pathPart = filePath[:ix]
			entName = filePath[parentIx+1 : ix]
		}
		if id, ok := w.entIDsByPath[pathPart]; ok {
			parentEntID = id
		} else {
			newID := uint16(len(w.entIDsByPath))
			w.entIDsByPath[pathPart] = newID
			if err := w.writeEntName(parentEntID, entName); err != nil {
				return 0, err
			}
			parentEntID = newID
		}
		parentIx = ix
		if ix == -1 {
			break
		}
		rest := filePath[ix+1:]
		next := strings.IndexByte(rest, '/')
		if next == -1 {
			ix = -1
		} else {
			ix = ix + 1 + next
		}
	}
	return parentEntID, nil
}

func (w *writer) writeEntName(parentEntID uint16, name string) error {
	var buf []byte
	buf = append(buf, 'E')
	buf = appendU16(buf, parentEntID)
	buf = appendVarString(buf, name)
	_, err := w.out.Write(buf)
	return err
}

func appendU16(buf []byte, v uint16) []byte {
	return append(buf, byte(v), byte(v>>8))
}

func appendU64(buf []byte, v uint64) []byte {
	for i := 0; i < 8; i++ {
		buf = append(buf, byte(v>>(8*i)))
	}
	return buf
}

func appendVarString(buf []byte, s string) []byte {
	n := len(s)
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n > 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if n == 0 {
			break
		}
	}
	return append(buf, s...)
}

// readLog streams the on-disk format, returning the recorded files and
// the flat list of interned entity paths (index = entity id).
func readLog(r *bufio.Reader) (map[string]FileRecord, []string, error) {
	version, err := r.ReadByte()
	if err != nil {
		if err == io.EOF {
			return nil, nil, &ErrVersionMismatch{Got: 0}
		}
		return nil, nil, err
	}
	if version != Version {
		return nil, nil, &ErrVersionMismatch{Got: version}
	}

	records := make(map[string]FileRecord)
	var entPaths []string
	for {
		tag, err := r.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		switch tag {
		case 'U':
			imprint, err := readU64(r)
			if err != nil {
				return nil, nil, err
			}
			hash, err := readU64(r)
			if err != nil {
				return nil, nil, err
			}
			targetID, err := readU16(r)
			if err != nil {
				return nil, nil, err
			}
			depCount, err := readU16(r)
			if err != nil {
				return nil, nil, err
			}
			deps := make([]string, depCount)
			for i := range deps {
				id, err := readU16(r)
				if err != nil {
					return nil, nil, err
				}
				if int(id) >= len(entPaths) {
					return nil, nil, &ErrCorrupt{Reason: "dependency entity id out of range"}
				}
				deps[i] = entPaths[id]
			}
			if int(targetID) >= len(entPaths) {
				return nil, nil, &ErrCorrupt{Reason: "target entity id out of range"}
			}
			records[entPaths[targetID]] = FileRecord{Imprint: imprint, ContentHash: hash, DependencyLocalPaths: deps}
		case 'E':
			parentID, err := readU16(r)
			if err != nil {
				return nil, nil, err
			}
			name, err := readVarString(r)
			if err != nil {
				return nil, nil, err
			}
			parentPath := ""
			if parentID != noParent {
				if int(parentID) >= len(entPaths) {
					return nil, nil, &ErrCorrupt{Reason: "parent entity id out of range"}
				}
				parentPath = entPaths[parentID] + "/"
			}
			entPaths = append(entPaths, parentPath+name)
		default:
			return nil, nil, &ErrCorrupt{Reason: "unknown record tag"}
		}
	}
	return records, entPaths, nil
}

func readU16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, unexpectedEOF(err)
	}
	return uint16(b[0]) | uint16(b[1])<<8, nil
}

func readU64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, unexpectedEOF(err)
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v, nil
}

func readVarString(r io.Reader) (string, error) {
	size, err := readVarSize(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", unexpectedEOF(err)
	}
	return string(buf), nil
}

func readVarSize(r io.Reader) (int, error) {
	var value int
	shift := uint(0)
	count := 5
	for {
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, unexpectedEOF(err)
		}
		value |= int(b[0]&0x7f) << shift
		shift += 7
		count--
		if b[0]&0x80 == 0 || count == 0 {
			if b[0]&0x80 != 0 && count == 0 {
				return 0, &ErrCorrupt{Reason: "invalid var-size integer"}
			}
			break
		}
	}
	return value, nil
}

func unexpectedEOF(err error) error {
	return &ErrCorrupt{Reason: xerrors.Errorf("unexpected end of file: %w", err).Error()}
}
