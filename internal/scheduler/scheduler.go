// Package scheduler prepares one target for execution — reifying its
// command line, standing up a temporary depfile FIFO and its
// asynchronous reader — and finalizes it once a worker reports the
// subprocess finished: normalizing whatever dependencies it declared,
// recomputing its imprint and content hash, and recording the result.
package scheduler

import (
	"log"
	"os"

	"github.com/jeanlauliac/upd/internal/depfile"
	"github.com/jeanlauliac/upd/internal/dircache"
	"github.com/jeanlauliac/upd/internal/hashcache"
	"github.com/jeanlauliac/upd/internal/manifest"
	"github.com/jeanlauliac/upd/internal/upath"
	"github.com/jeanlauliac/upd/internal/updatelog"
	"github.com/jeanlauliac/upd/internal/updatemap"
	"github.com/jeanlauliac/upd/internal/uptodate"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

// ErrUndeclaredRuleDependency is returned at finalization when a
// subprocess's depfile names, as a dependency, a path that the update
// map already knows as somebody's output but that was not declared as
// one of this target's order-only dependencies.
type ErrUndeclaredRuleDependency struct {
	LocalTargetPath string
	LocalDepPath    string
}

func (e *ErrUndeclaredRuleDependency) Error() string {
	return xerrors.Errorf("%s depends on %s, a known output, but does not declare it as an order-only dependency", e.LocalTargetPath, e.LocalDepPath).Error()
}

type depfileResult struct {
	data *depfile.Data
	err  error
}

// ScheduledUpdate is the live state of one target between Schedule and
// Finalize: the temporary FIFO directory, the dummy writer keeping it
// open, and the channel the asynchronous depfile reader reports on.
type ScheduledUpdate struct {
	LocalTargetPath   string
	LocalSrcPaths     []string
	OrderOnlyDepPaths map[string]bool
	CLITemplate       manifest.CommandLineTemplate

	tempDirPath string
	fifoPath    string
	dummy       *os.File
	resultCh    chan depfileResult
}

// Schedule prepares localTargetPath for execution: it creates a unique
// temp directory containing a "dep" FIFO, reifies the command line
// template against the target's inputs (and the FIFO as its depfile
// path), ensures the target's parent directory exists, invalidates the
// target's cached content hash, and starts the asynchronous depfile
// reader before opening a dummy writer so the reader is guaranteed to
// unblock even if the subprocess never opens the FIFO itself.
func Schedule(
	logger *log.Logger,
	rootPath, workingPath string,
	dirCache *dircache.Cache,
	hashCache *hashcache.Cache,
	cliTemplate manifest.CommandLineTemplate,
	localTargetPath string,
	localSrcPaths []string,
	orderOnlyDepPaths map[string]bool,
	verbose bool,
) (*ScheduledUpdate, manifest.CommandLine, error) {
	tempDirPath, err := os.MkdirTemp("", "upd-")
	if err != nil {
		return nil, manifest.CommandLine{}, err
	}
	fifoPath := tempDirPath + "/dep"
	if err := unix.Mkfifo(fifoPath, 0o600); err != nil {
		os.RemoveAll(tempDirPath)
		return nil, manifest.CommandLine{}, err
	}

	cmdLine := manifest.ReifyCommandLine(cliTemplate, manifest.CommandLineParameters{
		DepfilePath: fifoPath,
		InputFiles:  localSrcPaths,
		OutputFiles: []string{localTargetPath},
	}, rootPath, workingPath)

	logger.Printf("updating: %s", localTargetPath)
	if verbose {
		logger.Printf("  %s %v", cmdLine.BinaryPath, cmdLine.Args)
	}

	localDirPath := parentOf(localTargetPath)
	if err := dirCache.Create(localDirPath); err != nil {
		os.RemoveAll(tempDirPath)
		return nil, manifest.CommandLine{}, err
	}
	hashCache.Invalidate(rootPath + "/" + localTargetPath)

	su := &ScheduledUpdate{
		LocalTargetPath:   localTargetPath,
		LocalSrcPaths:     localSrcPaths,
		OrderOnlyDepPaths: orderOnlyDepPaths,
		CLITemplate:       cliTemplate,
		tempDirPath:       tempDirPath,
		fifoPath:          fifoPath,
		resultCh:          make(chan depfileResult, 1),
	}

	go su.readDepfile()

	dummy, err := os.OpenFile(fifoPath, os.O_WRONLY, 0)
	if err != nil {
		os.RemoveAll(tempDirPath)
		return nil, manifest.CommandLine{}, err
	}
	su.dummy = dummy

	return su, cmdLine, nil
}

func (su *ScheduledUpdate) readDepfile() {
	f, err := os.OpenFile(su.fifoPath, os.O_RDONLY, 0)
	if err != nil {
		su.resultCh <- depfileResult{err: err}
		return
	}
	defer f.Close()
	data, err := depfile.Parse(f)
	su.resultCh <- depfileResult{data: data, err: err}
}

func parentOf(localPath string) string {
	parts, _ := upath.Split(localPath)
	if len(parts) <= 1 {
		return "."
	}
	return upath.Join(parts[:len(parts)-1], false)
}

// Finalize is run once the worker pool reports the scheduled
// subprocess exited successfully: it releases the FIFO's dummy writer
// so the reader unblocks, collects whatever dependencies were
// declared, normalizes them to root-relative paths, rejects any that
// name an undeclared rule dependency, recomputes the target's imprint
// and content hash, and records the result in the update log.
func Finalize(
	su *ScheduledUpdate,
	rootPath, workingPath string,
	hashCache *hashcache.Cache,
	logCache *updatelog.Cache,
	outputFilesByPath map[string]updatemap.OutputFile,
) error {
	defer os.RemoveAll(su.tempDirPath)
	if su.dummy != nil {
		su.dummy.Close()
	}

	res := <-su.resultCh
	if res.err != nil {
		return res.err
	}

	var localDepPaths []string
	if res.data != nil {
		for _, depPath := range res.data.DependencyPaths {
			localDepPath, err := upath.GetLocal(rootPath, depPath, workingPath)
			if err != nil {
				return err
			}
			if _, isOutput := outputFilesByPath[localDepPath]; isOutput && !su.OrderOnlyDepPaths[localDepPath] {
				return &ErrUndeclaredRuleDependency{
					LocalTargetPath: su.LocalTargetPath,
					LocalDepPath:    localDepPath,
				}
			}
			localDepPaths = append(localDepPaths, localDepPath)
		}
	}

	orderOnly := make([]string, 0, len(su.OrderOnlyDepPaths))
	for p := range su.OrderOnlyDepPaths {
		orderOnly = append(orderOnly, p)
	}
	imprint, err := uptodate.GetTargetImprint(hashCache, rootPath, su.LocalSrcPaths, orderOnly, localDepPaths, su.CLITemplate)
	if err != nil {
		return err
	}
	contentHash, err := hashCache.Hash(rootPath + "/" + su.LocalTargetPath)
	if err != nil {
		return err
	}

	return logCache.Record(su.LocalTargetPath, updatelog.FileRecord{
		Imprint:              imprint,
		ContentHash:           contentHash,
		DependencyLocalPaths: localDepPaths,
	})
}
