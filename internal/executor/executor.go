// Package executor drives an update plan to completion: it dequeues
// ready targets, skips the ones already up to date, hands the rest to
// a worker pool, and finalizes or fails each one as its subprocess
// completes, until the plan is empty or a fatal error stops it.
package executor

import (
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/jeanlauliac/upd/internal/dircache"
	"github.com/jeanlauliac/upd/internal/hashcache"
	"github.com/jeanlauliac/upd/internal/manifest"
	"github.com/jeanlauliac/upd/internal/scheduler"
	"github.com/jeanlauliac/upd/internal/updatelog"
	"github.com/jeanlauliac/upd/internal/updatemap"
	"github.com/jeanlauliac/upd/internal/updateplan"
	"github.com/jeanlauliac/upd/internal/uptodate"
	"github.com/jeanlauliac/upd/internal/workerpool"
	"github.com/mattn/go-isatty"
	"golang.org/x/xerrors"
)

// ProcessFailureKind distinguishes the ways a subprocess that
// otherwise ran can still be considered a failed update.
type ProcessFailureKind int

const (
	UnexpectedStdout ProcessFailureKind = iota
	AbnormalExit
	NonZeroStatus
)

func (k ProcessFailureKind) String() string {
	switch k {
	case UnexpectedStdout:
		return "unexpected stdout"
	case AbnormalExit:
		return "abnormal exit"
	case NonZeroStatus:
		return "non-zero status"
	default:
		return "unknown failure"
	}
}

// ErrProcessFailed is returned when a scheduled subprocess ran to
// completion but violated the engine's subprocess contract.
type ErrProcessFailed struct {
	LocalTargetPath string
	Kind            ProcessFailureKind
}

func (e *ErrProcessFailed) Error() string {
	return xerrors.Errorf("%s: %s", e.LocalTargetPath, e.Kind).Error()
}

// Options configures one run of the executor.
type Options struct {
	RootPath    string
	WorkingPath string
	Concurrency int // 0 picks a default from the logical CPU count.
	Verbose     bool
}

// Run drives plan to completion against manifest m and update map om,
// dispatching subprocesses through a worker pool sized per opts and
// recording results in logCache. It returns the first fatal error
// encountered, if any, only after every in-progress subprocess has
// been drained.
func Run(
	logger *log.Logger,
	opts Options,
	m *manifest.Manifest,
	om *updatemap.Map,
	plan *updateplan.Plan,
	dirCache *dircache.Cache,
	hashCache *hashcache.Cache,
	logCache *updatelog.Cache,
) error {
	concurrency := opts.Concurrency
	if concurrency == 0 {
		concurrency = runtime.NumCPU()
	}
	pool := workerpool.New(concurrency)
	inFlight := make(map[*workerpool.Slot]*scheduler.ScheduledUpdate)
	statusIsTTY := isatty.IsTerminal(os.Stdout.Fd())

	var fatalErr error
	for {
		if fatalErr == nil {
			if err := drainReady(logger, opts, m, om, plan, pool, dirCache, hashCache, logCache, inFlight); err != nil {
				fatalErr = err
			}
		}
		if plan.Done() && fatalErr == nil {
			break
		}

		pool.Mu.Lock()
		for {
			anyFinished, anyInProgress := pool.Statuses()
			if anyFinished || !anyInProgress {
				break
			}
			pool.Cond.Wait()
		}
		var finishedSlots []*workerpool.Slot
		var results []workerpool.CommandLineResult
		for _, s := range pool.Slots {
			if s.Status == workerpool.Finished {
				finishedSlots = append(finishedSlots, s)
				results = append(results, s.Result)
				s.Status = workerpool.Idle
			}
		}
		_, anyInProgressAfter := pool.Statuses()
		pool.Mu.Unlock()

		for i, s := range finishedSlots {
			su := inFlight[s]
			delete(inFlight, s)
			if err := processResult(opts, su, results[i], om, plan, hashCache, logCache); err != nil {
				if fatalErr == nil {
					fatalErr = err
				}
			}
		}

		if statusIsTTY {
			printStatus(plan, pool)
		}

		if fatalErr != nil && !anyInProgressAfter {
			break
		}
	}

	pool.Mu.Lock()
	pool.Shutdown()
	pool.Mu.Unlock()

	return fatalErr
}

func drainReady(
	logger *log.Logger,
	opts Options,
	m *manifest.Manifest,
	om *updatemap.Map,
	plan *updateplan.Plan,
	pool *workerpool.Pool,
	dirCache *dircache.Cache,
	hashCache *hashcache.Cache,
	logCache *updatelog.Cache,
	inFlight map[*workerpool.Slot]*scheduler.ScheduledUpdate,
) error {
	for {
		pool.Mu.Lock()
		hasCapacity := pool.HasCapacity()
		pool.Mu.Unlock()
		if !hasCapacity {
			return nil
		}

		localTargetPath, ok := plan.PopReady()
		if !ok {
			return nil
		}

		outputFile := om.OutputFilesByPath[localTargetPath]
		cliTemplate := m.CommandLineTemplates[outputFile.CommandLineIx]

		upToDate, err := uptodate.IsFileUpToDate(logCache, hashCache, opts.RootPath, localTargetPath, outputFile.LocalInputFilePaths, outputFile.OrderOnlyDependencyPaths, cliTemplate)
		if err != nil {
			if changed, ok := err.(*uptodate.ErrFileChangedManually); ok {
				logger.Println(changed)
			} else {
				return err
			}
		} else if upToDate {
			if err := plan.Finish(localTargetPath); err != nil {
				return err
			}
			continue
		}

		su, cmdLine, err := scheduler.Schedule(logger, opts.RootPath, opts.WorkingPath, dirCache, hashCache, cliTemplate, localTargetPath, outputFile.LocalInputFilePaths, outputFile.OrderOnlyDependencyPaths, opts.Verbose)
		if err != nil {
			return err
		}

		pool.Mu.Lock()
		slot, err := pool.Dispatch(workerpool.Job{Target: cmdLine})
		pool.Mu.Unlock()
		if err != nil {
			return err
		}
		if slot == nil {
			// The capacity check above raced with a concurrent
			// consumer; put the target back and stop for this round.
			plan.Ready = append([]string{localTargetPath}, plan.Ready...)
			return nil
		}
		inFlight[slot] = su
	}
}

func processResult(
	opts Options,
	su *scheduler.ScheduledUpdate,
	result workerpool.CommandLineResult,
	om *updatemap.Map,
	plan *updateplan.Plan,
	hashCache *hashcache.Cache,
	logCache *updatelog.Cache,
) error {
	if result.Stderr != "" {
		fmt.Fprint(os.Stderr, result.Stderr)
	}

	switch {
	case result.Stdout != "":
		return &ErrProcessFailed{LocalTargetPath: su.LocalTargetPath, Kind: UnexpectedStdout}
	case result.Signaled || result.ExitCode < 0:
		return &ErrProcessFailed{LocalTargetPath: su.LocalTargetPath, Kind: AbnormalExit}
	case result.ExitCode != 0:
		return &ErrProcessFailed{LocalTargetPath: su.LocalTargetPath, Kind: NonZeroStatus}
	}

	if err := scheduler.Finalize(su, opts.RootPath, opts.WorkingPath, hashCache, logCache, om.OutputFilesByPath); err != nil {
		return err
	}
	return plan.Finish(su.LocalTargetPath)
}

func printStatus(plan *updateplan.Plan, pool *workerpool.Pool) {
	pool.Mu.Lock()
	inProgress := 0
	for _, s := range pool.Slots {
		if s.Status == workerpool.InProgress {
			inProgress++
		}
	}
	pool.Mu.Unlock()
	fmt.Printf("\r%d pending, %d running    ", len(plan.Pending), inProgress)
}
