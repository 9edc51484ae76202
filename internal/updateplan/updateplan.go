// Package updateplan tracks the work remaining during a build: a ready
// queue of targets whose inputs are all satisfied, plus enough
// bookkeeping to promote a target to the ready queue the instant its
// last pending input finishes.
package updateplan

import (
	"github.com/jeanlauliac/upd/internal/updatemap"
	"golang.org/x/xerrors"
)

// Plan is the mutable state of an in-progress build.
type Plan struct {
	// Ready holds local output paths whose inputs are all either
	// already up to date or not produced by any rule (plain source
	// files). It is consumed in FIFO order.
	Ready []string

	// Pending is the set of local output paths not yet finished.
	Pending map[string]bool

	// pendingInputCounts counts, for each pending output path, how many
	// of its inputs/order-only-dependencies are still pending.
	pendingInputCounts map[string]int

	// descendants maps a local path to every output path that lists it
	// as an input or order-only dependency.
	descendants map[string][]string
}

// New builds an empty plan.
func New() *Plan {
	return &Plan{
		Pending:            make(map[string]bool),
		pendingInputCounts: make(map[string]int),
		descendants:        make(map[string][]string),
	}
}

// ErrCorrupted indicates an internal invariant of the plan was
// violated — erasing a target whose descendant was never given a
// pending-input count.
type ErrCorrupted struct{ LocalPath string }

func (e *ErrCorrupted) Error() string {
	return xerrors.Errorf("update plan is corrupted: missing pending count for %q", e.LocalPath).Error()
}

// AddTarget ensures localTargetPath (and everything it transitively
// depends on) is part of the plan, enqueuing it immediately if it has
// no pending inputs.
func AddTarget(plan *Plan, outputFilesByPath map[string]updatemap.OutputFile, localTargetPath string) {
	outputFile, ok := outputFilesByPath[localTargetPath]
	if !ok {
		return
	}
	addOutput(plan, outputFilesByPath, localTargetPath, outputFile)
}

// addForPath registers localTargetPath as a descendant of
// localInputPath if localInputPath is itself a produced output
// (otherwise it's a plain source file and contributes nothing to the
// pending count). It returns whether localInputPath counted as a
// pending input.
func addForPath(plan *Plan, outputFilesByPath map[string]updatemap.OutputFile, localTargetPath, localInputPath string) bool {
	inputFile, ok := outputFilesByPath[localInputPath]
	if !ok {
		return false
	}
	plan.descendants[localInputPath] = append(plan.descendants[localInputPath], localTargetPath)
	addOutput(plan, outputFilesByPath, localInputPath, inputFile)
	return true
}

func addOutput(plan *Plan, outputFilesByPath map[string]updatemap.OutputFile, localTargetPath string, outputFile updatemap.OutputFile) {
	if plan.Pending[localTargetPath] {
		return
	}
	plan.Pending[localTargetPath] = true

	inputCount := 0
	for _, localInputPath := range outputFile.LocalInputFilePaths {
		if addForPath(plan, outputFilesByPath, localTargetPath, localInputPath) {
			inputCount++
		}
	}
	for localDependencyPath := range outputFile.OrderOnlyDependencyPaths {
		if addForPath(plan, outputFilesByPath, localTargetPath, localDependencyPath) {
			inputCount++
		}
	}

	if inputCount == 0 {
		plan.Ready = append(plan.Ready, localTargetPath)
	} else {
		plan.pendingInputCounts[localTargetPath] = inputCount
	}
}

// PopReady removes and returns the next ready target, if any.
func (plan *Plan) PopReady() (string, bool) {
	if len(plan.Ready) == 0 {
		return "", false
	}
	path := plan.Ready[0]
	plan.Ready = plan.Ready[1:]
	return path, true
}

// Finish marks localTargetPath as done, decrementing the pending-input
// count of every descendant and promoting any that reach zero to the
// ready queue.
func (plan *Plan) Finish(localTargetPath string) error {
	delete(plan.Pending, localTargetPath)
	for _, descendantPath := range plan.descendants[localTargetPath] {
		count, ok := plan.pendingInputCounts[descendantPath]
		if !ok {
			return &ErrCorrupted{LocalPath: descendantPath}
		}
		count--
		if count == 0 {
			delete(plan.pendingInputCounts, descendantPath)
			plan.Ready = append(plan.Ready, descendantPath)
		} else {
			plan.pendingInputCounts[descendantPath] = count
		}
	}
	return nil
}

// Done reports whether every target added to the plan has finished.
func (plan *Plan) Done() bool {
	return len(plan.Pending) == 0
}
