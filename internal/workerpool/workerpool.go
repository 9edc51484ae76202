// Package workerpool runs a fixed-size pool of goroutines, each owning
// one pseudoterminal for its lifetime, that execute command lines on
// request and report back through shared, mutex-guarded state.
package workerpool

import (
	"sync"

	"github.com/jeanlauliac/upd/internal/manifest"
	"github.com/sasha-s/go-deadlock"
)

// Status is a worker's current phase, mirroring the lifecycle the
// scheduler drives it through.
type Status int

const (
	Idle Status = iota
	InProgress
	Finished
	Shutdown
)

// Job is the work handed to an idle worker.
type Job struct {
	Target manifest.CommandLine
}

// Slot is one worker's shared state: the executor reads Status and
// Result while holding Pool's mutex; the worker goroutine writes them
// the same way.
type Slot struct {
	Status Status
	Result CommandLineResult
	Job    Job

	cv  *sync.Cond
	pty *pseudoterminal
}

// Pool is a growable-up-to-a-cap collection of worker slots, sharing
// one mutex and one condition variable with the executor that drives
// them — the same shared-state arrangement spec.md §5 describes for
// the executor/worker relationship.
type Pool struct {
	Mu       deadlock.Mutex
	Cond     *sync.Cond
	Slots    []*Slot
	Capacity int
}

// New creates an empty pool that will grow up to capacity worker
// slots.
func New(capacity int) *Pool {
	p := &Pool{Capacity: capacity}
	p.Cond = sync.NewCond(&p.Mu)
	return p
}

// Dispatch finds an idle slot (starting a new worker if every existing
// slot is busy and the pool has not reached capacity) and assigns it
// job, returning the slot that will run it, or nil if the pool is
// saturated. The caller must hold p.Mu.
func (p *Pool) Dispatch(job Job) (*Slot, error) {
	for _, s := range p.Slots {
		if s.Status == Idle {
			s.Job = job
			s.Status = InProgress
			s.cv.Signal()
			return s, nil
		}
	}
	if len(p.Slots) >= p.Capacity {
		return nil, nil
	}
	slot, err := p.startWorker()
	if err != nil {
		return nil, err
	}
	slot.Job = job
	slot.Status = InProgress
	slot.cv.Signal()
	return slot, nil
}

// HasCapacity reports whether Dispatch would currently find or create a
// slot to run a job. The caller must hold p.Mu.
func (p *Pool) HasCapacity() bool {
	for _, s := range p.Slots {
		if s.Status == Idle {
			return true
		}
	}
	return len(p.Slots) < p.Capacity
}

func (p *Pool) startWorker() (*Slot, error) {
	pty, err := newPseudoterminal()
	if err != nil {
		return nil, err
	}
	slot := &Slot{Status: Idle, pty: pty, cv: sync.NewCond(&p.Mu)}
	p.Slots = append(p.Slots, slot)
	go p.runWorker(slot)
	return slot, nil
}

// runWorker is a single worker's body: wait for in-progress work under
// the shared lock, release the lock while the subprocess runs, then
// reacquire it to publish the result and wake the executor.
func (p *Pool) runWorker(slot *Slot) {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	for slot.Status != Shutdown {
		if slot.Status != InProgress {
			slot.cv.Wait()
			continue
		}
		job := slot.Job
		p.Mu.Unlock()
		result, err := runCommandLine(job.Target, slot.pty)
		p.Mu.Lock()
		if err != nil {
			result.ExitCode = -1
		}
		slot.Result = result
		slot.Status = Finished
		p.Cond.Broadcast()
	}
}

// HasInProgress reports whether any slot is currently running a
// command. The caller must hold p.Mu.
func (p *Pool) HasInProgress() bool {
	for _, s := range p.Slots {
		if s.Status == InProgress {
			return true
		}
	}
	return false
}

// Statuses reports whether any slot is Finished and whether any slot
// is InProgress, in one pass. The caller must hold p.Mu.
func (p *Pool) Statuses() (anyFinished, anyInProgress bool) {
	for _, s := range p.Slots {
		switch s.Status {
		case Finished:
			anyFinished = true
		case InProgress:
			anyInProgress = true
		}
	}
	return
}

// Shutdown transitions every slot to Shutdown and wakes its goroutine
// so it can exit. The caller must hold p.Mu.
func (p *Pool) Shutdown() {
	for _, s := range p.Slots {
		s.Status = Shutdown
		s.cv.Signal()
	}
}
