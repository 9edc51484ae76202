package workerpool

import (
	"testing"
	"time"

	"github.com/jeanlauliac/upd/internal/manifest"
)

func TestDispatchRunsCommandAndReportsResult(t *testing.T) {
	pool := New(2)

	pool.Mu.Lock()
	slot, err := pool.Dispatch(Job{Target: manifest.CommandLine{
		BinaryPath: "/bin/echo",
		Args:       []string{"hello"},
	}})
	pool.Mu.Unlock()
	if err != nil {
		t.Fatal(err)
	}
	if slot == nil {
		t.Fatal("expected dispatch to succeed on a fresh pool")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		pool.Mu.Lock()
		finished := len(pool.Slots) == 1 && pool.Slots[0].Status == Finished
		var result CommandLineResult
		if finished {
			result = pool.Slots[0].Result
		}
		pool.Mu.Unlock()
		if finished {
			if result.Stdout != "hello\n" {
				t.Errorf("stdout = %q, want %q", result.Stdout, "hello\n")
			}
			if result.ExitCode != 0 {
				t.Errorf("exit code = %d, want 0", result.ExitCode)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for worker to finish")
		}
		time.Sleep(10 * time.Millisecond)
	}

	pool.Mu.Lock()
	pool.Shutdown()
	pool.Mu.Unlock()
}

func TestDispatchSaturatesAtCapacity(t *testing.T) {
	pool := New(1)
	job := Job{Target: manifest.CommandLine{BinaryPath: "/bin/sleep", Args: []string{"0.2"}}}

	pool.Mu.Lock()
	slot1, err := pool.Dispatch(job)
	if err != nil {
		t.Fatal(err)
	}
	slot2, err := pool.Dispatch(job)
	pool.Mu.Unlock()
	if err != nil {
		t.Fatal(err)
	}
	if slot1 == nil {
		t.Fatal("expected the first dispatch to succeed")
	}
	if slot2 != nil {
		t.Fatal("expected the second dispatch to be rejected: pool is at capacity")
	}

	pool.Mu.Lock()
	pool.Shutdown()
	pool.Mu.Unlock()
}
