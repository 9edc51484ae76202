package updateplan

import (
	"testing"

	"github.com/jeanlauliac/upd/internal/updatemap"
)

func chain() map[string]updatemap.OutputFile {
	return map[string]updatemap.OutputFile{
		"build/a.o": {LocalInputFilePaths: []string{"src/a.cpp"}},
		"build/b.o": {LocalInputFilePaths: []string{"src/b.cpp"}},
		"bin/app":   {LocalInputFilePaths: []string{"build/a.o", "build/b.o"}},
	}
}

func TestAddTargetQueuesLeavesImmediately(t *testing.T) {
	outputs := chain()
	plan := New()
	AddTarget(plan, outputs, "bin/app")

	if len(plan.Ready) != 2 {
		t.Fatalf("expected 2 immediately-ready leaves, got %d: %v", len(plan.Ready), plan.Ready)
	}
	if !plan.Pending["bin/app"] || !plan.Pending["build/a.o"] || !plan.Pending["build/b.o"] {
		t.Fatalf("expected all 3 outputs pending: %v", plan.Pending)
	}
}

func TestFinishPromotesDescendantWhenAllInputsDone(t *testing.T) {
	outputs := chain()
	plan := New()
	AddTarget(plan, outputs, "bin/app")

	first, ok := plan.PopReady()
	if !ok {
		t.Fatal("expected a ready target")
	}
	if err := plan.Finish(first); err != nil {
		t.Fatal(err)
	}
	if plan.Done() {
		t.Fatal("expected bin/app and the remaining leaf to still be pending")
	}

	second, ok := plan.PopReady()
	if !ok {
		t.Fatal("expected the second leaf to still be ready")
	}
	if err := plan.Finish(second); err != nil {
		t.Fatal(err)
	}

	third, ok := plan.PopReady()
	if !ok {
		t.Fatal("expected bin/app to become ready once both leaves finished")
	}
	if third != "bin/app" {
		t.Fatalf("expected bin/app, got %q", third)
	}
	if err := plan.Finish(third); err != nil {
		t.Fatal(err)
	}
	if !plan.Done() {
		t.Fatal("expected the plan to be done")
	}
}

func TestAddTargetIgnoresPlainSourceInputs(t *testing.T) {
	outputs := map[string]updatemap.OutputFile{
		"build/a.o": {LocalInputFilePaths: []string{"src/a.cpp"}},
	}
	plan := New()
	AddTarget(plan, outputs, "build/a.o")
	if len(plan.Ready) != 1 || plan.Ready[0] != "build/a.o" {
		t.Fatalf("expected build/a.o to be immediately ready (its input is a plain source): %v", plan.Ready)
	}
}
