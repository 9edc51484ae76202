package updatemap

import (
	"testing"

	"github.com/jeanlauliac/upd/internal/manifest"
	"github.com/jeanlauliac/upd/internal/pathglob"
	"github.com/jeanlauliac/upd/internal/substitution"
)

type fakeDirReader map[string][]pathglob.DirEntry

func (f fakeDirReader) ReadDir(absPath string) ([]pathglob.DirEntry, error) {
	return f[absPath], nil
}

func mustParsePattern(t *testing.T, s string) pathglob.Pattern {
	t.Helper()
	p, err := pathglob.Parse(s)
	if err != nil {
		t.Fatalf("parse pattern %q: %v", s, err)
	}
	return p
}

func mustParseSubst(t *testing.T, s string) substitution.Pattern {
	t.Helper()
	p, err := substitution.Parse(s)
	if err != nil {
		t.Fatalf("parse substitution %q: %v", s, err)
	}
	return p
}

func TestGenerateSimpleChain(t *testing.T) {
	reader := fakeDirReader{
		"/root/":     {{Name: "src", IsDir: true}},
		"/root/src/": {{Name: "a.cpp", IsRegular: true}, {Name: "b.cpp", IsRegular: true}},
	}
	m := &manifest.Manifest{
		SourcePatterns: []pathglob.Pattern{mustParsePattern(t, "src/(*).cpp")},
		Rules: []manifest.UpdateRule{
			{
				CommandLineIx: 0,
				Inputs:        []manifest.RuleInput{{Type: manifest.InputSource, InputIx: 0}},
				Output:        mustParseSubst(t, "build/$1.o"),
			},
		},
	}
	updm, err := Generate("/root", m, reader)
	if err != nil {
		t.Fatal(err)
	}
	if len(updm.OutputFilesByPath) != 2 {
		t.Fatalf("expected 2 outputs, got %d: %v", len(updm.OutputFilesByPath), updm.OutputFilesByPath)
	}
	of, ok := updm.OutputFilesByPath["build/a.o"]
	if !ok {
		t.Fatal("expected build/a.o to be produced")
	}
	if len(of.LocalInputFilePaths) != 1 || of.LocalInputFilePaths[0] != "src/a.cpp" {
		t.Errorf("unexpected inputs: %v", of.LocalInputFilePaths)
	}
}

func TestGenerateRejectsForwardRuleReference(t *testing.T) {
	reader := fakeDirReader{
		"/root/":     {{Name: "src", IsDir: true}},
		"/root/src/": {{Name: "a.cpp", IsRegular: true}},
	}
	m := &manifest.Manifest{
		SourcePatterns: []pathglob.Pattern{mustParsePattern(t, "src/(*).cpp")},
		Rules: []manifest.UpdateRule{
			{Inputs: []manifest.RuleInput{{Type: manifest.InputRule, InputIx: 1}}, Output: mustParseSubst(t, "x/$1")},
			{Inputs: []manifest.RuleInput{{Type: manifest.InputSource, InputIx: 0}}, Output: mustParseSubst(t, "y/$1")},
		},
	}
	if _, err := Generate("/root", m, reader); err == nil {
		t.Fatal("expected a forward rule reference error")
	}
}

func TestGenerateRejectsDuplicateOutput(t *testing.T) {
	reader := fakeDirReader{
		"/root/":     {{Name: "src", IsDir: true}},
		"/root/src/": {{Name: "a.cpp", IsRegular: true}},
	}
	m := &manifest.Manifest{
		SourcePatterns: []pathglob.Pattern{mustParsePattern(t, "src/(*).cpp")},
		Rules: []manifest.UpdateRule{
			{Inputs: []manifest.RuleInput{{Type: manifest.InputSource, InputIx: 0}}, Output: mustParseSubst(t, "build/$1.o")},
			{Inputs: []manifest.RuleInput{{Type: manifest.InputSource, InputIx: 0}}, Output: mustParseSubst(t, "build/$1.o")},
		},
	}
	if _, err := Generate("/root", m, reader); err == nil {
		t.Fatal("expected a duplicate output error")
	}
}

func TestGenerateRejectsEmptySourceMatch(t *testing.T) {
	reader := fakeDirReader{
		"/root/": {{Name: "src", IsDir: true}},
	}
	m := &manifest.Manifest{
		SourcePatterns: []pathglob.Pattern{mustParsePattern(t, "src/(*).cpp")},
	}
	if _, err := Generate("/root", m, reader); err == nil {
		t.Fatal("expected a no-source-matches error")
	}
}
