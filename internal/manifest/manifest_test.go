package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleManifest = `{
  "source_patterns": ["src/(**/*).cpp"],
  "command_line_templates": [
    {
      "binary_path": "/usr/bin/clang++",
      "arguments": [
        {"literals": ["-c"], "variables": []},
        {"literals": [], "variables": ["input_files"]},
        {"literals": ["-o"], "variables": []},
        {"literals": [], "variables": ["output_files"]},
        {"literals": ["-MF"], "variables": []},
        {"literals": [], "variables": ["depfile"]}
      ],
      "environment": {"LANG": "C"}
    }
  ],
  "rules": [
    {
      "command_line_ix": 0,
      "inputs": [{"source_ix": 0}],
      "output": "build/$1.o"
    }
  ]
}`

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "updfile.json"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestReadFromFileParsesSample(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, sampleManifest)

	m, err := ReadFromFile(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.SourcePatterns) != 1 {
		t.Fatalf("expected 1 source pattern, got %d", len(m.SourcePatterns))
	}
	if len(m.CommandLineTemplates) != 1 {
		t.Fatalf("expected 1 command line template, got %d", len(m.CommandLineTemplates))
	}
	clt := m.CommandLineTemplates[0]
	if clt.BinaryPath != "/usr/bin/clang++" {
		t.Errorf("binary path = %q", clt.BinaryPath)
	}
	if clt.Environment["LANG"] != "C" {
		t.Errorf("expected environment LANG=C, got %v", clt.Environment)
	}
	if len(m.Rules) != 1 || len(m.Rules[0].Inputs) != 1 {
		t.Fatalf("unexpected rules: %+v", m.Rules)
	}
	if m.Rules[0].Inputs[0].Type != InputSource || m.Rules[0].Inputs[0].InputIx != 0 {
		t.Errorf("unexpected rule input: %+v", m.Rules[0].Inputs[0])
	}
}

func TestReadFromFileMissing(t *testing.T) {
	dir := t.TempDir()
	if _, err := ReadFromFile(dir); err == nil {
		t.Fatal("expected an error for a missing manifest")
	}
}

func TestReadFromFileRejectsDependenciesAndOrderOnlyTogether(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{
		"source_patterns": [],
		"command_line_templates": [],
		"rules": [
			{
				"command_line_ix": 0,
				"inputs": [],
				"dependencies": [{"source_ix": 0}],
				"order_only_dependencies": [{"source_ix": 0}],
				"output": "x"
			}
		]
	}`)
	if _, err := ReadFromFile(dir); err == nil {
		t.Fatal("expected an error for conflicting dependency keys")
	}
}

func TestReadFromFileRejectsUnknownVariable(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{
		"source_patterns": [],
		"command_line_templates": [
			{"binary_path": "x", "arguments": [{"literals": [], "variables": ["bogus"]}], "environment": {}}
		],
		"rules": []
	}`)
	if _, err := ReadFromFile(dir); err == nil {
		t.Fatal("expected an error for an unknown command line variable")
	}
}

func TestParseConcurrency(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"auto", 0, false},
		{"4", 4, false},
		{"0", 0, true},
		{"-1", 0, true},
		{"nope", 0, true},
	}
	for _, c := range cases {
		got, err := ParseConcurrency(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseConcurrency(%q): expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseConcurrency(%q): unexpected error %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("ParseConcurrency(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestReifyCommandLine(t *testing.T) {
	clt := CommandLineTemplate{
		BinaryPath: "/usr/bin/clang++",
		Parts: []CommandLineTemplatePart{
			{LiteralArgs: []string{"-c"}},
			{VariableArgs: []CommandLineVariable{VarInputFiles}},
			{LiteralArgs: []string{"-o"}},
			{VariableArgs: []CommandLineVariable{VarOutputFiles}},
			{LiteralArgs: []string{"-MF"}},
			{VariableArgs: []CommandLineVariable{VarDepfile}},
		},
		Environment: Environment{"LANG": "C"},
	}
	params := CommandLineParameters{
		DepfilePath: "/root/build/a.d",
		InputFiles:  []string{"/root/src/a.cpp"},
		OutputFiles: []string{"/root/build/a.o"},
	}
	cl := ReifyCommandLine(clt, params, "/root", "/root/build")
	want := []string{"-c", "../src/a.cpp", "-o", "a.o", "-MF", "/root/build/a.d"}
	if len(cl.Args) != len(want) {
		t.Fatalf("args = %v, want %v", cl.Args, want)
	}
	for i := range want {
		if cl.Args[i] != want[i] {
			t.Errorf("args[%d] = %q, want %q", i, cl.Args[i], want[i])
		}
	}
}
