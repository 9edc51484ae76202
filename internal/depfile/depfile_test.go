package depfile

import (
	"strings"
	"testing"
)

func parseString(t *testing.T, s string) *Data {
	t.Helper()
	data, err := Parse(strings.NewReader(s))
	if err != nil {
		t.Fatalf("Parse(%q): %v", s, err)
	}
	return data
}

func TestParseSingleLine(t *testing.T) {
	data := parseString(t, "foo.o: foo.cpp bar.h\n")
	if data == nil {
		t.Fatal("expected non-nil data")
	}
	if data.TargetPath != "foo.o" {
		t.Errorf("TargetPath = %q", data.TargetPath)
	}
	if want := []string{"foo.cpp", "bar.h"}; !equal(data.DependencyPaths, want) {
		t.Errorf("DependencyPaths = %v, want %v", data.DependencyPaths, want)
	}
}

func TestParseContinuationLines(t *testing.T) {
	data := parseString(t, "foo.o: foo.cpp \\\n  bar.h \\\n  baz.h\n")
	if data == nil {
		t.Fatal("expected non-nil data")
	}
	if want := []string{"foo.cpp", "bar.h", "baz.h"}; !equal(data.DependencyPaths, want) {
		t.Errorf("DependencyPaths = %v, want %v", data.DependencyPaths, want)
	}
}

func TestParseEscapedSpaceInPath(t *testing.T) {
	data := parseString(t, `foo.o: path\ with\ spaces/foo.cpp`+"\n")
	if want := []string{"path with spaces/foo.cpp"}; !equal(data.DependencyPaths, want) {
		t.Errorf("DependencyPaths = %v, want %v", data.DependencyPaths, want)
	}
}

func TestParseWhitespaceOnlyYieldsNoRecord(t *testing.T) {
	data := parseString(t, "   \n\n  ")
	if data != nil {
		t.Errorf("expected nil data, got %+v", data)
	}
}

func TestParseUnexpectedColon(t *testing.T) {
	if _, err := Parse(strings.NewReader(": foo\n")); err == nil {
		t.Error("expected parse error")
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
