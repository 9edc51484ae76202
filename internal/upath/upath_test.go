package upath

import (
	"errors"
	"testing"
)

func TestSplit(t *testing.T) {
	cases := []struct {
		path         string
		want         []string
		wantAbsolute bool
	}{
		{"/a/b/c", []string{"a", "b", "c"}, true},
		{"a/./b", []string{"a", "b"}, false},
		{"a/b/../c", []string{"a", "c"}, false},
		{"../a", []string{"..", "a"}, false},
		{"/../a", []string{"a"}, true},
		{"", nil, false},
		{"///", nil, true},
	}
	for _, c := range cases {
		got, absolute := Split(c.path)
		if absolute != c.wantAbsolute {
			t.Fatalf("Split(%q) absolute = %v, want %v", c.path, absolute, c.wantAbsolute)
		}
		if len(got) != len(c.want) {
			t.Fatalf("Split(%q) = %v, want %v", c.path, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("Split(%q) = %v, want %v", c.path, got, c.want)
			}
		}
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"/a/b/../c": "/a/c",
		"a/./b":     "a/b",
		"":          ".",
		"/":         "/",
		"/..":       "/",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGetAbsolute(t *testing.T) {
	if got, want := GetAbsolute("b/c", "/a"), "/a/b/c"; got != want {
		t.Errorf("GetAbsolute = %q, want %q", got, want)
	}
	if got, want := GetAbsolute("/x/y", "/a"), "/x/y"; got != want {
		t.Errorf("GetAbsolute = %q, want %q", got, want)
	}
}

func TestGetLocal(t *testing.T) {
	got, err := GetLocal("/root", "src/a.c", "/root/sub")
	if err != nil {
		t.Fatal(err)
	}
	if want := "sub/src/a.c"; got != want {
		t.Errorf("GetLocal = %q, want %q", got, want)
	}

	_, err = GetLocal("/root", "../outside", "/root")
	var outOfRoot *ErrOutOfRoot
	if !errors.As(err, &outOfRoot) {
		t.Fatalf("expected ErrOutOfRoot, got %v", err)
	}
}

func TestGetRelative(t *testing.T) {
	got := GetRelative("/root/a/b", "x/y.h", "/root/a/c")
	if want := "../c/x/y.h"; got != want {
		t.Errorf("GetRelative = %q, want %q", got, want)
	}
}
