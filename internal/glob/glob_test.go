package glob

import "testing"

func pat(segs ...Segment) Pattern { return Pattern(segs) }

func TestMatch(t *testing.T) {
	cases := []struct {
		name      string
		target    Pattern
		candidate string
		want      bool
	}{
		{
			name:      "literal only, match",
			target:    pat(Segment{None, "foo.cpp"}),
			candidate: "foo.cpp",
			want:      true,
		},
		{
			name:      "literal only, no match",
			target:    pat(Segment{None, "foo.cpp"}),
			candidate: "bar.cpp",
			want:      false,
		},
		{
			name:      "wildcard suffix",
			target:    pat(Segment{None, "foo_"}, Segment{Wildcard, ".cpp"}),
			candidate: "foo_bar.cpp",
			want:      true,
		},
		{
			name:      "wildcard requires backtracking",
			target:    pat(Segment{None, "foo"}, Segment{Wildcard, "bar"}),
			candidate: "foobarglobar",
			want:      true,
		},
		{
			name:      "single wildcard matches one char",
			target:    pat(Segment{SingleWildcard, ".c"}),
			candidate: "a.c",
			want:      true,
		},
		{
			name:      "single wildcard rejects dot",
			target:    pat(Segment{SingleWildcard, ""}),
			candidate: ".",
			want:      false,
		},
		{
			name:      "single wildcard rejects empty",
			target:    pat(Segment{SingleWildcard, ""}),
			candidate: "",
			want:      false,
		},
		{
			name:      "wildcard can match empty string",
			target:    pat(Segment{None, "foo"}, Segment{Wildcard, ""}),
			candidate: "foo",
			want:      true,
		},
		{
			name:      "trailing unmatched candidate fails",
			target:    pat(Segment{None, "foo"}),
			candidate: "foobar",
			want:      false,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Match(c.target, c.candidate); got != c.want {
				t.Errorf("Match(%v, %q) = %v, want %v", c.target, c.candidate, got, c.want)
			}
		})
	}
}

func TestMatchIndices(t *testing.T) {
	target := pat(Segment{None, "foo_"}, Segment{Wildcard, ".cpp"})
	indices, ok := MatchIndices(target, "foo_bar.cpp")
	if !ok {
		t.Fatal("expected match")
	}
	if want := []int{0, 4}; indices[0] != want[0] || indices[1] != want[1] {
		t.Errorf("indices = %v, want %v", indices, want)
	}
}
