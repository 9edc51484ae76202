// Package substitution implements the "$1".."$9" substitution-pattern
// language used for rule outputs: parsing a pattern string into
// segments and capture-group spans, resolving it against a captured
// string to produce a new string, and re-capturing sub-ranges of a
// resolved string so a later rule can reference them in turn.
package substitution

import (
	"golang.org/x/xerrors"
)

// CapturedString is a string paired with named sub-ranges ("capture
// groups") of itself, addressed by index.
type CapturedString struct {
	Value          string
	CapturedGroups [][2]int // each entry is [start, end) into Value
}

// ErrNoSuchCapturedGroup is returned by SubString for an out-of-range
// group index.
type ErrNoSuchCapturedGroup struct{ Index int }

func (e *ErrNoSuchCapturedGroup) Error() string {
	return xerrors.Errorf("no such captured group: %d", e.Index).Error()
}

// SubString returns the substring of cs.Value designated by its index'th
// capture group.
func (cs CapturedString) SubString(index int) (string, error) {
	if index < 0 || index >= len(cs.CapturedGroups) {
		return "", &ErrNoSuchCapturedGroup{Index: index}
	}
	g := cs.CapturedGroups[index]
	return cs.Value[g[0]:g[1]], nil
}

// Segment is one literal run of a Pattern, optionally preceded by a
// "$N" back-reference into the captured string it will be resolved
// against.
type Segment struct {
	Literal          string
	HasCapturedGroup bool
	CapturedGroupIx  int
}

// Pattern is a parsed substitution string: a sequence of Segments plus
// the [start, end) segment-index span of every parenthesized group in
// the original text, so a resolved value can later be re-captured.
type Pattern struct {
	Segments      []Segment
	CaptureGroups [][2]int // each entry is a [start, end) span of segment indices
}

// ErrEscapeCharAtEnd is returned by Parse when a trailing backslash has
// no character to escape.
type ErrEscapeCharAtEnd struct{}

func (ErrEscapeCharAtEnd) Error() string { return "escape character at end of pattern" }

// ErrCaptureCharAtEnd is returned by Parse when a trailing "$" has no
// digit to follow it.
type ErrCaptureCharAtEnd struct{}

func (ErrCaptureCharAtEnd) Error() string { return "capture character at end of pattern" }

// ErrInvalidCaptureIndex is returned by Parse when "$" is followed by a
// character other than '1'-'9'.
type ErrInvalidCaptureIndex struct{}

func (ErrInvalidCaptureIndex) Error() string { return "invalid capture group index" }

// Parse reads a substitution pattern string. "(" and ")" delimit a
// capture group; "$1".."$9" reference the 1st through 9th capture group
// of whatever captured string the pattern is later resolved against;
// "\" escapes the following character literally.
func Parse(input string) (Pattern, error) {
	var result Pattern
	var current Segment
	var captureGroupIDs []int

	finishSegment := func() {
		if current.Literal == "" && !current.HasCapturedGroup {
			return
		}
		result.Segments = append(result.Segments, current)
		current = Segment{}
	}

	for i := 0; i < len(input); i++ {
		switch input[i] {
		case '(':
			finishSegment()
			captureGroupIDs = append(captureGroupIDs, len(result.CaptureGroups))
			result.CaptureGroups = append(result.CaptureGroups, [2]int{len(result.Segments), 0})
			continue
		case ')':
			finishSegment()
			top := captureGroupIDs[len(captureGroupIDs)-1]
			captureGroupIDs = captureGroupIDs[:len(captureGroupIDs)-1]
			result.CaptureGroups[top][1] = len(result.Segments)
			continue
		case '$':
			finishSegment()
			i++
			if i >= len(input) {
				return Pattern{}, ErrCaptureCharAtEnd{}
			}
			c := input[i]
			if c < '1' || c > '9' {
				return Pattern{}, ErrInvalidCaptureIndex{}
			}
			current.HasCapturedGroup = true
			current.CapturedGroupIx = int(c - '1')
			continue
		case '\\':
			i++
			if i >= len(input) {
				return Pattern{}, ErrEscapeCharAtEnd{}
			}
		}
		current.Literal += string(input[i])
	}
	finishSegment()
	return result, nil
}

// Resolved is the output of Resolve: the concatenated string value, and
// the offset within it at which each input segment started.
type Resolved struct {
	Value           string
	SegmentStartIDs []int
}

// Resolve concatenates segments against input, substituting each
// segment's captured-group back-reference (if any) from input's own
// capture groups.
func Resolve(segments []Segment, input CapturedString) (Resolved, error) {
	var result Resolved
	result.SegmentStartIDs = make([]int, len(segments))
	var b []byte
	for i, seg := range segments {
		result.SegmentStartIDs[i] = len(b)
		if seg.HasCapturedGroup {
			sub, err := input.SubString(seg.CapturedGroupIx)
			if err != nil {
				return Resolved{}, err
			}
			b = append(b, sub...)
		}
		b = append(b, seg.Literal...)
	}
	result.Value = string(b)
	return result, nil
}

// Capture builds a new CapturedString out of resolvedString, with each
// capture group's [start, end) span translated from segment indices
// (captureGroups, as produced by Parse) to byte offsets
// (resolvedStartSegmentIDs, as produced by Resolve). A group whose
// segment index falls beyond the resolved segments clamps to the end of
// resolvedString.
func Capture(captureGroups [][2]int, resolvedString string, resolvedStartSegmentIDs []int) CapturedString {
	result := CapturedString{Value: resolvedString}
	result.CapturedGroups = make([][2]int, len(captureGroups))
	at := func(segmentIx int) int {
		if segmentIx < len(resolvedStartSegmentIDs) {
			return resolvedStartSegmentIDs[segmentIx]
		}
		return len(resolvedString)
	}
	for j, g := range captureGroups {
		result.CapturedGroups[j] = [2]int{at(g[0]), at(g[1])}
	}
	return result
}
