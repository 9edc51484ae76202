// Package glob implements single-segment glob matching against a
// literal candidate string, with backtracking over "*" wildcards and
// "?" single-character wildcards.
//
// A Pattern is a sequence of Segments, each an optional placeholder
// prefix ("*" or "?") followed by a literal suffix. For example the
// pattern "foo_*.cpp" is represented as:
//
//	[]Segment{
//	  {Prefix: None, Literal: "foo_"},
//	  {Prefix: Wildcard, Literal: ".cpp"},
//	}
package glob

// Placeholder identifies the kind of wildcard, if any, a Segment starts
// with.
type Placeholder int

const (
	None Placeholder = iota
	Wildcard
	SingleWildcard
)

// Segment is one literal run of a Pattern, optionally preceded by a
// wildcard placeholder.
type Segment struct {
	Prefix  Placeholder
	Literal string
}

// Pattern is an ordered sequence of Segments.
type Pattern []Segment

// Match reports whether candidate matches target in full.
func Match(target Pattern, candidate string) bool {
	m := &matcher{target: target, candidate: candidate}
	return m.run()
}

// MatchIndices is like Match, but additionally returns, for each
// segment of target, the candidate offset at which that segment started
// matching. The returned slice is only meaningful when ok is true.
func MatchIndices(target Pattern, candidate string) (indices []int, ok bool) {
	indices = make([]int, len(target))
	m := &matcher{target: target, candidate: candidate, indices: indices}
	ok = m.run()
	return indices, ok
}

// matcher holds per-call mutable match state; it is the direct
// translation of the reference matcher class, including the
// bookmark/restore-wildcard backtracking step.
type matcher struct {
	target    Pattern
	candidate string
	indices   []int

	segmentIx            int
	candidateIx           int
	bookmarkIx            int
	lastWildcardSegmentIx int
	hasBookmark           bool
}

// run matches target against candidate from scratch, retrying with the
// wildcard boundary shifted by one character each time a full match
// fails to consume the whole candidate.
//
// Take for example the pattern "foo*bar" and the candidate
// "foobarglobar". At first "foobar" matches, but since it doesn't
// consume the whole candidate it isn't correct; restoreWildcard then
// extends the wildcard to cover one more character and the match is
// retried.
func (m *matcher) run() bool {
	m.clear()
	if !m.startNewSegment() {
		return false
	}
	var doesMatch, fullyMatched bool
	for {
		doesMatch = m.matchAllSegments()
		fullyMatched = doesMatch && m.candidateIx == len(m.candidate)
		if !(doesMatch && !fullyMatched && m.restoreWildcard()) {
			break
		}
	}
	return fullyMatched
}

func (m *matcher) clear() {
	m.segmentIx = 0
	m.candidateIx = 0
	m.bookmarkIx = 0
	m.lastWildcardSegmentIx = 0
	m.hasBookmark = false
}

func (m *matcher) matchAllSegments() bool {
	var doesMatch bool
	for {
		for {
			doesMatch = m.matchPrefix() && m.matchLiteral(m.target[m.segmentIx].Literal)
			if doesMatch || !m.restoreWildcard() {
				break
			}
		}
		m.segmentIx++
		if !(doesMatch && m.startNewSegment()) {
			break
		}
	}
	return doesMatch
}

func (m *matcher) matchPrefix() bool {
	switch m.target[m.segmentIx].Prefix {
	case None, Wildcard:
		return true
	case SingleWildcard:
		return m.matchSingleWildcard()
	}
	return false
}

func (m *matcher) startNewSegment() bool {
	if m.segmentIx == len(m.target) {
		return false
	}
	if m.indices != nil {
		m.indices[m.segmentIx] = m.candidateIx
	}
	if m.target[m.segmentIx].Prefix == Wildcard {
		m.startWildcard()
	}
	return true
}

func (m *matcher) startWildcard() {
	m.bookmarkIx = m.candidateIx
	m.lastWildcardSegmentIx = m.segmentIx
	m.hasBookmark = true
}

func (m *matcher) matchSingleWildcard() bool {
	if m.candidateIx == len(m.candidate) || m.candidate[m.candidateIx] == '.' {
		return false
	}
	m.candidateIx++
	return true
}

func (m *matcher) matchLiteral(literal string) bool {
	literalIx := 0
	for m.candidateIx < len(m.candidate) && literalIx < len(literal) &&
		m.candidate[m.candidateIx] == literal[literalIx] {
		m.candidateIx++
		literalIx++
	}
	return literalIx == len(literal)
}

func (m *matcher) restoreWildcard() bool {
	if !m.hasBookmark {
		return false
	}
	m.bookmarkIx++
	m.candidateIx = m.bookmarkIx
	m.segmentIx = m.lastWildcardSegmentIx
	if m.candidateIx+len(m.target[m.segmentIx].Literal) > len(m.candidate) {
		return false
	}
	return true
}
