// Package updatemap resolves a manifest into a flat map from every
// local output path the project can produce to the rule that produces
// it, by crawling the manifest's source patterns and chaining each
// rule's substitution pattern against its declared inputs.
package updatemap

import (
	"sort"

	"github.com/jeanlauliac/upd/internal/manifest"
	"github.com/jeanlauliac/upd/internal/pathglob"
	"github.com/jeanlauliac/upd/internal/substitution"
	"golang.org/x/xerrors"
)

// OutputFile describes how to produce one local output path: which
// command line template to reify, the local input paths captured for
// it (in declaration order), and the set of local paths that must
// exist first but do not appear as command-line arguments.
type OutputFile struct {
	CommandLineIx           int
	LocalInputFilePaths     []string
	OrderOnlyDependencyPaths map[string]bool
}

// Map is a flat index from every local output path a manifest's rules
// can produce to the OutputFile describing how.
type Map struct {
	OutputFilesByPath map[string]OutputFile
}

// ErrForwardRuleReference is returned when a rule refers to another
// rule by an index that has not yet been defined (rules may only
// depend on rules earlier in the manifest's "rules" array).
type ErrForwardRuleReference struct{ RuleIx, ReferencedRuleIx int }

func (e *ErrForwardRuleReference) Error() string {
	return xerrors.Errorf("rule %d refers to rule %d, which is not yet defined", e.RuleIx, e.ReferencedRuleIx).Error()
}

// ErrNoSourceMatches is returned when a source pattern matches no file
// under the project root.
type ErrNoSourceMatches struct{ SourcePatternIx int }

func (e *ErrNoSourceMatches) Error() string {
	return xerrors.Errorf("source pattern %d matches no file", e.SourcePatternIx).Error()
}

// ErrDuplicateOutput is returned when two rules resolve to the same
// local output path.
type ErrDuplicateOutput struct {
	LocalOutputPath string
	FirstRuleIx     int
	SecondRuleIx    int
}

func (e *ErrDuplicateOutput) Error() string {
	return xerrors.Errorf("rules %d and %d both produce %q", e.FirstRuleIx, e.SecondRuleIx, e.LocalOutputPath).Error()
}

// capturedPath pairs a resolved local path with the capture groups
// that produced it, so it can in turn feed a later rule's inputs.
type capturedPath struct {
	value          string
	capturedGroups [][2]int
}

// Generate crawls manifest's source patterns under rootPath and
// resolves every rule's output substitution pattern against its
// inputs, producing the flat output map.
func Generate(rootPath string, m *manifest.Manifest, reader pathglob.DirReader) (*Map, error) {
	matches, err := crawlSourcePatterns(rootPath, m.SourcePatterns, reader)
	if err != nil {
		return nil, err
	}

	result := &Map{OutputFilesByPath: make(map[string]OutputFile)}
	ruleIDsByOutputPath := make(map[string]int)
	ruleCapturedPaths := make([][]capturedPath, len(m.Rules))

	for i, rule := range m.Rules {
		type datum struct {
			inputPaths       []string
			segmentStartIDs []int
		}
		dataByPath := make(map[string]*datum)
		var order []string

		for _, input := range rule.Inputs {
			if input.Type == manifest.InputRule && input.InputIx >= i {
				return nil, &ErrForwardRuleReference{RuleIx: i, ReferencedRuleIx: input.InputIx}
			}
			inputCaptures := captureSourceFor(input, matches, ruleCapturedPaths)
			for _, ic := range inputCaptures {
				resolved, err := substitution.Resolve(rule.Output.Segments, substitution.CapturedString{
					Value:          ic.value,
					CapturedGroups: ic.capturedGroups,
				})
				if err != nil {
					return nil, err
				}
				d, ok := dataByPath[resolved.Value]
				if !ok {
					d = &datum{}
					dataByPath[resolved.Value] = d
					order = append(order, resolved.Value)
				}
				d.inputPaths = append(d.inputPaths, ic.value)
				d.segmentStartIDs = resolved.SegmentStartIDs
			}
		}

		orderOnly := make(map[string]bool)
		for _, dep := range rule.OrderOnlyDependencies {
			if dep.Type == manifest.InputRule && dep.InputIx >= i {
				return nil, &ErrForwardRuleReference{RuleIx: i, ReferencedRuleIx: dep.InputIx}
			}
			depCaptures := captureSourceFor(dep, matches, ruleCapturedPaths)
			for _, dc := range depCaptures {
				orderOnly[dc.value] = true
			}
		}

		captured := make([]capturedPath, 0, len(order))
		for _, outputPath := range order {
			d := dataByPath[outputPath]
			if _, exists := result.OutputFilesByPath[outputPath]; exists {
				return nil, &ErrDuplicateOutput{
					LocalOutputPath: outputPath,
					FirstRuleIx:     ruleIDsByOutputPath[outputPath],
					SecondRuleIx:    i,
				}
			}
			result.OutputFilesByPath[outputPath] = OutputFile{
				CommandLineIx:            rule.CommandLineIx,
				LocalInputFilePaths:      d.inputPaths,
				OrderOnlyDependencyPaths: orderOnly,
			}
			ruleIDsByOutputPath[outputPath] = i
			cs := substitution.Capture(rule.Output.CaptureGroups, outputPath, d.segmentStartIDs)
			captured = append(captured, capturedPath{value: cs.Value, capturedGroups: cs.CapturedGroups})
		}
		ruleCapturedPaths[i] = captured
	}

	return result, nil
}

func captureSourceFor(input manifest.RuleInput, matches [][]capturedPath, ruleCapturedPaths [][]capturedPath) []capturedPath {
	if input.Type == manifest.InputSource {
		return matches[input.InputIx]
	}
	return ruleCapturedPaths[input.InputIx]
}

func crawlSourcePatterns(rootPath string, patterns []pathglob.Pattern, reader pathglob.DirReader) ([][]capturedPath, error) {
	matches := make([][]capturedPath, len(patterns))
	m := pathglob.NewMatcher(rootPath, patterns, reader)
	for {
		match, ok, err := m.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		matches[match.PatternIx] = append(matches[match.PatternIx], capturedPath{
			value:          match.LocalPath,
			capturedGroups: match.CapturedGroups,
		})
	}
	for i, fileMatches := range matches {
		if len(fileMatches) == 0 {
			return nil, &ErrNoSourceMatches{SourcePatternIx: i}
		}
		sort.Slice(fileMatches, func(a, b int) bool { return fileMatches[a].value < fileMatches[b].value })
	}
	return matches, nil
}
