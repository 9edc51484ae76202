// Package manifest defines the typed shape of an updfile.json manifest
// and loads one from disk.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jeanlauliac/upd/internal/pathglob"
	"github.com/jeanlauliac/upd/internal/substitution"
	"golang.org/x/xerrors"
)

// updfileSuffix is appended to a root path to find its manifest.
const updfileSuffix = "/updfile.json"

// InputType distinguishes whether an update rule's input comes from a
// source pattern match or from another rule's output.
type InputType int

const (
	InputSource InputType = iota
	InputRule
)

// RuleInput references one input to an update rule, either a captured
// source match or another rule by index.
type RuleInput struct {
	Type    InputType
	InputIx int
}

// CommandLineVariable names one of the placeholders a command line
// template part can expand to.
type CommandLineVariable int

const (
	VarInputFiles CommandLineVariable = iota
	VarOutputFiles
	VarDepfile
)

// CommandLineTemplatePart is a subsequence of literal arguments
// followed by a subsequence of variable arguments.
type CommandLineTemplatePart struct {
	LiteralArgs []string
	VariableArgs []CommandLineVariable
}

// Environment is a set of extra environment variables to run a command
// line with.
type Environment map[string]string

// CommandLineTemplate is one entry of a manifest's
// "command_line_templates" array.
type CommandLineTemplate struct {
	BinaryPath  string
	Parts       []CommandLineTemplatePart
	Environment Environment
}

// UpdateRule is one entry of a manifest's "rules" array: it reifies
// command_line_ix against its inputs to produce output.
type UpdateRule struct {
	CommandLineIx          int
	Inputs                 []RuleInput
	OrderOnlyDependencies  []RuleInput
	Output                 substitution.Pattern
}

// Manifest is the fully parsed content of an updfile.json.
type Manifest struct {
	CommandLineTemplates []CommandLineTemplate
	SourcePatterns       []pathglob.Pattern
	Rules                []UpdateRule
}

// ErrMissing is returned by ReadFromFile when no updfile.json exists
// under the given root.
type ErrMissing struct{ RootPath string }

func (e *ErrMissing) Error() string {
	return fmt.Sprintf("no manifest found under root %q", e.RootPath)
}

// ErrParse is returned for any manifest that is not valid JSON or does
// not describe a valid manifest (wrong type, conflicting keys, unknown
// command line variable, or an unparsable glob/substitution pattern).
// Unknown fields are ignored.
type ErrParse struct {
	FilePath string
	Reason   string
}

func (e *ErrParse) Error() string {
	return xerrors.Errorf("%s: invalid manifest: %s", e.FilePath, e.Reason).Error()
}

// ReadFromFile loads and parses the updfile.json manifest located at
// rootPath+"/updfile.json".
func ReadFromFile(rootPath string) (*Manifest, error) {
	filePath := rootPath + updfileSuffix
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ErrMissing{RootPath: rootPath}
		}
		return nil, err
	}
	var raw rawManifest
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ErrParse{FilePath: filePath, Reason: err.Error()}
	}
	return raw.toManifest(filePath)
}

// rawManifest mirrors the on-disk JSON shape before its string fields
// (glob/substitution patterns) have been parsed into their typed
// representations.
type rawManifest struct {
	CommandLineTemplates []rawCommandLineTemplate `json:"command_line_templates"`
	SourcePatterns       []string                 `json:"source_patterns"`
	Rules                []rawRule                `json:"rules"`
}

type rawCommandLineTemplate struct {
	BinaryPath  string                    `json:"binary_path"`
	Arguments   []rawCommandLineTemplatePart `json:"arguments"`
	Environment map[string]string         `json:"environment"`
}

type rawCommandLineTemplatePart struct {
	Literals  []string `json:"literals"`
	Variables []string `json:"variables"`
}

type rawRule struct {
	CommandLineIx         int             `json:"command_line_ix"`
	Inputs                []rawRuleInput  `json:"inputs"`
	Dependencies          []rawRuleInput  `json:"dependencies"`
	OrderOnlyDependencies []rawRuleInput  `json:"order_only_dependencies"`
	hasDependencies       bool
	hasOrderOnly          bool
	Output                string          `json:"output"`
}

type rawRuleInput struct {
	SourceIx *int `json:"source_ix"`
	RuleIx   *int `json:"rule_ix"`
}

// UnmarshalJSON tracks which of the mutually-exclusive
// "dependencies"/"order_only_dependencies" keys were actually present,
// so toManifest can reject a rule that names both.
func (r *rawRule) UnmarshalJSON(data []byte) error {
	type alias rawRule
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = rawRule(a)
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	_, r.hasDependencies = probe["dependencies"]
	_, r.hasOrderOnly = probe["order_only_dependencies"]
	return nil
}

func (raw *rawManifest) toManifest(filePath string) (*Manifest, error) {
	m := &Manifest{}

	for _, p := range raw.SourcePatterns {
		parsed, err := pathglob.Parse(p)
		if err != nil {
			return nil, &ErrParse{FilePath: filePath, Reason: fmt.Sprintf("source pattern %q: %v", p, err)}
		}
		m.SourcePatterns = append(m.SourcePatterns, parsed)
	}

	for i, rc := range raw.CommandLineTemplates {
		clt := CommandLineTemplate{BinaryPath: rc.BinaryPath, Environment: Environment(rc.Environment)}
		for _, rp := range rc.Arguments {
			part := CommandLineTemplatePart{LiteralArgs: rp.Literals}
			for _, v := range rp.Variables {
				vv, err := parseCommandLineVariable(v)
				if err != nil {
					return nil, &ErrParse{FilePath: filePath, Reason: fmt.Sprintf("command_line_templates[%d]: %v", i, err)}
				}
				part.VariableArgs = append(part.VariableArgs, vv)
			}
			clt.Parts = append(clt.Parts, part)
		}
		m.CommandLineTemplates = append(m.CommandLineTemplates, clt)
	}

	for i, rr := range raw.Rules {
		if rr.hasDependencies && rr.hasOrderOnly {
			return nil, &ErrParse{FilePath: filePath, Reason: fmt.Sprintf("rules[%d]: a rule cannot specify both \"dependencies\" and \"order_only_dependencies\"", i)}
		}
		rule := UpdateRule{CommandLineIx: rr.CommandLineIx}
		for _, ri := range rr.Inputs {
			parsed, err := parseRuleInput(ri)
			if err != nil {
				return nil, &ErrParse{FilePath: filePath, Reason: fmt.Sprintf("rules[%d].inputs: %v", i, err)}
			}
			rule.Inputs = append(rule.Inputs, parsed)
		}
		ooDeps := rr.OrderOnlyDependencies
		if rr.hasDependencies {
			ooDeps = rr.Dependencies
		}
		for _, ri := range ooDeps {
			parsed, err := parseRuleInput(ri)
			if err != nil {
				return nil, &ErrParse{FilePath: filePath, Reason: fmt.Sprintf("rules[%d].order_only_dependencies: %v", i, err)}
			}
			rule.OrderOnlyDependencies = append(rule.OrderOnlyDependencies, parsed)
		}
		output, err := substitution.Parse(rr.Output)
		if err != nil {
			return nil, &ErrParse{FilePath: filePath, Reason: fmt.Sprintf("rules[%d].output %q: %v", i, rr.Output, err)}
		}
		rule.Output = output
		m.Rules = append(m.Rules, rule)
	}

	return m, nil
}

func parseRuleInput(ri rawRuleInput) (RuleInput, error) {
	switch {
	case ri.SourceIx != nil && ri.RuleIx != nil:
		return RuleInput{}, xerrors.New("an input cannot specify both \"source_ix\" and \"rule_ix\"")
	case ri.SourceIx != nil:
		return RuleInput{Type: InputSource, InputIx: *ri.SourceIx}, nil
	case ri.RuleIx != nil:
		return RuleInput{Type: InputRule, InputIx: *ri.RuleIx}, nil
	default:
		return RuleInput{}, xerrors.New("an input must specify \"source_ix\" or \"rule_ix\"")
	}
}

func parseCommandLineVariable(value string) (CommandLineVariable, error) {
	switch value {
	case "input_files":
		return VarInputFiles, nil
	case "output_files":
		return VarOutputFiles, nil
	case "depfile":
		return VarDepfile, nil
	default:
		return 0, xerrors.Errorf("unknown command line template variable %q", value)
	}
}
