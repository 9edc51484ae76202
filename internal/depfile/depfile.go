// Package depfile parses Makefile-style dependency files, the kind
// produced by "gcc -MMD -MF" and similar tools: a single
// "target: dep dep ..." record, possibly spread across several
// backslash-continued lines.
package depfile

import (
	"bufio"
	"io"

	"golang.org/x/xerrors"
)

// Data is the result of parsing a depfile: the declared target path and
// its list of dependency paths, in the order they appeared.
type Data struct {
	TargetPath      string
	DependencyPaths []string
}

// ErrParse is returned for any malformed depfile content.
type ErrParse struct {
	Message string
}

func (e *ErrParse) Error() string {
	return xerrors.Errorf("depfile parse error: %s", e.Message).Error()
}

type tokenKind int

const (
	tokenString tokenKind = iota
	tokenColon
	tokenNewline
	tokenEnd
)

// tokenizer turns a character stream into string/colon/newline/end
// tokens. A backslash escapes the following character, including
// syntax characters; "\<LF>" becomes a plain space, while "\\<LF>"
// (an escaped backslash, immediately followed by a real newline)
// embeds a literal line feed in a string token.
type tokenizer struct {
	r       *bufio.Reader
	c       byte
	escaped bool
	good    bool
	readErr error
}

func newTokenizer(r io.Reader) (*tokenizer, error) {
	t := &tokenizer{r: bufio.NewReader(r)}
	if err := t.read(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *tokenizer) readRaw() {
	b, err := t.r.ReadByte()
	if err != nil {
		t.good = false
		if err != io.EOF {
			t.readErr = err
		}
		return
	}
	t.c = b
	t.good = true
}

func (t *tokenizer) read() error {
	t.readRaw()
	t.escaped = false
	if !t.good || t.c != '\\' {
		return nil
	}
	t.readRaw()
	if !t.good {
		return xerrors.New("expected character after escape sequence `\\`")
	}
	if t.c == '\n' {
		t.c = ' '
	} else {
		t.escaped = true
	}
	return nil
}

func (t *tokenizer) next() (tokenKind, string, error) {
	for t.good && t.c == ' ' && !t.escaped {
		if err := t.read(); err != nil {
			return 0, "", err
		}
	}
	if t.readErr != nil {
		return 0, "", t.readErr
	}
	if !t.good {
		return tokenEnd, "", nil
	}
	if t.c == ':' && !t.escaped {
		if err := t.read(); err != nil {
			return 0, "", err
		}
		return tokenColon, "", nil
	}
	if t.c == '\n' {
		if err := t.read(); err != nil {
			return 0, "", err
		}
		return tokenNewline, "", nil
	}
	var b []byte
	for t.good && (t.escaped || (t.c != ' ' && t.c != ':' && t.c != '\n')) {
		if t.c == '\\' {
			if err := t.read(); err != nil {
				return 0, "", err
			}
			if !t.good {
				break
			}
		}
		b = append(b, t.c)
		if err := t.read(); err != nil {
			return 0, "", err
		}
	}
	if t.readErr != nil {
		return 0, "", t.readErr
	}
	if len(b) == 0 {
		return 0, "", xerrors.New("string token of size zero, parser is broken")
	}
	return tokenString, string(b), nil
}

type parseState int

const (
	stateReadTarget parseState = iota
	stateReadColon
	stateReadDep
	stateDone
)

// Parse reads a single depfile record from r. If the stream contains
// only whitespace, data is nil and err is nil.
func Parse(r io.Reader) (*Data, error) {
	tok, err := newTokenizer(r)
	if err != nil {
		return nil, &ErrParse{Message: err.Error()}
	}
	state := stateReadTarget
	var data *Data
	for {
		kind, str, err := tok.next()
		if err != nil {
			return nil, &ErrParse{Message: err.Error()}
		}
		switch kind {
		case tokenEnd:
			if !(state == stateReadTarget || state == stateReadDep || state == stateDone) {
				return nil, &ErrParse{Message: "unexpected end"}
			}
			return data, nil
		case tokenColon:
			if state != stateReadColon {
				return nil, &ErrParse{Message: "unexpected colon operator"}
			}
			state = stateReadDep
		case tokenNewline:
			if state == stateReadTarget {
				continue
			}
			if state != stateReadDep {
				return nil, &ErrParse{Message: "unexpected newline"}
			}
			state = stateDone
		case tokenString:
			switch state {
			case stateReadTarget:
				data = &Data{TargetPath: str}
				state = stateReadColon
			case stateReadDep:
				data.DependencyPaths = append(data.DependencyPaths, str)
			default:
				return nil, &ErrParse{Message: xerrors.Errorf("unexpected string `%s`", str).Error()}
			}
		}
	}
}
