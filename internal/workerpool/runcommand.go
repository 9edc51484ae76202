package workerpool

import (
	"bytes"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/jeanlauliac/upd/internal/manifest"
	"github.com/mattn/go-isatty"
	"golang.org/x/sync/errgroup"
)

// mergeEnviron builds the environment a subprocess runs with: the
// parent's own environment, always carrying TERM=xterm-color so
// interactive tools still emit color through the pty, overridden by
// extra's entries.
func mergeEnviron(extra manifest.Environment) []string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	env["TERM"] = "xterm-color"
	for k, v := range extra {
		env[k] = v
	}
	result := make([]string, 0, len(env))
	for k, v := range env {
		result = append(result, k+"="+v)
	}
	return result
}

// CommandLineResult is what running one command line produced: its
// captured stdout and stderr, and its process exit code.
type CommandLineResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Signaled bool
}

// runCommandLine starts target and blocks until it exits, capturing
// stdout on a pipe and stderr through stderrPty's slave side so the
// child still believes it is talking to a terminal (preserving color
// escape codes), exactly as the scheduler's subprocess contract
// requires.
func runCommandLine(target manifest.CommandLine, stderrPty *pseudoterminal) (CommandLineResult, error) {
	cmd := exec.Command(target.BinaryPath, target.Args...)
	cmd.Dir = target.WorkingPath
	cmd.Env = mergeEnviron(target.Environment)

	var stdoutBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf

	slave, err := os.OpenFile(stderrPty.PtsName(), os.O_WRONLY|os.O_NOCTTY, 0)
	if err != nil {
		return CommandLineResult{}, err
	}
	if !isatty.IsTerminal(slave.Fd()) {
		slave.Close()
		return CommandLineResult{}, os.ErrInvalid
	}
	cmd.Stderr = slave

	if err := cmd.Start(); err != nil {
		slave.Close()
		return CommandLineResult{}, err
	}
	slave.Close()

	var eg errgroup.Group
	var stderrBuf string
	eg.Go(func() error {
		buf, err := io.ReadAll(readerThatIgnoresEIO{stderrPty})
		stderrBuf = string(buf)
		return err
	})

	runErr := cmd.Wait()
	if err := eg.Wait(); err != nil {
		return CommandLineResult{}, err
	}

	result := CommandLineResult{Stdout: stdoutBuf.String(), Stderr: stderrBuf}
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		result.ExitCode = exitErr.ExitCode()
		result.Signaled = exitErr.ExitCode() == -1
	} else if runErr != nil {
		return result, runErr
	}
	return result, nil
}

// readerThatIgnoresEIO reads a pty master fd until EOF, treating EIO
// (returned on Linux once the last slave closes) as a clean end of
// stream rather than an error.
type readerThatIgnoresEIO struct {
	p *pseudoterminal
}

func (r readerThatIgnoresEIO) Read(buf []byte) (int, error) {
	n, err := r.p.File().Read(buf)
	if err != nil && isEIO(err) {
		return n, io.EOF
	}
	return n, err
}
