// Package executor runs external programs (python interpreters, virtualenv,
// pip) and captures their output.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// exitCodeUnknown is reported when the process never produced an exit status.
const exitCodeUnknown = -1

// ErrEmptyCommand is returned when a command line has no program.
var ErrEmptyCommand = errors.New("empty command")

// Result holds the captured output of one command execution.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes a program with arguments.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// Command describes one program invocation.
type Command struct {
	// Program is the executable name or path.
	Program string
	// Args are passed to the program verbatim.
	Args []string
	// Dir is the working directory. Empty uses the current one.
	Dir string
	// Env is appended to the current environment.
	Env map[string]string
	// Stdout and Stderr additionally receive the stream when set.
	Stdout io.Writer
	Stderr io.Writer
}

// NewCommand builds a Command from a full command line (program first).
func NewCommand(argv ...string) (Command, error) {
	if len(argv) == 0 || argv[0] == "" {
		return Command{}, ErrEmptyCommand
	}

	return Command{Program: argv[0], Args: argv[1:]}, nil
}

// String renders the command line the way a user would type it.
func (c Command) String() string {
	return strings.Join(append([]string{c.Program}, c.Args...), " ")
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// NewExecRunner creates a runner backed by os/exec.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes the command and waits for it to finish. A non-zero exit is
// returned as an error together with the captured output.
func (r *ExecRunner) Run(ctx context.Context, c Command) (*Result, error) {
	if c.Program == "" {
		return nil, ErrEmptyCommand
	}

	cmd := exec.CommandContext(ctx, c.Program, c.Args...)
	cmd.Dir = c.Dir

	if len(c.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range c.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	var stdout, stderr bytes.Buffer

	cmd.Stdout = teeWriter(&stdout, c.Stdout)
	cmd.Stderr = teeWriter(&stderr, c.Stderr)

	err := cmd.Run()

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode(err),
	}

	if err != nil {
		return result, fmt.Errorf("run %s: %w", c.Program, err)
	}

	return result, nil
}

func teeWriter(buf *bytes.Buffer, extra io.Writer) io.Writer {
	if extra == nil {
		return buf
	}

	return io.MultiWriter(buf, extra)
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	return exitCodeUnknown
}
