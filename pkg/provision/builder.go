// Package provision creates a virtual environment for a project and installs
// its external dependencies into it.
package provision

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"mvdan.cc/sh/v3/shell"

	"github.com/Sumatoshi-tech/virtualenvify/pkg/executor"
)

// DefaultVirtualenvCommand creates the environment; the target directory is
// appended as the last argument.
const DefaultVirtualenvCommand = "virtualenv"

// EnvBuilder creates an isolated environment in a directory.
type EnvBuilder interface {
	Build(ctx context.Context, dir string) error
}

// VirtualenvBuilder creates environments by running an external command.
type VirtualenvBuilder struct {
	runner executor.Runner
	base   executor.Command
	output io.Writer
	logger *slog.Logger
}

// NewVirtualenvBuilder parses commandLine with shell quoting rules and
// environment expansion. An empty line selects DefaultVirtualenvCommand.
func NewVirtualenvBuilder(runner executor.Runner, commandLine string, logger *slog.Logger) (*VirtualenvBuilder, error) {
	if commandLine == "" {
		commandLine = DefaultVirtualenvCommand
	}

	argv, err := shell.Fields(commandLine, os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("parse virtualenv command %q: %w", commandLine, err)
	}

	base, err := executor.NewCommand(argv...)
	if err != nil {
		return nil, fmt.Errorf("parse virtualenv command %q: %w", commandLine, err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &VirtualenvBuilder{runner: runner, base: base, logger: logger}, nil
}

// SetOutput streams the command's stdout and stderr to w while it runs.
func (b *VirtualenvBuilder) SetOutput(w io.Writer) {
	b.output = w
}

// Command returns the invocation that builds an environment in dir.
func (b *VirtualenvBuilder) Command(dir string) executor.Command {
	cmd := b.base
	cmd.Args = append(slices.Clone(b.base.Args), dir)
	cmd.Stdout = b.output
	cmd.Stderr = b.output

	return cmd
}

// CommandLine renders the invocation for preview output.
func (b *VirtualenvBuilder) CommandLine(dir string) string {
	return b.Command(dir).String()
}

// Build runs the command.
func (b *VirtualenvBuilder) Build(ctx context.Context, dir string) error {
	cmd := b.Command(dir)

	b.logger.InfoContext(ctx, "building virtualenv", "dir", dir, "command", cmd.String())

	res, err := b.runner.Run(ctx, cmd)
	if err != nil {
		if res != nil && res.Stderr != "" {
			return fmt.Errorf("build virtualenv in %s: %w: %s", dir, err, res.Stderr)
		}

		return fmt.Errorf("build virtualenv in %s: %w", dir, err)
	}

	return nil
}
