package commands

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/virtualenvify/pkg/observability"
)

const stdlibOp = "stdlib"

type stdlibOptions struct {
	format      string
	interpreter string
}

// NewStdlibCommand creates the stdlib command.
func NewStdlibCommand(g *Globals) *cobra.Command {
	return newStdlibCommandWithDeps(g, Deps{})
}

func newStdlibCommandWithDeps(g *Globals, deps Deps) *cobra.Command {
	opts := &stdlibOptions{}

	cmd := &cobra.Command{
		Use:   "stdlib",
		Short: "List the standard library modules of the Python interpreter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := checkFormat(opts.format)
			if err != nil {
				return err
			}

			a, err := newApp(g, deps, observability.ModeCLI)
			if err != nil {
				return err
			}
			defer a.close()

			if opts.interpreter != "" {
				a.cfg.Python.Interpreter = opts.interpreter
			}

			return a.instrument(cmd.Context(), stdlibOp, func(ctx context.Context) error {
				return runStdlib(ctx, cmd, a, opts)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", FormatText, "Output format: text, json or yaml")
	cmd.Flags().StringVar(&opts.interpreter, "interpreter", "", "Python interpreter to inspect")

	return cmd
}

func runStdlib(ctx context.Context, cmd *cobra.Command, a *app, opts *stdlibOptions) error {
	names, err := a.catalog().Builtins(ctx)
	if err != nil {
		return fmt.Errorf("catalog standard library: %w", err)
	}

	sorted := names.Sorted()
	out := cmd.OutOrStdout()

	if opts.format != FormatText {
		return writeStructured(out, opts.format, sorted)
	}

	for _, name := range sorted {
		fmt.Fprintln(out, name)
	}

	if !a.quiet {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s standard library modules for %s\n",
			humanize.Comma(int64(len(sorted))), a.interpreter().Interpreter())
	}

	return nil
}
