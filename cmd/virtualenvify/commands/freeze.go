package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/virtualenvify/pkg/observability"
	"github.com/Sumatoshi-tech/virtualenvify/pkg/provision"
)

const (
	freezeOp = "freeze"
	hostPip  = "pip"
)

type freezeOptions struct {
	format string
	pip    string
}

// NewFreezeCommand creates the freeze command.
func NewFreezeCommand(g *Globals) *cobra.Command {
	return newFreezeCommandWithDeps(g, Deps{})
}

func newFreezeCommandWithDeps(g *Globals, deps Deps) *cobra.Command {
	opts := &freezeOptions{}

	cmd := &cobra.Command{
		Use:   "freeze [directory]",
		Short: "List the packages installed in a provisioned virtualenv",
		Long: `Run "pip freeze" in the virtualenv of a provisioned project. Without a
directory the host pip is queried, showing what the system already provides.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := checkFormat(opts.format)
			if err != nil {
				return err
			}

			a, err := newApp(g, deps, observability.ModeCLI)
			if err != nil {
				return err
			}
			defer a.close()

			pip := resolvePip(a, opts.pip, args)

			return a.instrument(cmd.Context(), freezeOp, func(ctx context.Context) error {
				lines, freezeErr := provision.Freeze(ctx, a.runner, pip)
				if freezeErr != nil {
					return freezeErr
				}

				out := cmd.OutOrStdout()

				if opts.format != FormatText {
					return writeStructured(out, opts.format, lines)
				}

				for _, line := range lines {
					fmt.Fprintln(out, line)
				}

				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", FormatText, "Output format: text, json or yaml")
	cmd.Flags().StringVar(&opts.pip, "pip", "", "pip executable to query")

	return cmd
}

// resolvePip picks the pip of the project's environment, honouring the
// configured override and environment location.
func resolvePip(a *app, flag string, args []string) string {
	switch {
	case flag != "":
		return flag
	case len(args) == 0:
		return hostPip
	case a.cfg.Install.Pip != "":
		return a.cfg.Install.Pip
	}

	envDir := args[0]

	switch dir := a.cfg.Environment.Dir; {
	case filepath.IsAbs(dir):
		envDir = dir
	case dir != "":
		envDir = filepath.Join(envDir, dir)
	}

	return filepath.Join(envDir, "bin", "pip")
}
