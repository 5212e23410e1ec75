package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/virtualenvify/pkg/observability"
	"github.com/Sumatoshi-tech/virtualenvify/pkg/provision"
	"github.com/Sumatoshi-tech/virtualenvify/pkg/wsgi"
)

const provisionOp = "provision"

// ErrInstallFailed is returned in strict mode when a package was not installed.
var ErrInstallFailed = errors.New("packages not installed")

type provisionOptions struct {
	fake     bool
	noWSGI   bool
	strict   bool
	envDir   string
	wsgiPath string
}

// NewProvisionCommand creates the provision command.
func NewProvisionCommand(g *Globals) *cobra.Command {
	return newProvisionCommandWithDeps(g, Deps{})
}

func newProvisionCommandWithDeps(g *Globals, deps Deps) *cobra.Command {
	opts := &provisionOptions{}

	cmd := &cobra.Command{
		Use:   "provision <directory>",
		Short: "Create a virtualenv holding a project's external packages",
		Long: `Detect the external packages of a project, build a virtualenv, install the
packages into it and patch the WSGI entry point to activate it.

With --fake nothing is changed; every step prints what it would do.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g, deps, observability.ModeCLI)
			if err != nil {
				return err
			}
			defer a.close()

			if opts.envDir != "" {
				a.cfg.Environment.Dir = opts.envDir
			}

			if opts.wsgiPath != "" {
				a.cfg.WSGI.Path = opts.wsgiPath
			}

			if opts.noWSGI {
				a.cfg.WSGI.Enabled = false
			}

			return a.instrument(cmd.Context(), provisionOp, func(ctx context.Context) error {
				return runProvision(ctx, cmd, a, args[0], opts)
			})
		},
	}

	cmd.Flags().BoolVar(&opts.fake, "fake", false, "Print what would be done without changing anything")
	cmd.Flags().BoolVar(&opts.noWSGI, "no-wsgi", false, "Leave the WSGI entry point untouched")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Fail when any package could not be installed")
	cmd.Flags().StringVar(&opts.envDir, "env-dir", "", "Virtualenv location, relative to the project (default: the project itself)")
	cmd.Flags().StringVar(&opts.wsgiPath, "wsgi", "", "WSGI entry point to patch (default "+wsgi.DefaultPath+")")

	return cmd
}

func newWorkflow(ctx context.Context, cmd *cobra.Command, a *app, fake bool) (*provision.Workflow, error) {
	logger := a.logger()

	builder, err := provision.NewVirtualenvBuilder(a.runner, a.cfg.Environment.Command, logger)
	if err != nil {
		return nil, err
	}

	output := a.toolOutput(cmd.ErrOrStderr())
	builder.SetOutput(output)

	installer := provision.NewPipInstaller(a.runner, provision.PipOptions{
		Pip:              a.cfg.Install.Pip,
		HostSitePackages: a.hostSitePackages(ctx),
		Fs:               a.deps.Fs,
		Output:           output,
	}, logger)

	wf := &provision.Workflow{
		Classifier: a.classifier(),
		Builder:    builder,
		Installer:  installer,
		Recorder:   a.providers.Metrics,
		EnvDir:     a.cfg.Environment.Dir,
		Fake:       fake,
		Out:        cmd.OutOrStdout(),
		Logger:     logger,
	}

	if a.cfg.WSGI.Enabled {
		wf.Patcher = wsgi.New(wsgi.Options{
			Path:   a.cfg.WSGI.Path,
			Backup: a.cfg.WSGI.Backup,
			Fake:   fake,
		}, a.deps.Fs, logger)
	}

	return wf, nil
}

func runProvision(ctx context.Context, cmd *cobra.Command, a *app, target string, opts *provisionOptions) error {
	wf, err := newWorkflow(ctx, cmd, a, opts.fake)
	if err != nil {
		return err
	}

	res, err := wf.Run(ctx, target)
	if err != nil {
		return err
	}

	if res.Report == nil {
		return nil
	}

	failed := res.Report.Failed()
	if len(failed) == 0 {
		if !a.quiet {
			color.New(color.FgGreen).Fprintf(cmd.ErrOrStderr(), "Virtualenv ready in %s\n", res.EnvDir)
		}

		return nil
	}

	color.New(color.FgRed).Fprintf(cmd.ErrOrStderr(), "%d of %d packages could not be installed: %s\n",
		len(failed), len(res.Report.Entries), strings.Join(failed, ", "))

	if opts.strict {
		return fmt.Errorf("%w: %s", ErrInstallFailed, strings.Join(failed, ", "))
	}

	return nil
}
