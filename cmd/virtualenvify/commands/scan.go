package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/virtualenvify/pkg/classify"
	"github.com/Sumatoshi-tech/virtualenvify/pkg/observability"
	"github.com/Sumatoshi-tech/virtualenvify/pkg/scanner"
)

const scanOp = "scan"

// ScanReport is the structured output of the scan command.
type ScanReport struct {
	Root         string                `json:"root"            yaml:"root"`
	External     []string              `json:"external"        yaml:"external"`
	Local        []string              `json:"local"           yaml:"local"`
	References   []string              `json:"references"      yaml:"references"`
	FilesScanned int                   `json:"files_scanned"   yaml:"files_scanned"`
	BytesScanned int64                 `json:"bytes_scanned"   yaml:"bytes_scanned"`
	Trace        scanner.Trace         `json:"trace,omitempty" yaml:"trace,omitempty"`
	Diagnostics  []classify.Diagnostic `json:"diagnostics"     yaml:"diagnostics"`
}

type scanOptions struct {
	format       string
	debug        bool
	skipVendored bool
}

// NewScanCommand creates the scan command.
func NewScanCommand(g *Globals) *cobra.Command {
	return newScanCommandWithDeps(g, Deps{})
}

func newScanCommandWithDeps(g *Globals, deps Deps) *cobra.Command {
	opts := &scanOptions{}

	cmd := &cobra.Command{
		Use:   "scan <directory>",
		Short: "List the external packages imported by a Python project",
		Long: `Walk a project tree, collect every top-level import and print the names
that are neither part of the standard library nor modules of the project.`,
		Args: cobra.ExactArgs(1),
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

			if opts.skipVendored {
				a.cfg.Scan.SkipVendored = true
			}

			return a.instrument(cmd.Context(), scanOp, func(ctx context.Context) error {
				return runScan(ctx, cmd, a, args[0], opts)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", FormatText, "Output format: text, json or yaml")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Show the source line that produced each dependency")
	cmd.Flags().BoolVar(&opts.skipVendored, "skip-vendored", false, "Ignore vendored directories")

	return cmd
}

func runScan(ctx context.Context, cmd *cobra.Command, a *app, target string, opts *scanOptions) error {
	res, err := a.classifier().Classify(ctx, target)
	if err != nil {
		return fmt.Errorf("scan %s: %w", target, err)
	}

	a.providers.Metrics.RecordScan(ctx, res.FilesScanned, res.BytesScanned,
		res.References.Len(), res.External.Len(), res.Duration)

	external := res.External.Sorted()
	out := cmd.OutOrStdout()

	if opts.format != FormatText {
		report := ScanReport{
			Root:         res.Root,
			External:     external,
			Local:        res.Local.Sorted(),
			References:   res.References.Sorted(),
			FilesScanned: res.FilesScanned,
			BytesScanned: res.BytesScanned,
			Diagnostics:  res.Diagnostics,
		}

		if opts.debug {
			report.Trace = scanner.Trace{}

			for _, name := range external {
				report.Trace[name] = res.Trace[name]
			}
		}

		return writeStructured(out, opts.format, report)
	}

	if opts.debug {
		renderTrace(out, external, res)
	} else {
		fmt.Fprintln(out, "The following external package imports have been detected:")

		for _, name := range external {
			fmt.Fprintln(out, name)
		}
	}

	errOut := cmd.ErrOrStderr()
	renderDiagnostics(errOut, res.Diagnostics)

	if !a.quiet {
		renderSummary(errOut, res)
	}

	return nil
}
