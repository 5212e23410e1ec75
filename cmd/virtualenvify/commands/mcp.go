package commands

import (
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/virtualenvify/internal/mcp"
	"github.com/Sumatoshi-tech/virtualenvify/pkg/observability"
	"github.com/Sumatoshi-tech/virtualenvify/pkg/version"
)

// NewMCPCommand creates the mcp command.
func NewMCPCommand(g *Globals) *cobra.Command {
	return newMCPCommandWithDeps(g, Deps{})
}

func newMCPCommandWithDeps(g *Globals, deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server on stdio",
		Long: `Serve the dependency scanner as Model Context Protocol tools over stdio.

Tools:
  scan_imports       List the top-level modules imported by a Python snippet
  find_dependencies  Find the external packages of a project directory`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(g, deps, observability.ModeMCP)
			if err != nil {
				return err
			}
			defer a.close()

			srv := mcp.NewServer(mcp.ServerDeps{
				Catalog: a.catalog(),
				Options: a.cfg.ClassifyOptions(),
				Logger:  a.logger(),
				Metrics: a.providers.Metrics,
				Tracer:  a.providers.Tracer,
				Version: version.Version,
			})

			return srv.Run(cmd.Context())
		},
	}
}
