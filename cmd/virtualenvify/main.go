// Package main provides the entry point for the virtualenvify CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/virtualenvify/cmd/virtualenvify/commands"
	"github.com/Sumatoshi-tech/virtualenvify/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	g := &commands.Globals{}

	rootCmd := &cobra.Command{
		Use:   "virtualenvify",
		Short: "Virtualenvify - Build a virtualenv from a Python project's imports",
		Long: `Virtualenvify finds the external packages a Python project imports and
provisions a virtualenv holding them.

Commands:
  scan       List external package imports
  provision  Build the virtualenv, install packages, patch the WSGI file
  freeze     List packages installed in a virtualenv
  stdlib     List standard library modules of the interpreter
  mcp        Serve the scanner over the Model Context Protocol`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&g.ConfigPath, "config", "", "config file (default .virtualenvify.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&g.Verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&g.Quiet, "quiet", "q", false, "suppress output")
	rootCmd.PersistentFlags().BoolVar(&g.NoColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(commands.NewScanCommand(g))
	rootCmd.AddCommand(commands.NewProvisionCommand(g))
	rootCmd.AddCommand(commands.NewFreezeCommand(g))
	rootCmd.AddCommand(commands.NewStdlibCommand(g))
	rootCmd.AddCommand(commands.NewMCPCommand(g))
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
