// Package cli implements the chatqueue command line.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd returns the chatqueue root command. Running it without a
// subcommand starts the server.
func NewRootCmd(version string) *cobra.Command {
	serve := newServeCmd()

	cmd := &cobra.Command{
		Use:          "chatqueue",
		Short:        "Live-chat support queue with shift-aware agent assignment",
		SilenceUsage: true,
		RunE:         serve.RunE,
	}

	cmd.AddCommand(serve)
	cmd.AddCommand(newRosterCmd())

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.SetVersionTemplate("{{.Version}}\n")
	if version != "" {
		cmd.Version = version
	} else {
		cmd.Version = "dev"
	}

	return cmd
}
