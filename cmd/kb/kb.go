// Package kbcmder is the root kb command.
package kbcmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/kb/cmd/kb/config"
	ingestcmder "github.com/papercomputeco/kb/cmd/kb/ingest"
	initcmder "github.com/papercomputeco/kb/cmd/kb/init"
	querycmder "github.com/papercomputeco/kb/cmd/kb/query"
	servecmder "github.com/papercomputeco/kb/cmd/kb/serve"
	statuscmder "github.com/papercomputeco/kb/cmd/kb/status"
	versioncmder "github.com/papercomputeco/kb/cmd/version"
)

const kbLongDesc string = `kb is a semantic document store for codebases and notes.

Run the server, then ingest a directory and query it:
  kb serve               Run the HTTP and MCP server
  kb ingest [dir]        Ingest a directory tree
  kb query <text>        Query the knowledge base
  kb status              Show server status`

const kbShortDesc string = "kb - semantic document store"

func NewKBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "kb",
		Short:        kbShortDesc,
		Long:         kbLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .kb/ directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(ingestcmder.NewIngestCmd())
	cmd.AddCommand(querycmder.NewQueryCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
