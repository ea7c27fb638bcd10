// Package statuscmder provides the status command for checking a running kb
// server and the local configuration it would start with.
package statuscmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/kb/pkg/cliui"
	"github.com/papercomputeco/kb/pkg/client"
	"github.com/papercomputeco/kb/pkg/config"
)

const statusLongDesc string = `Show the kb server status.

Prints the resolved configuration (config file, API target, embedding
provider and storage) and asks the server at the API target for its health
and document count.

Examples:
  kb status
  kb status --api-target http://remote:8001`

const statusShortDesc string = "Show server status"

func NewStatusCmd() *cobra.Command {
	var (
		apiTarget string
		v         *viper.Viper
		configDir string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ = cmd.Flags().GetString("config-dir")
			var err error
			v, err = config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Registry, []string{config.FlagAPITarget})
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cmd.OutOrStdout(), v, configDir)
		},
	}

	config.AddStringFlag(cmd, config.Registry, config.FlagAPITarget, &apiTarget)

	return cmd
}

func runStatus(cmd *cobra.Command, w io.Writer, v *viper.Viper, configDir string) error {
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	configFile := cfger.GetTarget()
	if configFile == "" {
		configFile = "<none, using defaults>"
	}

	storage := v.GetString("storage.provider")
	switch storage {
	case "file":
		storage += " " + config.SnapshotPath(v.GetString("storage.path"), cfger.GetDir())
	case "sqlite":
		storage += " " + config.SQLitePath(v.GetString("storage.path"), cfger.GetDir())
	}

	target := v.GetString("client.api_target")

	fmt.Fprintf(w, "\n  %s\n  %s\n  %s\n  %s\n\n",
		cliui.KeyValue("Config   ", configFile),
		cliui.KeyValue("API      ", target),
		cliui.KeyValue("Embedding", v.GetString("embedding.provider")+" "+v.GetString("embedding.model")),
		cliui.KeyValue("Storage  ", storage),
	)

	kb, err := client.New(target)
	if err != nil {
		return err
	}

	health, err := kb.Health(cmd.Context())
	if err != nil {
		fmt.Fprintf(w, "  %s %s\n\n", cliui.FailMark, cliui.DimStyle.Render("server unreachable"))
		return err
	}

	fmt.Fprintf(w, "  %s %s %s\n\n",
		cliui.SuccessMark,
		cliui.ValueStyle.Render("server "+health.Status),
		cliui.DimStyle.Render(fmt.Sprintf("(%d documents)", health.Count)),
	)
	return nil
}
