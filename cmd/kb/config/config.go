// Package configcmder provides the config command for managing persistent
// kb configuration stored in the .kb/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent kb configuration.

Configuration is stored as config.toml in the .kb/ directory and provides
default values for command flags. CLI flags and KB_* environment variables
take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  storage.provider, storage.path, storage.flush_mode, storage.flush_every,
  storage.endpoint, storage.bucket, storage.key,
  storage.access_key, storage.secret_key, storage.secure, storage.dsn,
  api.listen, client.api_target,
  embedding.provider, embedding.target, embedding.model,
  embedding.dimensions, embedding.api_key, embedding.timeout,
  ingest.extensions, ingest.ignore_dirs,
  events.provider, events.brokers, events.topic

List values are comma-separated.

Use subcommands to get, set, or list configuration values:
  kb config set <key> <value>    Set a configuration value
  kb config get <key>            Get a configuration value
  kb config list                 List all configuration values

Examples:
  kb config set embedding.provider gemini
  kb config set storage.path ./.kb/knowledge_base.json.zst
  kb config set ingest.extensions .go,.md
  kb config get client.api_target
  kb config list`

const configShortDesc string = "Manage persistent kb configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
