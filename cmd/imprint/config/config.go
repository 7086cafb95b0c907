// Package configcmder provides the config command for managing persistent
// imprint configuration stored in the .imprint/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent imprint configuration.

Configuration is stored as config.toml in the .imprint/ directory and
provides default values for command flags. Environment variables with the
IMPRINT_ prefix and CLI flags take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  storage.driver, storage.sqlite_path, storage.postgres_dsn,
  object_store.provider, object_store.bucket, object_store.local_root,
  llm.model, llm.base_url, llm.max_tokens,
  pipeline.concurrency, pipeline.workers, pipeline.job_timeout_minutes,
  embedding.enabled, embedding.model, embedding.dimensions,
  vector_store.target, vector_store.collection,
  eventstream.enabled, eventstream.brokers, eventstream.topic,
  api.listen

Use subcommands to get, set, or list configuration values:
  imprint config set <key> <value>    Set a configuration value
  imprint config get <key>            Get a configuration value
  imprint config list                 List all configuration values

Examples:
  imprint config set storage.driver postgres
  imprint config set llm.model gpt-4o-mini
  imprint config get object_store.bucket
  imprint config list`

const configShortDesc string = "Manage persistent imprint configuration"

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
